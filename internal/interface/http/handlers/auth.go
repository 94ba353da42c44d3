package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// IDENTITY
// ══════════════════════════════════════════════════════════════════════════════

// RoleAdmin is the role allowed on admin routes.
const RoleAdmin = "admin"

const identityKey = "identity"

// Identity is the caller extracted from a verified token.
type Identity struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the caller may use admin routes.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Claims are the token claims issued by the identity provider.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

var (
	// ErrMissingToken is returned when no bearer token is present.
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidToken is returned when the token fails verification.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATOR
// ══════════════════════════════════════════════════════════════════════════════

// AuthConfig configures token verification.
type AuthConfig struct {
	// Secret is the shared HS256 key.
	Secret string

	// Issuer, when set, must match the iss claim.
	Issuer string

	// Leeway tolerates clock skew on exp/nbf.
	Leeway time.Duration
}

// Authenticator verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	parser *jwt.Parser
	issuer string
}

// NewAuthenticator creates an Authenticator. The secret must not be empty.
func NewAuthenticator(cfg AuthConfig) (*Authenticator, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &Authenticator{
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(opts...),
		issuer: cfg.Issuer,
	}, nil
}

// Verify parses and validates a token string.
func (a *Authenticator) Verify(token string) (Identity, error) {
	claims := &Claims{}
	parsed, err := a.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	return Identity{UserID: claims.Subject, Role: claims.Role}, nil
}

// Sign issues a token for userID. Used by tests and local tooling; production
// tokens come from the identity provider.
func (a *Authenticator) Sign(userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// RequireAuth rejects requests without a valid bearer token.
func (a *Authenticator) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			RespondError(c, http.StatusUnauthorized, CodeUnauthorized, ErrMissingToken.Error())
			return
		}
		id, err := a.Verify(token)
		if err != nil {
			RespondError(c, http.StatusUnauthorized, CodeUnauthorized, ErrInvalidToken.Error())
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			RespondError(c, http.StatusUnauthorized, CodeUnauthorized, ErrMissingToken.Error())
			return
		}
		if !id.IsAdmin() {
			RespondError(c, http.StatusForbidden, CodeForbidden, "admin role required")
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the caller set by RequireAuth.
func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
