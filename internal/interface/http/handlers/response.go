package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coursehub/gamification/internal/domain/shared"
	"github.com/coursehub/gamification/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      any           `json:"data"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Limit     int       `json:"limit,omitempty"`
	Offset    int       `json:"offset,omitempty"`
}

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "request_id"

// Error codes.
const (
	CodeInvalidInput  = "invalid_input"
	CodeUnauthorized  = "unauthorized"
	CodeForbidden     = "forbidden"
	CodeNotFound      = "not_found"
	CodeConflict      = "conflict"
	CodeInternalError = "internal_error"
	CodeUnavailable   = "service_unavailable"
)

// RespondOK writes a 200 envelope. A nil data is written as null.
func RespondOK(c *gin.Context, data any) {
	respond(c, http.StatusOK, data, nil)
}

// RespondCreated writes a 201 envelope.
func RespondCreated(c *gin.Context, data any) {
	respond(c, http.StatusCreated, data, nil)
}

// RespondPage writes a 200 envelope with paging metadata.
func RespondPage(c *gin.Context, data any, limit, offset int) {
	respond(c, http.StatusOK, data, &ResponseMeta{Limit: limit, Offset: offset})
}

func respond(c *gin.Context, status int, data any, meta *ResponseMeta) {
	if meta == nil {
		meta = &ResponseMeta{}
	}
	meta.Timestamp = time.Now().UTC()
	meta.Version = "v1"

	c.JSON(status, JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      meta,
		RequestID: c.GetString(RequestIDKey),
	})
}

// RespondError writes an error envelope with an explicit status and aborts.
func RespondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, JSONResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Version: "v1"},
		RequestID: c.GetString(RequestIDKey),
	})
}

// HandleError maps a domain error to a status code. Storage and unknown
// errors are logged and reported without details.
func HandleError(c *gin.Context, log *logger.Logger, err error) {
	status, code := Classify(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			logger.String("path", c.FullPath()),
			logger.String(RequestIDKey, c.GetString(RequestIDKey)),
			logger.Err(err),
		)
		RespondError(c, status, code, http.StatusText(status))
		return
	}
	RespondError(c, status, code, publicMessage(err))
}

// Classify returns the HTTP status and error code for err.
func Classify(err error) (int, string) {
	switch {
	case shared.IsValidation(err):
		return http.StatusBadRequest, CodeInvalidInput
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusUnauthorized, CodeUnauthorized
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	case shared.IsNotFound(err):
		return http.StatusNotFound, CodeNotFound
	case shared.IsAlreadyExists(err):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, CodeUnavailable
	default:
		return http.StatusInternalServerError, CodeInternalError
	}
}

func publicMessage(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return err.Error()
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// queryInt reads an optional non-negative integer query parameter.
func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, shared.NewDomainError("http", "query", shared.ErrInvalidInput, key+" must be a non-negative integer")
	}
	return n, nil
}

// paging reads limit and offset. A zero limit lets the handler apply its default.
func paging(c *gin.Context) (limit, offset int, err error) {
	if limit, err = queryInt(c, "limit", 0); err != nil {
		return 0, 0, err
	}
	if offset, err = queryInt(c, "offset", 0); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}
