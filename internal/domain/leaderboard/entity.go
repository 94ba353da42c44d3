// Package leaderboard содержит доменную модель лидербордов.
// Лидерборд всегда вычисляется по требованию из агрегатов статистики
// (global/weekly/monthly) или из журнала активности (course) и никогда
// не хранится как источник истины.
package leaderboard

import (
	"sort"
	"time"

	"github.com/coursehub/gamification/internal/domain/shared"
	"github.com/coursehub/gamification/internal/domain/stats"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrInvalidScope     = shared.NewDomainError("leaderboard", "Validate", shared.ErrInvalidInput, "unknown leaderboard scope")
	ErrCourseRequired   = shared.NewDomainError("leaderboard", "Validate", shared.ErrEmptyValue, "course id is required for course scope")
	ErrUnexpectedCourse = shared.NewDomainError("leaderboard", "Validate", shared.ErrInvalidInput, "course id is only valid for course scope")
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Scope - окно очков, по которому строится рейтинг.
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeWeekly  Scope = "weekly"
	ScopeMonthly Scope = "monthly"
	ScopeCourse  Scope = "course"
)

// CounterScopes - области, которые строятся по счётчикам UserStats.
var CounterScopes = []Scope{ScopeGlobal, ScopeWeekly, ScopeMonthly}

// IsValid проверяет, что область известна.
func (s Scope) IsValid() bool {
	switch s {
	case ScopeGlobal, ScopeWeekly, ScopeMonthly, ScopeCourse:
		return true
	}
	return false
}

// String возвращает строковое представление области.
func (s Scope) String() string { return string(s) }

// Field возвращает счётчик UserStats для области (пусто для course).
func (s Scope) Field() stats.Field {
	switch s {
	case ScopeGlobal:
		return stats.FieldTotalPoints
	case ScopeWeekly:
		return stats.FieldWeeklyPoints
	case ScopeMonthly:
		return stats.FieldMonthlyPoints
	}
	return ""
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERY
// ══════════════════════════════════════════════════════════════════════════════

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Query описывает запрос одной страницы лидерборда.
type Query struct {
	Scope    Scope
	CourseID string
	Page     shared.Page
}

// NewQuery валидирует параметры и нормализует пагинацию.
func NewQuery(scope Scope, courseID string, limit, offset int) (Query, error) {
	if !scope.IsValid() {
		return Query{}, ErrInvalidScope
	}
	if scope == ScopeCourse && courseID == "" {
		return Query{}, ErrCourseRequired
	}
	if scope != ScopeCourse && courseID != "" {
		return Query{}, ErrUnexpectedCourse
	}
	page, err := shared.NewPage(limit, offset, DefaultLimit, MaxLimit)
	if err != nil {
		return Query{}, err
	}
	return Query{Scope: scope, CourseID: courseID, Page: page}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTRIES
// ══════════════════════════════════════════════════════════════════════════════

// Row - строка, которую возвращает хранилище до присвоения ранга.
// ReachedAt - момент последнего изменения очков; меньшее значение выше при равенстве.
type Row struct {
	UserID    string
	Points    int64
	ReachedAt time.Time
}

// Entry - позиция пользователя в лидерборде.
type Entry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Points int64  `json:"points"`
}

// Board - одна страница лидерборда.
type Board struct {
	Scope       Scope     `json:"scope"`
	CourseID    string    `json:"course_id,omitempty"`
	Limit       int       `json:"limit"`
	Offset      int       `json:"offset"`
	Entries     []Entry   `json:"entries"`
	GeneratedAt time.Time `json:"generated_at"`
}

// NewBoard присваивает ранги строкам страницы: rank = offset + index + 1.
func NewBoard(q Query, rows []Row, now time.Time) *Board {
	entries := make([]Entry, len(rows))
	for i, r := range rows {
		entries[i] = Entry{
			Rank:   q.Page.Rank(i),
			UserID: r.UserID,
			Points: r.Points,
		}
	}
	return &Board{
		Scope:       q.Scope,
		CourseID:    q.CourseID,
		Limit:       q.Page.Limit,
		Offset:      q.Page.Offset,
		Entries:     entries,
		GeneratedAt: now,
	}
}

// Less задаёт детерминированный порядок: очки по убыванию, затем
// более раннее ReachedAt, затем UserID.
func Less(a, b Row) bool {
	if a.Points != b.Points {
		return a.Points > b.Points
	}
	if !a.ReachedAt.Equal(b.ReachedAt) {
		return a.ReachedAt.Before(b.ReachedAt)
	}
	return a.UserID < b.UserID
}

// SortRows сортирует строки порядком лидерборда.
func SortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool { return Less(rows[i], rows[j]) })
}

// PageRows возвращает срез строк для страницы.
func PageRows(rows []Row, page shared.Page) []Row {
	if page.Offset >= len(rows) {
		return []Row{}
	}
	end := min(len(rows), page.Offset+page.Limit)
	return rows[page.Offset:end]
}

// Window вырезает страницу из доски, построенной с offset 0.
// Возвращает false, если доска не покрывает страницу целиком.
func (b *Board) Window(page shared.Page) (*Board, bool) {
	if b.Offset != 0 {
		return nil, false
	}
	complete := len(b.Entries) < b.Limit
	if page.Offset+page.Limit > len(b.Entries) && !complete {
		return nil, false
	}
	start := min(page.Offset, len(b.Entries))
	end := min(page.Offset+page.Limit, len(b.Entries))
	return &Board{
		Scope:       b.Scope,
		CourseID:    b.CourseID,
		Limit:       page.Limit,
		Offset:      page.Offset,
		Entries:     append([]Entry(nil), b.Entries[start:end]...),
		GeneratedAt: b.GeneratedAt,
	}, true
}
