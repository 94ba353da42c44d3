package achievement

// Type is the tag of an achievement's unlock condition.
type Type string

const (
	TypeLessonCompletion Type = "lesson_completion"
	TypeCourseCompletion Type = "course_completion"
	TypeStreak           Type = "streak"
	TypeTimeSpent        Type = "time_spent"
	TypePerfectScore     Type = "perfect_score"
)

// Types lists every achievement type.
var Types = []Type{
	TypeLessonCompletion,
	TypeCourseCompletion,
	TypeStreak,
	TypeTimeSpent,
	TypePerfectScore,
}

// IsValid reports whether t is a known type.
func (t Type) IsValid() bool {
	_, err := Visit[struct{}](t, typeChecker{})
	return err == nil
}

// String returns the string representation of the type.
func (t Type) String() string { return string(t) }

// Visitor has one method per Type. Adding a Type adds a method here, so every
// dispatch site stops compiling until it handles the new case.
type Visitor[T any] interface {
	LessonCompletion() T
	CourseCompletion() T
	Streak() T
	TimeSpent() T
	PerfectScore() T
}

// Visit dispatches t to the matching visitor method.
func Visit[T any](t Type, v Visitor[T]) (T, error) {
	switch t {
	case TypeLessonCompletion:
		return v.LessonCompletion(), nil
	case TypeCourseCompletion:
		return v.CourseCompletion(), nil
	case TypeStreak:
		return v.Streak(), nil
	case TypeTimeSpent:
		return v.TimeSpent(), nil
	case TypePerfectScore:
		return v.PerfectScore(), nil
	}
	var zero T
	return zero, ErrUnknownType
}

type typeChecker struct{}

func (typeChecker) LessonCompletion() struct{} { return struct{}{} }
func (typeChecker) CourseCompletion() struct{} { return struct{}{} }
func (typeChecker) Streak() struct{}           { return struct{}{} }
func (typeChecker) TimeSpent() struct{}        { return struct{}{} }
func (typeChecker) PerfectScore() struct{}     { return struct{}{} }

// Progress is the user state an unlock condition is evaluated against.
type Progress struct {
	LessonsCompleted int64
	CoursesCompleted int64
	TotalTimeSpent   int64
	CurrentStreak    int
	HasStreak        bool
}

// NeedsStreak reports whether evaluating any of the achievements reads the streak.
func NeedsStreak(candidates []*Achievement) bool {
	for _, a := range candidates {
		if a.Type == TypeStreak {
			return true
		}
	}
	return false
}

type thresholdCheck struct {
	p         Progress
	threshold int64
}

func (c thresholdCheck) LessonCompletion() bool { return c.p.LessonsCompleted >= c.threshold }
func (c thresholdCheck) CourseCompletion() bool { return c.p.CoursesCompleted >= c.threshold }
func (c thresholdCheck) TimeSpent() bool        { return c.p.TotalTimeSpent >= c.threshold }

func (c thresholdCheck) Streak() bool {
	return c.p.HasStreak && int64(c.p.CurrentStreak) >= c.threshold
}

// PerfectScore has no evaluation rule yet and never unlocks.
func (c thresholdCheck) PerfectScore() bool { return false }

// IsSatisfied evaluates a's unlock condition against p.
func (a *Achievement) IsSatisfied(p Progress) (bool, error) {
	return Visit[bool](a.Type, thresholdCheck{p: p, threshold: int64(a.Threshold)})
}
