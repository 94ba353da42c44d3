package activity

// CourseLevel is the difficulty tier of a course, supplied by the course catalog.
type CourseLevel string

const (
	LevelBeginner     CourseLevel = "beginner"
	LevelIntermediate CourseLevel = "intermediate"
	LevelAdvanced     CourseLevel = "advanced"
)

const (
	courseLessonBonusPerLesson = 10
	courseLessonBonusCap       = 100
	courseCompletionCap        = 500
)

// CourseCompletionPoints computes the award for finishing a course:
// a level base plus a per-lesson bonus, capped.
func CourseCompletionPoints(level CourseLevel, lessonCount int) int {
	base := 100
	switch level {
	case LevelIntermediate:
		base = 250
	case LevelAdvanced:
		base = 400
	}

	if lessonCount < 0 {
		lessonCount = 0
	}
	bonus := min(courseLessonBonusCap, lessonCount*courseLessonBonusPerLesson)
	return min(courseCompletionCap, base+bonus)
}
