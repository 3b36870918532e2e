package model

import (
	"github.com/google/uuid"
)

// OptionKeys is the closed set of valid answer option keys.
var OptionKeys = []string{"A", "B", "C", "D"}

// ValidOptionKey reports whether key is one of the four fixed option keys.
func ValidOptionKey(key string) bool {
	switch key {
	case "A", "B", "C", "D":
		return true
	}
	return false
}

// Question represents a single multiple-choice question. Immutable during a
// live attempt; the question set is only ever replaced wholesale.
type Question struct {
	ID            uuid.UUID         `json:"id"`
	TestID        uuid.UUID         `json:"test_id"`
	SeqNum        int               `json:"seq_num"`
	Text          string            `json:"text"`
	Options       map[string]string `json:"options"`
	CorrectAnswer string            `json:"correct_answer"`
}

// QuestionForStudent is a question stripped of the correct answer. This is the
// only shape that ever leaves the server toward a student.
type QuestionForStudent struct {
	ID      uuid.UUID         `json:"id"`
	SeqNum  int               `json:"seq_num"`
	Text    string            `json:"text"`
	Options map[string]string `json:"options"`
}

// Sanitize converts a Question to its student-facing shape.
func (q *Question) Sanitize() QuestionForStudent {
	return QuestionForStudent{
		ID:      q.ID,
		SeqNum:  q.SeqNum,
		Text:    q.Text,
		Options: q.Options,
	}
}

// QuestionInput is one question in a bulk replace payload.
type QuestionInput struct {
	SeqNum        int               `json:"seq_num" binding:"required,min=1"`
	Text          string            `json:"text" binding:"required,min=1,max=2000"`
	Options       map[string]string `json:"options" binding:"required"`
	CorrectAnswer string            `json:"correct_answer" binding:"required,oneof=A B C D"`
}

// ReplaceQuestionsRequest is the payload for atomically replacing a test's
// question set. This operation also invalidates every prior attempt.
type ReplaceQuestionsRequest struct {
	Questions []QuestionInput `json:"questions" binding:"required,min=1,dive"`
}

// TestPaper is the cached, student-facing payload for a test (no answer key).
type TestPaper struct {
	TestID          uuid.UUID            `json:"test_id"`
	Title           string               `json:"title"`
	DurationSeconds int                  `json:"duration_seconds"`
	QuestionSeconds int                  `json:"question_seconds"`
	Questions       []QuestionForStudent `json:"questions"`
}
