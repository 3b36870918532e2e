package model

import (
	"time"

	"github.com/google/uuid"
)

// FinishReason records which terminal trigger ended the attempt.
type FinishReason string

const (
	FinishReasonTimeExpired        FinishReason = "TIME_EXPIRED"
	FinishReasonManualSubmit       FinishReason = "MANUAL_SUBMIT"
	FinishReasonIntegrityViolation FinishReason = "INTEGRITY_VIOLATION"
)

// AttemptAnswer is one entry in an attempt's ordered answer list.
// SelectedOption is empty when the question was left unanswered.
type AttemptAnswer struct {
	QuestionID     uuid.UUID `json:"question_id"`
	SelectedOption string    `json:"selected_option,omitempty"`
	Locked         bool      `json:"locked"`
}

// Attempt is one student's completed, scored submission for one test.
// Created exactly once per (student, test) pair and immutable afterwards.
type Attempt struct {
	ID               uuid.UUID       `json:"id"`
	TestID           uuid.UUID       `json:"test_id"`
	StudentID        int             `json:"student_id"`
	Total            int             `json:"total"`
	Correct          int             `json:"correct"`
	Wrong            int             `json:"wrong"`
	Attempted        int             `json:"attempted"`
	Locked           int             `json:"locked"`
	Percent          int             `json:"percent"`
	FinishReason     FinishReason    `json:"finish_reason"`
	IntegrityFlagged bool            `json:"integrity_flagged"`
	Answers          []AttemptAnswer `json:"answers"`
	CreatedAt        time.Time       `json:"created_at"`
}
