package model

import (
	"time"

	"github.com/google/uuid"
)

// Test represents one scheduled assessment window. A partial unique index on
// the active flag guarantees at most one Test has active=true at any instant.
type Test struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	Active          bool      `json:"active"`
	DurationSeconds int       `json:"duration_seconds"`
	QuestionSeconds int       `json:"question_seconds"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ScheduleTestRequest is the payload for scheduling a new test window.
type ScheduleTestRequest struct {
	Title           string    `json:"title" binding:"omitempty,min=3,max=255"`
	StartTime       time.Time `json:"start_time" binding:"required"`
	EndTime         time.Time `json:"end_time" binding:"required,gtfield=StartTime"`
	DurationSeconds int       `json:"duration_seconds" binding:"omitempty,min=60,max=14400"`
	QuestionSeconds int       `json:"question_seconds" binding:"omitempty,min=10,max=600"`
}
