package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/veritest/veritest-backend/internal/model"
)

// AdmissionStatus is the decision vocabulary for a session request.
type AdmissionStatus string

const (
	AdmissionNoActiveTest     AdmissionStatus = "NO_ACTIVE_TEST"
	AdmissionAlreadyAttempted AdmissionStatus = "ALREADY_ATTEMPTED"
	AdmissionGranted          AdmissionStatus = "GRANTED"
)

// AdmissionDecision is the server-side verdict on whether a student may
// start a session. Granted decisions carry the test and the sanitized paper;
// AlreadyAttempted carries the existing attempt so the caller can route to a
// result view instead of a new session.
type AdmissionDecision struct {
	Status    AdmissionStatus            `json:"status"`
	Test      *model.Test                `json:"test,omitempty"`
	Questions []model.QuestionForStudent `json:"questions,omitempty"`
	Paper     *model.TestPaper           `json:"-"`
	Attempt   *model.Attempt             `json:"attempt,omitempty"`
}

// ActiveTestStore finds the single currently schedulable test.
type ActiveTestStore interface {
	FindActive(ctx context.Context, now time.Time) (*model.Test, error)
}

// AttemptLookupStore checks whether a student has consumed a test.
type AttemptLookupStore interface {
	GetByStudentAndTest(ctx context.Context, studentID int, testID uuid.UUID) (*model.Attempt, error)
}

// PaperSource serves the sanitized paper for a granted admission.
type PaperSource interface {
	Paper(ctx context.Context, test *model.Test) (*model.TestPaper, error)
}

// AdmissionService decides, server-side, whether a student may start the
// active test. The check is read-only and advisory: the uniqueness it
// reports is enforced again by the submission gateway's conditional insert,
// which closes the race between "checked available" and "submitted".
type AdmissionService struct {
	tests    ActiveTestStore
	attempts AttemptLookupStore
	papers   PaperSource
	now      func() time.Time
	log      zerolog.Logger
}

// NewAdmissionService creates a new AdmissionService.
func NewAdmissionService(tests ActiveTestStore, attempts AttemptLookupStore, papers PaperSource, log zerolog.Logger) *AdmissionService {
	return &AdmissionService{
		tests:    tests,
		attempts: attempts,
		papers:   papers,
		now:      time.Now,
		log:      log.With().Str("component", "admission_service").Logger(),
	}
}

// WithClock overrides the clock source. Tests use this to pin the window
// boundary behavior without real waits.
func (s *AdmissionService) WithClock(now func() time.Time) *AdmissionService {
	s.now = now
	return s
}

// RequestAdmission determines whether the student may start the single
// currently schedulable test.
func (s *AdmissionService) RequestAdmission(ctx context.Context, studentID int) (*AdmissionDecision, error) {
	now := s.now()

	test, err := s.tests.FindActive(ctx, now)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &AdmissionDecision{Status: AdmissionNoActiveTest}, nil
		}
		return nil, fmt.Errorf("find active test: %w", err)
	}

	existing, err := s.attempts.GetByStudentAndTest(ctx, studentID, test.ID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing attempt: %w", err)
	}
	if existing != nil {
		return &AdmissionDecision{
			Status:  AdmissionAlreadyAttempted,
			Test:    test,
			Attempt: existing,
		}, nil
	}

	paper, err := s.papers.Paper(ctx, test)
	if err != nil {
		return nil, fmt.Errorf("load paper: %w", err)
	}

	s.log.Debug().
		Int("student_id", studentID).
		Str("test_id", test.ID.String()).
		Msg("Admission granted")

	return &AdmissionDecision{
		Status:    AdmissionGranted,
		Test:      test,
		Questions: paper.Questions,
		Paper:     paper,
	}, nil
}
