package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/veritest/veritest-backend/internal/model"
	"github.com/veritest/veritest-backend/internal/session"
)

// AnswerKeySource serves the server-only question → correct option map.
type AnswerKeySource interface {
	AnswerKey(ctx context.Context, testID uuid.UUID) (map[string]string, error)
}

// AttemptWriteStore is the attempt access the submission gateway needs.
type AttemptWriteStore interface {
	Create(ctx context.Context, a *model.Attempt) error
	GetByStudentAndTest(ctx context.Context, studentID int, testID uuid.UUID) (*model.Attempt, error)
}

// SubmissionService is the single write path for attempts. It scores the
// answer sheet against the server-held key and persists the result with a
// conditional insert, so exactly one attempt per (student, test) pair exists
// no matter how many sessions race to submit.
type SubmissionService struct {
	keys     AnswerKeySource
	attempts AttemptWriteStore
	log      zerolog.Logger
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(keys AnswerKeySource, attempts AttemptWriteStore, log zerolog.Logger) *SubmissionService {
	return &SubmissionService{
		keys:     keys,
		attempts: attempts,
		log:      log.With().Str("component", "submission_service").Logger(),
	}
}

var _ session.Gateway = (*SubmissionService)(nil)

// Submit scores and persists one attempt. When an attempt for the pair
// already exists, it returns a session.DuplicateAttemptError carrying the
// existing record; the first writer always wins.
func (s *SubmissionService) Submit(ctx context.Context, studentID int, testID uuid.UUID, answers []model.AttemptAnswer, reason model.FinishReason, flagged bool) (*model.Attempt, error) {
	key, err := s.keys.AnswerKey(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("load answer key: %w", err)
	}

	attempt := score(studentID, testID, answers, key)
	attempt.FinishReason = reason
	attempt.IntegrityFlagged = flagged

	if err := s.attempts.Create(ctx, attempt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Conditional insert found an existing row. Fetch it so the caller
			// can render the winning record.
			existing, lookupErr := s.attempts.GetByStudentAndTest(ctx, studentID, testID)
			if lookupErr != nil {
				return nil, fmt.Errorf("fetch existing attempt: %w", lookupErr)
			}
			return nil, &session.DuplicateAttemptError{Existing: existing}
		}
		return nil, fmt.Errorf("persist attempt: %w", err)
	}

	s.log.Info().
		Int("student_id", studentID).
		Str("test_id", testID.String()).
		Str("attempt_id", attempt.ID.String()).
		Int("percent", attempt.Percent).
		Str("reason", string(reason)).
		Bool("flagged", flagged).
		Msg("Attempt recorded")
	return attempt, nil
}

// score tallies the answer sheet against the key. Total comes from the key,
// not the sheet, so a truncated sheet cannot inflate the percentage.
func score(studentID int, testID uuid.UUID, answers []model.AttemptAnswer, key map[string]string) *model.Attempt {
	attempt := &model.Attempt{
		TestID:    testID,
		StudentID: studentID,
		Total:     len(key),
		Answers:   answers,
	}

	for _, a := range answers {
		if a.Locked {
			attempt.Locked++
		}
		if a.SelectedOption == "" {
			continue
		}
		attempt.Attempted++
		if correct, ok := key[a.QuestionID.String()]; ok && a.SelectedOption == correct {
			attempt.Correct++
		} else {
			attempt.Wrong++
		}
	}

	if attempt.Total > 0 {
		attempt.Percent = int(math.Round(float64(attempt.Correct) / float64(attempt.Total) * 100))
	}
	return attempt
}
