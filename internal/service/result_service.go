package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/veritest/veritest-backend/internal/model"
	"github.com/veritest/veritest-backend/internal/repository"
)

// ErrNotOwner is returned when a student requests someone else's attempt.
var ErrNotOwner = errors.New("attempt belongs to another student")

// ResultStore is the read access the result views need.
type ResultStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	ListByStudent(ctx context.Context, studentID int) ([]model.Attempt, error)
	ListByTest(ctx context.Context, testID uuid.UUID) ([]repository.TestResult, error)
	Leaderboard(ctx context.Context, testID uuid.UUID, limit int) ([]repository.TestResult, error)
}

// ResultService serves read-only attempt views for students and admins.
type ResultService struct {
	attempts ResultStore
}

// NewResultService creates a new ResultService.
func NewResultService(attempts ResultStore) *ResultService {
	return &ResultService{attempts: attempts}
}

// StudentAttempt fetches one attempt, rejecting students who do not own it.
// studentID 0 means an admin caller, which bypasses the ownership check.
func (s *ResultService) StudentAttempt(ctx context.Context, id uuid.UUID, studentID int) (*model.Attempt, error) {
	attempt, err := s.attempts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if studentID != 0 && attempt.StudentID != studentID {
		return nil, ErrNotOwner
	}
	return attempt, nil
}

// StudentHistory lists a student's attempts, newest first.
func (s *ResultService) StudentHistory(ctx context.Context, studentID int) ([]model.Attempt, error) {
	return s.attempts.ListByStudent(ctx, studentID)
}

// TestResults lists all attempts for a test with student identity.
func (s *ResultService) TestResults(ctx context.Context, testID uuid.UUID) ([]repository.TestResult, error) {
	return s.attempts.ListByTest(ctx, testID)
}

// Leaderboard lists the top attempts for a test, earliest submission winning
// ties at equal percent.
func (s *ResultService) Leaderboard(ctx context.Context, testID uuid.UUID, limit int) ([]repository.TestResult, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return s.attempts.Leaderboard(ctx, testID, limit)
}
