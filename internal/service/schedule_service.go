package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/veritest/veritest-backend/internal/model"
)

// Schedule errors.
var (
	ErrTestStillActive = errors.New("test is still active")
)

const (
	defaultDurationSeconds = 1800
	defaultQuestionSeconds = 60
)

// ScheduleTestStore is the test access scheduling needs.
type ScheduleTestStore interface {
	Create(ctx context.Context, t *model.Test) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error)
	End(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]model.Test, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ScheduleQuestionStore is the question access scheduling needs.
type ScheduleQuestionStore interface {
	ReplaceForTest(ctx context.Context, testID uuid.UUID, inputs []model.QuestionInput) (int64, error)
}

// PaperCache is the cache maintenance hook scheduling needs.
type PaperCache interface {
	Warm(ctx context.Context, test *model.Test) error
	Invalidate(ctx context.Context, testID uuid.UUID) error
}

// ScheduleService manages the test lifecycle: schedule, replace questions,
// end, delete. The one-active-test invariant lives in the storage layer; this
// service only translates its violation into a typed error.
type ScheduleService struct {
	tests     ScheduleTestStore
	questions ScheduleQuestionStore
	papers    PaperCache
	log       zerolog.Logger
}

// NewScheduleService creates a new ScheduleService.
func NewScheduleService(tests ScheduleTestStore, questions ScheduleQuestionStore, papers PaperCache, log zerolog.Logger) *ScheduleService {
	return &ScheduleService{
		tests:     tests,
		questions: questions,
		papers:    papers,
		log:       log.With().Str("component", "schedule_service").Logger(),
	}
}

// Schedule creates a new active test. Fails with
// repository.ErrActiveTestExists while another test is active.
func (s *ScheduleService) Schedule(ctx context.Context, req *model.ScheduleTestRequest) (*model.Test, error) {
	test := &model.Test{
		Title:           req.Title,
		StartTime:       req.StartTime.UTC(),
		EndTime:         req.EndTime.UTC(),
		DurationSeconds: req.DurationSeconds,
		QuestionSeconds: req.QuestionSeconds,
	}
	if test.Title == "" {
		test.Title = "Assessment " + time.Now().Format("2006-01-02")
	}
	if test.DurationSeconds == 0 {
		test.DurationSeconds = defaultDurationSeconds
	}
	if test.QuestionSeconds == 0 {
		test.QuestionSeconds = defaultQuestionSeconds
	}

	if err := s.tests.Create(ctx, test); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("test_id", test.ID.String()).
		Time("start", test.StartTime).
		Time("end", test.EndTime).
		Msg("Test scheduled")
	return test, nil
}

// ReplaceQuestions swaps a test's entire question set and rebuilds the cached
// paper. Any attempts already recorded against the test are destroyed, which
// re-opens the test for students who had consumed it.
func (s *ScheduleService) ReplaceQuestions(ctx context.Context, testID uuid.UUID, req *model.ReplaceQuestionsRequest) (int64, error) {
	test, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		return 0, err
	}

	invalidated, err := s.questions.ReplaceForTest(ctx, testID, req.Questions)
	if err != nil {
		return 0, fmt.Errorf("replace questions: %w", err)
	}
	if invalidated > 0 {
		s.log.Warn().
			Str("test_id", testID.String()).
			Int64("attempts_invalidated", invalidated).
			Msg("Question replacement destroyed prior attempts")
	}

	if err := s.papers.Warm(ctx, test); err != nil {
		s.log.Error().Err(err).Str("test_id", testID.String()).Msg("Paper cache warm failed after replace")
	}
	return invalidated, nil
}

// End deactivates a test. Ending an already-ended test succeeds silently.
func (s *ScheduleService) End(ctx context.Context, testID uuid.UUID) error {
	if _, err := s.tests.GetByID(ctx, testID); err != nil {
		return err
	}
	if err := s.tests.End(ctx, testID); err != nil {
		return fmt.Errorf("end test: %w", err)
	}
	s.log.Info().Str("test_id", testID.String()).Msg("Test ended")
	return nil
}

// List returns all tests, newest first.
func (s *ScheduleService) List(ctx context.Context) ([]model.Test, error) {
	return s.tests.List(ctx)
}

// Delete removes an inactive test along with its questions and attempts.
// Active tests must be ended first.
func (s *ScheduleService) Delete(ctx context.Context, testID uuid.UUID) error {
	test, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		return err
	}
	if test.Active {
		return ErrTestStillActive
	}
	if err := s.tests.Delete(ctx, testID); err != nil {
		return fmt.Errorf("delete test: %w", err)
	}
	if err := s.papers.Invalidate(ctx, testID); err != nil {
		s.log.Warn().Err(err).Str("test_id", testID.String()).Msg("Cache invalidate failed after delete")
	}
	s.log.Info().Str("test_id", testID.String()).Msg("Test deleted")
	return nil
}
