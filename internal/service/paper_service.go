package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/veritest/veritest-backend/internal/config"
	"github.com/veritest/veritest-backend/internal/model"
)

// ErrNoQuestions is returned when a test has an empty question set.
var ErrNoQuestions = errors.New("test has no questions")

// PaperQuestionStore is the question access the paper cache needs.
type PaperQuestionStore interface {
	ListByTest(ctx context.Context, testID uuid.UUID) ([]model.Question, error)
}

// PaperService serves the student-facing test paper and the server-only
// answer key. Both are cached in Redis (warmed at schedule time and on
// question replacement) with PostgreSQL as fallback and self-heal source.
// The paper never contains correct answers; the answer key never leaves
// the server.
type PaperService struct {
	questions PaperQuestionStore
	rdb       *redis.Client
	log       zerolog.Logger
}

// NewPaperService creates a new PaperService.
func NewPaperService(questions PaperQuestionStore, rdb *redis.Client, log zerolog.Logger) *PaperService {
	return &PaperService{
		questions: questions,
		rdb:       rdb,
		log:       log.With().Str("component", "paper_service").Logger(),
	}
}

// Warm loads a test's paper and answer key from PostgreSQL into Redis.
func (s *PaperService) Warm(ctx context.Context, test *model.Test) error {
	questions, err := s.questions.ListByTest(ctx, test.ID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	paper := buildPaper(test, questions)
	paperJSON, err := json.Marshal(paper)
	if err != nil {
		return fmt.Errorf("marshal paper: %w", err)
	}

	answerKey := make(map[string]interface{}, len(questions))
	for _, q := range questions {
		answerKey[q.ID.String()] = q.CorrectAnswer
	}

	// Cache both via one pipeline so a reader never sees a fresh paper with
	// a stale key.
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.TestPaperKey(test.ID.String()), paperJSON, 0)
	pipe.Del(ctx, config.CacheKey.TestAnswerKey(test.ID.String()))
	pipe.HSet(ctx, config.CacheKey.TestAnswerKey(test.ID.String()), answerKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("test_id", test.ID.String()).
		Int("questions", len(questions)).
		Msg("Paper cache warmed")
	return nil
}

// Invalidate drops a test's cached paper and answer key.
func (s *PaperService) Invalidate(ctx context.Context, testID uuid.UUID) error {
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, config.CacheKey.TestPaperKey(testID.String()))
	pipe.Del(ctx, config.CacheKey.TestAnswerKey(testID.String()))
	_, err := pipe.Exec(ctx)
	return err
}

// Paper retrieves the cached student paper, rebuilding from PostgreSQL on a
// cache miss so an evicted key does not block admissions.
func (s *PaperService) Paper(ctx context.Context, test *model.Test) (*model.TestPaper, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.TestPaperKey(test.ID.String())).Bytes()
	if err == nil {
		var paper model.TestPaper
		if err := json.Unmarshal(data, &paper); err != nil {
			return nil, fmt.Errorf("unmarshal paper: %w", err)
		}
		return &paper, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get paper: %w", err)
	}

	// Cache miss: rebuild and self-heal.
	questions, err := s.questions.ListByTest(ctx, test.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	if err := s.Warm(ctx, test); err != nil {
		s.log.Warn().Err(err).Msg("Self-heal warm failed")
	}
	return buildPaper(test, questions), nil
}

// AnswerKey retrieves the question → correct option map, falling back to
// PostgreSQL on a cache miss.
func (s *PaperService) AnswerKey(ctx context.Context, testID uuid.UUID) (map[string]string, error) {
	key, err := s.rdb.HGetAll(ctx, config.CacheKey.TestAnswerKey(testID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("get answer key: %w", err)
	}
	if len(key) > 0 {
		return key, nil
	}

	questions, err := s.questions.ListByTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	key = make(map[string]string, len(questions))
	for _, q := range questions {
		key[q.ID.String()] = q.CorrectAnswer
	}
	return key, nil
}

func buildPaper(test *model.Test, questions []model.Question) *model.TestPaper {
	sanitized := make([]model.QuestionForStudent, len(questions))
	for i := range questions {
		sanitized[i] = questions[i].Sanitize()
	}
	return &model.TestPaper{
		TestID:          test.ID,
		Title:           test.Title,
		DurationSeconds: test.DurationSeconds,
		QuestionSeconds: test.QuestionSeconds,
		Questions:       sanitized,
	}
}
