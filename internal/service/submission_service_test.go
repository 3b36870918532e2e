package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/veritest/veritest-backend/internal/model"
	"github.com/veritest/veritest-backend/internal/session"
)

type fakeKeySource struct {
	key map[string]string
}

func (f *fakeKeySource) AnswerKey(context.Context, uuid.UUID) (map[string]string, error) {
	return f.key, nil
}

type fakeAttemptStore struct {
	mu       sync.Mutex
	attempts map[string]*model.Attempt
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{attempts: make(map[string]*model.Attempt)}
}

func pairKey(studentID int, testID uuid.UUID) string {
	return fmt.Sprintf("%d:%s", studentID, testID)
}

func (f *fakeAttemptStore) Create(_ context.Context, a *model.Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := pairKey(a.StudentID, a.TestID)
	if _, exists := f.attempts[k]; exists {
		// Mirrors the conditional insert: no row returned on conflict.
		return pgx.ErrNoRows
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	stored := *a
	f.attempts[k] = &stored
	return nil
}

func (f *fakeAttemptStore) GetByStudentAndTest(_ context.Context, studentID int, testID uuid.UUID) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[pairKey(studentID, testID)]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return a, nil
}

// buildScenario builds a 30-question key and an answer sheet with 20 correct,
// 5 wrong, and 5 locked unanswered questions.
func buildScenario() (map[string]string, []model.AttemptAnswer) {
	key := make(map[string]string, 30)
	answers := make([]model.AttemptAnswer, 0, 30)
	for i := 0; i < 30; i++ {
		id := uuid.New()
		key[id.String()] = "A"
		switch {
		case i < 20:
			answers = append(answers, model.AttemptAnswer{QuestionID: id, SelectedOption: "A"})
		case i < 25:
			answers = append(answers, model.AttemptAnswer{QuestionID: id, SelectedOption: "B"})
		default:
			answers = append(answers, model.AttemptAnswer{QuestionID: id, Locked: true})
		}
	}
	return key, answers
}

func TestSubmitScoresServerSide(t *testing.T) {
	key, answers := buildScenario()
	store := newFakeAttemptStore()
	svc := NewSubmissionService(&fakeKeySource{key: key}, store, zerolog.Nop())

	attempt, err := svc.Submit(context.Background(), 1, uuid.New(), answers, model.FinishReasonManualSubmit, false)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if attempt.Total != 30 {
		t.Errorf("total = %d, want 30", attempt.Total)
	}
	if attempt.Correct != 20 {
		t.Errorf("correct = %d, want 20", attempt.Correct)
	}
	if attempt.Wrong != 5 {
		t.Errorf("wrong = %d, want 5", attempt.Wrong)
	}
	if attempt.Attempted != 25 {
		t.Errorf("attempted = %d, want 25", attempt.Attempted)
	}
	if attempt.Locked != 5 {
		t.Errorf("locked = %d, want 5", attempt.Locked)
	}
	// round(20/30*100) = round(66.67) = 67
	if attempt.Percent != 67 {
		t.Errorf("percent = %d, want 67", attempt.Percent)
	}
	if attempt.ID == uuid.Nil || attempt.CreatedAt.IsZero() {
		t.Error("server must assign id and created_at")
	}
}

func TestSubmitTotalComesFromKeyNotSheet(t *testing.T) {
	key, answers := buildScenario()
	store := newFakeAttemptStore()
	svc := NewSubmissionService(&fakeKeySource{key: key}, store, zerolog.Nop())

	// A truncated sheet must not shrink the denominator.
	attempt, err := svc.Submit(context.Background(), 1, uuid.New(), answers[:10], model.FinishReasonTimeExpired, false)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if attempt.Total != 30 {
		t.Errorf("total = %d, want 30", attempt.Total)
	}
	// 10 correct of 30: round(33.33) = 33
	if attempt.Percent != 33 {
		t.Errorf("percent = %d, want 33", attempt.Percent)
	}
}

func TestSubmitSecondAttemptReturnsDuplicate(t *testing.T) {
	key, answers := buildScenario()
	store := newFakeAttemptStore()
	svc := NewSubmissionService(&fakeKeySource{key: key}, store, zerolog.Nop())
	testID := uuid.New()

	first, err := svc.Submit(context.Background(), 1, testID, answers, model.FinishReasonManualSubmit, false)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	_, err = svc.Submit(context.Background(), 1, testID, answers, model.FinishReasonTimeExpired, false)
	var dup *session.DuplicateAttemptError
	if !errors.As(err, &dup) {
		t.Fatalf("second submit err = %v, want DuplicateAttemptError", err)
	}
	if dup.Existing == nil || dup.Existing.ID != first.ID {
		t.Fatal("duplicate error must carry the first attempt")
	}
	if dup.Existing.FinishReason != model.FinishReasonManualSubmit {
		t.Fatalf("winning record mutated: %s", dup.Existing.FinishReason)
	}
}

func TestSubmitConcurrentRaceProducesOneAttempt(t *testing.T) {
	key, answers := buildScenario()
	store := newFakeAttemptStore()
	svc := NewSubmissionService(&fakeKeySource{key: key}, store, zerolog.Nop())
	testID := uuid.New()

	const racers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, dups := 0, 0

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Submit(context.Background(), 42, testID, answers, model.FinishReasonManualSubmit, false)
			mu.Lock()
			defer mu.Unlock()
			var dup *session.DuplicateAttemptError
			switch {
			case err == nil:
				wins++
			case errors.As(err, &dup):
				dups++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("wins = %d, want exactly 1", wins)
	}
	if dups != racers-1 {
		t.Errorf("duplicates = %d, want %d", dups, racers-1)
	}
	if len(store.attempts) != 1 {
		t.Errorf("stored attempts = %d, want 1", len(store.attempts))
	}
}

func TestSubmitFlaggedAttemptPersistsReason(t *testing.T) {
	key, answers := buildScenario()
	store := newFakeAttemptStore()
	svc := NewSubmissionService(&fakeKeySource{key: key}, store, zerolog.Nop())

	attempt, err := svc.Submit(context.Background(), 1, uuid.New(), answers, model.FinishReasonIntegrityViolation, true)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !attempt.IntegrityFlagged {
		t.Error("integrity flag lost")
	}
	if attempt.FinishReason != model.FinishReasonIntegrityViolation {
		t.Errorf("finish reason = %s", attempt.FinishReason)
	}
	// A flagged attempt still scores: partial credit stands.
	if attempt.Correct != 20 {
		t.Errorf("correct = %d, want 20", attempt.Correct)
	}
}
