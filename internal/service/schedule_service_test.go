package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/veritest/veritest-backend/internal/model"
	"github.com/veritest/veritest-backend/internal/repository"
)

type fakeScheduleTestStore struct {
	tests      map[uuid.UUID]*model.Test
	hasActive  bool
	endCalls   int
	deleted    []uuid.UUID
}

func newFakeScheduleTestStore() *fakeScheduleTestStore {
	return &fakeScheduleTestStore{tests: make(map[uuid.UUID]*model.Test)}
}

func (f *fakeScheduleTestStore) Create(_ context.Context, t *model.Test) error {
	if f.hasActive {
		return repository.ErrActiveTestExists
	}
	t.ID = uuid.New()
	t.Active = true
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	f.tests[t.ID] = t
	f.hasActive = true
	return nil
}

func (f *fakeScheduleTestStore) GetByID(_ context.Context, id uuid.UUID) (*model.Test, error) {
	t, ok := f.tests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return t, nil
}

func (f *fakeScheduleTestStore) End(_ context.Context, id uuid.UUID) error {
	f.endCalls++
	if t, ok := f.tests[id]; ok && t.Active {
		t.Active = false
		f.hasActive = false
	}
	return nil
}

func (f *fakeScheduleTestStore) List(context.Context) ([]model.Test, error) {
	out := make([]model.Test, 0, len(f.tests))
	for _, t := range f.tests {
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeScheduleTestStore) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.tests, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeScheduleQuestionStore struct {
	invalidated int64
	replaced    int
}

func (f *fakeScheduleQuestionStore) ReplaceForTest(_ context.Context, _ uuid.UUID, inputs []model.QuestionInput) (int64, error) {
	f.replaced = len(inputs)
	return f.invalidated, nil
}

type fakePaperCache struct {
	warmed      int
	invalidates int
}

func (f *fakePaperCache) Warm(context.Context, *model.Test) error {
	f.warmed++
	return nil
}

func (f *fakePaperCache) Invalidate(context.Context, uuid.UUID) error {
	f.invalidates++
	return nil
}

func scheduleRequest() *model.ScheduleTestRequest {
	return &model.ScheduleTestRequest{
		Title:     "Finals",
		StartTime: time.Now(),
		EndTime:   time.Now().Add(2 * time.Hour),
	}
}

func newScheduleFixture() (*ScheduleService, *fakeScheduleTestStore, *fakeScheduleQuestionStore, *fakePaperCache) {
	tests := newFakeScheduleTestStore()
	questions := &fakeScheduleQuestionStore{}
	papers := &fakePaperCache{}
	return NewScheduleService(tests, questions, papers, zerolog.Nop()), tests, questions, papers
}

func TestScheduleAppliesDefaults(t *testing.T) {
	svc, _, _, _ := newScheduleFixture()

	test, err := svc.Schedule(context.Background(), scheduleRequest())
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if test.DurationSeconds != 1800 {
		t.Errorf("duration = %d, want 1800", test.DurationSeconds)
	}
	if test.QuestionSeconds != 60 {
		t.Errorf("question seconds = %d, want 60", test.QuestionSeconds)
	}
	if !test.Active {
		t.Error("new test must be active")
	}
}

func TestScheduleRejectsSecondActive(t *testing.T) {
	svc, _, _, _ := newScheduleFixture()

	if _, err := svc.Schedule(context.Background(), scheduleRequest()); err != nil {
		t.Fatalf("first schedule: %v", err)
	}
	_, err := svc.Schedule(context.Background(), scheduleRequest())
	if !errors.Is(err, repository.ErrActiveTestExists) {
		t.Fatalf("err = %v, want ErrActiveTestExists", err)
	}
}

func TestScheduleAllowedAfterEnd(t *testing.T) {
	svc, _, _, _ := newScheduleFixture()

	first, err := svc.Schedule(context.Background(), scheduleRequest())
	if err != nil {
		t.Fatalf("first schedule: %v", err)
	}
	if err := svc.End(context.Background(), first.ID); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := svc.Schedule(context.Background(), scheduleRequest()); err != nil {
		t.Fatalf("schedule after end: %v", err)
	}
}

func TestEndIsIdempotent(t *testing.T) {
	svc, tests, _, _ := newScheduleFixture()

	test, _ := svc.Schedule(context.Background(), scheduleRequest())
	if err := svc.End(context.Background(), test.ID); err != nil {
		t.Fatalf("first end: %v", err)
	}
	if err := svc.End(context.Background(), test.ID); err != nil {
		t.Fatalf("second end must succeed, got %v", err)
	}
	if tests.endCalls != 2 {
		t.Fatalf("end calls = %d", tests.endCalls)
	}
}

func TestReplaceQuestionsReportsInvalidationsAndRewarms(t *testing.T) {
	svc, _, questions, papers := newScheduleFixture()
	questions.invalidated = 3

	test, _ := svc.Schedule(context.Background(), scheduleRequest())
	warmedBefore := papers.warmed

	req := &model.ReplaceQuestionsRequest{
		Questions: []model.QuestionInput{
			{SeqNum: 1, Text: "Q1", Options: map[string]string{"A": "x", "B": "y"}, CorrectAnswer: "A"},
			{SeqNum: 2, Text: "Q2", Options: map[string]string{"A": "x", "B": "y"}, CorrectAnswer: "B"},
		},
	}
	invalidated, err := svc.ReplaceQuestions(context.Background(), test.ID, req)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if invalidated != 3 {
		t.Errorf("invalidated = %d, want 3", invalidated)
	}
	if questions.replaced != 2 {
		t.Errorf("replaced = %d, want 2", questions.replaced)
	}
	if papers.warmed != warmedBefore+1 {
		t.Error("paper cache must be rewarmed after replacement")
	}
}

func TestDeleteRejectsActiveTest(t *testing.T) {
	svc, tests, _, _ := newScheduleFixture()

	test, _ := svc.Schedule(context.Background(), scheduleRequest())
	err := svc.Delete(context.Background(), test.ID)
	if !errors.Is(err, ErrTestStillActive) {
		t.Fatalf("err = %v, want ErrTestStillActive", err)
	}
	if len(tests.deleted) != 0 {
		t.Fatal("active test must not be deleted")
	}
}

func TestDeleteInactiveTestInvalidatesCache(t *testing.T) {
	svc, tests, _, papers := newScheduleFixture()

	test, _ := svc.Schedule(context.Background(), scheduleRequest())
	_ = svc.End(context.Background(), test.ID)

	if err := svc.Delete(context.Background(), test.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(tests.deleted) != 1 || tests.deleted[0] != test.ID {
		t.Fatal("test not deleted")
	}
	if papers.invalidates != 1 {
		t.Errorf("cache invalidates = %d, want 1", papers.invalidates)
	}
}
