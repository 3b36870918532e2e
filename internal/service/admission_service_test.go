package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/veritest/veritest-backend/internal/model"
)

type fakeActiveTestStore struct {
	test    *model.Test
	gotNow  time.Time
	lookups int
}

func (f *fakeActiveTestStore) FindActive(_ context.Context, now time.Time) (*model.Test, error) {
	f.gotNow = now
	f.lookups++
	if f.test == nil {
		return nil, pgx.ErrNoRows
	}
	return f.test, nil
}

type fakeAttemptLookup struct {
	attempt *model.Attempt
}

func (f *fakeAttemptLookup) GetByStudentAndTest(context.Context, int, uuid.UUID) (*model.Attempt, error) {
	if f.attempt == nil {
		return nil, pgx.ErrNoRows
	}
	return f.attempt, nil
}

type fakePaperSource struct {
	paper *model.TestPaper
}

func (f *fakePaperSource) Paper(_ context.Context, test *model.Test) (*model.TestPaper, error) {
	return f.paper, nil
}

func sampleTest() *model.Test {
	return &model.Test{
		ID:              uuid.New(),
		Title:           "Midterm",
		StartTime:       time.Now().Add(-time.Hour),
		EndTime:         time.Now().Add(time.Hour),
		Active:          true,
		DurationSeconds: 1800,
		QuestionSeconds: 60,
	}
}

func samplePaper(test *model.Test) *model.TestPaper {
	return &model.TestPaper{
		TestID:          test.ID,
		Title:           test.Title,
		DurationSeconds: test.DurationSeconds,
		QuestionSeconds: test.QuestionSeconds,
		Questions: []model.QuestionForStudent{
			{ID: uuid.New(), SeqNum: 1, Text: "2+2?", Options: map[string]string{"A": "3", "B": "4"}},
		},
	}
}

func TestAdmissionNoActiveTest(t *testing.T) {
	svc := NewAdmissionService(&fakeActiveTestStore{}, &fakeAttemptLookup{}, &fakePaperSource{}, zerolog.Nop())

	decision, err := svc.RequestAdmission(context.Background(), 1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if decision.Status != AdmissionNoActiveTest {
		t.Fatalf("status = %s", decision.Status)
	}
	if decision.Test != nil || decision.Questions != nil {
		t.Fatal("empty decision must not leak test data")
	}
}

func TestAdmissionAlreadyAttempted(t *testing.T) {
	test := sampleTest()
	existing := &model.Attempt{ID: uuid.New(), TestID: test.ID, StudentID: 1, Percent: 90}
	svc := NewAdmissionService(
		&fakeActiveTestStore{test: test},
		&fakeAttemptLookup{attempt: existing},
		&fakePaperSource{},
		zerolog.Nop(),
	)

	decision, err := svc.RequestAdmission(context.Background(), 1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if decision.Status != AdmissionAlreadyAttempted {
		t.Fatalf("status = %s", decision.Status)
	}
	if decision.Attempt == nil || decision.Attempt.ID != existing.ID {
		t.Fatal("decision must carry the existing attempt")
	}
	if decision.Questions != nil {
		t.Fatal("consumed test must not expose the paper")
	}
}

func TestAdmissionGrantedCarriesSanitizedPaper(t *testing.T) {
	test := sampleTest()
	paper := samplePaper(test)
	svc := NewAdmissionService(
		&fakeActiveTestStore{test: test},
		&fakeAttemptLookup{},
		&fakePaperSource{paper: paper},
		zerolog.Nop(),
	)

	decision, err := svc.RequestAdmission(context.Background(), 1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if decision.Status != AdmissionGranted {
		t.Fatalf("status = %s", decision.Status)
	}
	if decision.Test == nil || decision.Test.ID != test.ID {
		t.Fatal("granted decision must carry the test")
	}
	if len(decision.Questions) != 1 {
		t.Fatalf("questions = %d, want 1", len(decision.Questions))
	}
	if decision.Paper != paper {
		t.Fatal("granted decision must carry the paper for session setup")
	}
}

func TestAdmissionUsesInjectedClock(t *testing.T) {
	pinned := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	store := &fakeActiveTestStore{}
	svc := NewAdmissionService(store, &fakeAttemptLookup{}, &fakePaperSource{}, zerolog.Nop()).
		WithClock(func() time.Time { return pinned })

	if _, err := svc.RequestAdmission(context.Background(), 1); err != nil {
		t.Fatalf("request: %v", err)
	}
	if !store.gotNow.Equal(pinned) {
		t.Fatalf("window check used %v, want %v", store.gotNow, pinned)
	}
}
