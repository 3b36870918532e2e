package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/veritest/veritest-backend/internal/model"
)

type recordSink struct {
	mu       sync.Mutex
	payloads []interface{}
}

func (s *recordSink) Send(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, v)
	return nil
}

func (s *recordSink) submitted(t *testing.T) SubmittedPayload {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payloads {
		if sp, ok := p.(SubmittedPayload); ok {
			return sp
		}
	}
	t.Fatal("no submitted payload was sent")
	return SubmittedPayload{}
}

type fakeGateway struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (g *fakeGateway) Submit(_ context.Context, studentID int, testID uuid.UUID, answers []model.AttemptAnswer, reason model.FinishReason, flagged bool) (*model.Attempt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &model.Attempt{
		ID:           uuid.New(),
		TestID:       testID,
		StudentID:    studentID,
		Total:        len(answers),
		FinishReason: reason,
		Percent:      50,
	}, nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func startEngine(t *testing.T, m *Machine, gw Gateway, sink Sink) (*Engine, chan time.Time, context.CancelFunc) {
	t.Helper()
	eng := NewEngine(7, uuid.New(), m, gw, sink, zerolog.Nop())
	ticks := make(chan time.Time, 16)
	ctx, cancel := context.WithCancel(context.Background())
	go eng.Run(ctx, ticks)
	return eng, ticks, cancel
}

func waitDone(t *testing.T, eng *Engine) {
	t.Helper()
	select {
	case <-eng.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not finish")
	}
}

func TestManualSubmitHandsOffExactlyOnce(t *testing.T) {
	m, ids := newTestMachine(2, 100, 100)
	gw := &fakeGateway{}
	sink := &recordSink{}
	eng, _, cancel := startEngine(t, m, gw, sink)
	defer cancel()

	eng.Offer(Event{Kind: EventActivate, QuestionID: ids[0]})
	eng.Offer(Event{Kind: EventSelect, QuestionID: ids[0], Option: "C"})
	eng.Offer(Event{Kind: EventSubmit})
	waitDone(t, eng)

	if gw.callCount() != 1 {
		t.Fatalf("gateway called %d times, want 1", gw.callCount())
	}
	sp := sink.submitted(t)
	if sp.Status != "completed" {
		t.Fatalf("status = %q", sp.Status)
	}
	if sp.Reason != model.FinishReasonManualSubmit {
		t.Fatalf("reason = %q", sp.Reason)
	}
	if sp.LocalTally.Total != 2 || sp.LocalTally.Attempted != 1 {
		t.Fatalf("local tally %+v", sp.LocalTally)
	}
	if m.Phase() != PhaseSubmitted {
		t.Fatalf("machine phase = %s", m.Phase())
	}
}

func TestGlobalExpirySubmitsWithTimeExpired(t *testing.T) {
	m, _ := newTestMachine(1, 2, 100)
	gw := &fakeGateway{}
	sink := &recordSink{}
	eng, ticks, cancel := startEngine(t, m, gw, sink)
	defer cancel()

	ticks <- time.Now()
	ticks <- time.Now()
	waitDone(t, eng)

	if gw.callCount() != 1 {
		t.Fatalf("gateway called %d times, want 1", gw.callCount())
	}
	if sp := sink.submitted(t); sp.Reason != model.FinishReasonTimeExpired {
		t.Fatalf("reason = %q", sp.Reason)
	}
}

func TestViolationForcesFlaggedSubmission(t *testing.T) {
	m, _ := newTestMachine(1, 100, 100)
	gw := &fakeGateway{}
	sink := &recordSink{}
	eng, _, cancel := startEngine(t, m, gw, sink)
	defer cancel()

	eng.Offer(Event{Kind: EventViolation, Detail: "visibility_loss"})
	waitDone(t, eng)

	if gw.callCount() != 1 {
		t.Fatalf("gateway called %d times, want 1", gw.callCount())
	}
	if sp := sink.submitted(t); sp.Reason != model.FinishReasonIntegrityViolation {
		t.Fatalf("reason = %q", sp.Reason)
	}
}

func TestDuplicateSubmissionReturnsExistingAttempt(t *testing.T) {
	existing := &model.Attempt{ID: uuid.New(), Percent: 80}
	m, _ := newTestMachine(1, 100, 100)
	gw := &fakeGateway{err: &DuplicateAttemptError{Existing: existing}}
	sink := &recordSink{}
	eng, _, cancel := startEngine(t, m, gw, sink)
	defer cancel()

	eng.Offer(Event{Kind: EventSubmit})
	waitDone(t, eng)

	sp := sink.submitted(t)
	if sp.Status != "already_submitted" {
		t.Fatalf("status = %q", sp.Status)
	}
	if sp.Attempt == nil || sp.Attempt.ID != existing.ID {
		t.Fatalf("expected the existing attempt, got %+v", sp.Attempt)
	}
}

func TestGatewayFailureStillTerminates(t *testing.T) {
	m, _ := newTestMachine(1, 100, 100)
	gw := &fakeGateway{err: errors.New("db down")}
	sink := &recordSink{}
	eng, _, cancel := startEngine(t, m, gw, sink)
	defer cancel()

	eng.Offer(Event{Kind: EventSubmit})
	waitDone(t, eng)

	sp := sink.submitted(t)
	if sp.Status != "pending_sync" {
		t.Fatalf("status = %q", sp.Status)
	}
	if sp.Attempt != nil {
		t.Fatal("no attempt should be attached on failure")
	}
	if m.Phase() != PhaseSubmitted {
		t.Fatalf("session must be terminal even on gateway failure, phase = %s", m.Phase())
	}
}

func TestDisconnectBeforeTerminalAbandonsWithoutSubmit(t *testing.T) {
	m, _ := newTestMachine(1, 100, 100)
	gw := &fakeGateway{}
	sink := &recordSink{}
	eng, _, cancel := startEngine(t, m, gw, sink)

	cancel()
	waitDone(t, eng)

	if gw.callCount() != 0 {
		t.Fatalf("abandoned session must not submit, gateway called %d times", gw.callCount())
	}
	if m.Phase() == PhaseSubmitted {
		t.Fatal("abandoned session must not be finalized")
	}
}

func TestLateTickAfterSubmitIsIgnored(t *testing.T) {
	m, _ := newTestMachine(1, 1, 100)
	gw := &fakeGateway{}
	sink := &recordSink{}
	eng, ticks, cancel := startEngine(t, m, gw, sink)
	defer cancel()

	// Queue more ticks than the countdown needs; only the crossing tick may
	// trigger submission.
	for i := 0; i < 5; i++ {
		ticks <- time.Now()
	}
	waitDone(t, eng)

	if gw.callCount() != 1 {
		t.Fatalf("gateway called %d times, want 1", gw.callCount())
	}
}
