package session

import (
	"testing"

	"github.com/google/uuid"
)

func newTestMachine(n, globalSeconds, questionSeconds int) (*Machine, []uuid.UUID) {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	return NewMachine(ids, globalSeconds, questionSeconds), ids
}

func TestTickIsNoOpBeforeStart(t *testing.T) {
	m, _ := newTestMachine(3, 10, 5)

	res := m.Tick()
	if res.Expired || res.LockedQuestion != nil {
		t.Fatalf("tick before start should be a no-op, got %+v", res)
	}
	if m.GlobalTimeLeft() != 10 {
		t.Fatalf("global countdown moved before start: %d", m.GlobalTimeLeft())
	}
}

func TestQuestionLocksAtZeroAndStaysLocked(t *testing.T) {
	m, ids := newTestMachine(2, 100, 3)
	m.Start()

	if !m.Activate(ids[0]) {
		t.Fatal("activate failed on fresh question")
	}

	var locked *uuid.UUID
	for i := 0; i < 3; i++ {
		res := m.Tick()
		locked = res.LockedQuestion
	}
	if locked == nil || *locked != ids[0] {
		t.Fatalf("expected question %s locked on third tick, got %v", ids[0], locked)
	}

	// Lock is monotonic: no re-activation, no selection.
	if m.Activate(ids[0]) {
		t.Fatal("locked question must not be re-activatable")
	}
	if m.Select(ids[0], "A") {
		t.Fatal("selection on locked question must be ignored")
	}

	answers := m.Answers()
	if !answers[0].Locked {
		t.Fatal("answer list must report the question locked")
	}
	if answers[0].SelectedOption != "" {
		t.Fatalf("locked unanswered question must stay empty, got %q", answers[0].SelectedOption)
	}
}

func TestSelectionSurvivesLock(t *testing.T) {
	m, ids := newTestMachine(1, 100, 2)
	m.Start()
	m.Activate(ids[0])

	if !m.Select(ids[0], "B") {
		t.Fatal("select failed on active question")
	}
	m.Tick()
	m.Tick() // locks the question

	answers := m.Answers()
	if !answers[0].Locked || answers[0].SelectedOption != "B" {
		t.Fatalf("lock must preserve the last selection, got %+v", answers[0])
	}
}

func TestPerQuestionCountdownPausesOnSwitch(t *testing.T) {
	m, ids := newTestMachine(2, 100, 10)
	m.Start()

	m.Activate(ids[0])
	m.Tick()
	m.Tick()
	m.Tick() // ids[0] at 7

	m.Activate(ids[1])
	m.Tick()
	m.Tick() // ids[1] at 8, ids[0] untouched

	snap := m.Snapshot()
	byID := map[uuid.UUID]QuestionSnapshot{}
	for _, q := range snap.Questions {
		byID[q.ID] = q
	}
	if byID[ids[0]].TimeLeft != 7 {
		t.Fatalf("suspended question should hold at 7, got %d", byID[ids[0]].TimeLeft)
	}
	if byID[ids[1]].TimeLeft != 8 {
		t.Fatalf("active question should be at 8, got %d", byID[ids[1]].TimeLeft)
	}

	// Resuming continues from the remaining value.
	m.Activate(ids[0])
	m.Tick()
	if m.Snapshot().Questions[0].TimeLeft != 6 {
		t.Fatalf("resumed question should be at 6, got %d", m.Snapshot().Questions[0].TimeLeft)
	}
}

func TestInvalidOptionKeyRejected(t *testing.T) {
	m, ids := newTestMachine(1, 100, 10)
	m.Start()
	m.Activate(ids[0])

	for _, bad := range []string{"", "E", "a", "AB"} {
		if m.Select(ids[0], bad) {
			t.Fatalf("option %q must be rejected", bad)
		}
	}
	if !m.Select(ids[0], "D") {
		t.Fatal("valid option rejected")
	}
}

func TestGlobalExpiryFiresExactlyOnce(t *testing.T) {
	m, _ := newTestMachine(2, 2, 100)
	m.Start()

	if res := m.Tick(); res.Expired {
		t.Fatal("expired one tick early")
	}
	res := m.Tick()
	if !res.Expired {
		t.Fatal("second tick should expire the session")
	}
	if m.Phase() != PhaseTerminating || m.Reason() != ReasonTimeExpired {
		t.Fatalf("phase=%s reason=%s after expiry", m.Phase(), m.Reason())
	}

	// Late ticks are dead: no double expiry, no state movement.
	for i := 0; i < 5; i++ {
		if res := m.Tick(); res.Expired || res.LockedQuestion != nil {
			t.Fatalf("late tick %d had effect: %+v", i, res)
		}
	}
	if m.GlobalTimeLeft() != 0 {
		t.Fatalf("global countdown moved after expiry: %d", m.GlobalTimeLeft())
	}
}

func TestFirstTerminalTriggerWins(t *testing.T) {
	m, _ := newTestMachine(1, 100, 100)
	m.Start()

	if !m.SubmitRequested() {
		t.Fatal("first submit must fire")
	}
	if m.SubmitRequested() {
		t.Fatal("second submit must be a no-op")
	}
	if m.ViolationReported() {
		t.Fatal("violation after terminal trigger must be a no-op")
	}
	if m.Reason() != ReasonManualSubmit {
		t.Fatalf("reason overwritten: %s", m.Reason())
	}
}

func TestViolationTerminatesImmediately(t *testing.T) {
	m, ids := newTestMachine(2, 100, 100)
	m.Start()
	m.Activate(ids[0])

	if !m.ViolationReported() {
		t.Fatal("violation must terminate a running session")
	}
	if m.Phase() != PhaseTerminating || m.Reason() != ReasonIntegrityViolation {
		t.Fatalf("phase=%s reason=%s", m.Phase(), m.Reason())
	}
	// Mutations after termination are dead.
	if m.Select(ids[1], "A") {
		t.Fatal("select after termination must be rejected")
	}
	if m.Activate(ids[1]) {
		t.Fatal("activate after termination must be rejected")
	}
}

func TestFinalizeRequiresTerminating(t *testing.T) {
	m, _ := newTestMachine(1, 10, 10)
	if m.Finalize() {
		t.Fatal("finalize before termination must fail")
	}
	m.Start()
	m.SubmitRequested()
	if !m.Finalize() {
		t.Fatal("finalize after termination must succeed")
	}
	if m.Phase() != PhaseSubmitted {
		t.Fatalf("phase=%s after finalize", m.Phase())
	}
}

func TestAnswersPreserveOrderAndCounts(t *testing.T) {
	m, ids := newTestMachine(30, 10000, 3)
	m.Start()

	// Answer the first 25 questions; let 5 of the answered ones lock by
	// running their countdown out.
	for i := 0; i < 25; i++ {
		m.Activate(ids[i])
		m.Select(ids[i], "A")
	}
	for i := 0; i < 5; i++ {
		m.Activate(ids[i])
		m.Tick()
		m.Tick()
		m.Tick()
	}

	answers := m.Answers()
	if len(answers) != 30 {
		t.Fatalf("answer list length %d", len(answers))
	}
	for i, a := range answers {
		if a.QuestionID != ids[i] {
			t.Fatalf("answer %d out of presentation order", i)
		}
	}

	attempted, locked := m.Counts()
	if attempted != 25 {
		t.Fatalf("attempted = %d, want 25", attempted)
	}
	if locked != 5 {
		t.Fatalf("locked = %d, want 5", locked)
	}
}
