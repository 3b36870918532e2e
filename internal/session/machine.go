package session

import (
	"github.com/google/uuid"
	"github.com/veritest/veritest-backend/internal/model"
)

// Phase enumerates the lifecycle of one live attempt.
type Phase string

const (
	PhaseLoading     Phase = "LOADING"
	PhaseRunning     Phase = "RUNNING"
	PhaseTerminating Phase = "TERMINATING"
	PhaseSubmitted   Phase = "SUBMITTED"
)

// Reason records which terminal trigger fired first.
type Reason string

const (
	ReasonTimeExpired        Reason = "TIME_EXPIRED"
	ReasonManualSubmit       Reason = "MANUAL_SUBMIT"
	ReasonIntegrityViolation Reason = "INTEGRITY_VIOLATION"
)

// FinishReason maps a terminal reason to its persisted attempt form.
func (r Reason) FinishReason() model.FinishReason {
	switch r {
	case ReasonManualSubmit:
		return model.FinishReasonManualSubmit
	case ReasonIntegrityViolation:
		return model.FinishReasonIntegrityViolation
	default:
		return model.FinishReasonTimeExpired
	}
}

// questionState is the per-question slice of the machine.
type questionState struct {
	id       uuid.UUID
	selected string
	locked   bool
	timeLeft int
}

// TickResult reports what a single tick changed.
type TickResult struct {
	// LockedQuestion is set when this tick expired the active question's countdown.
	LockedQuestion *uuid.UUID
	// Expired is true when this tick brought the global countdown to zero.
	// Only the tick that crosses zero reports it; the machine is already
	// Terminating afterwards and further ticks are no-ops.
	Expired bool
}

// Machine is the state machine for one in-progress attempt.
//
// It is a pure reducer: time only advances through Tick, so tests drive it
// with a fake tick source and the engine drives it from one time.Ticker,
// keeping the global and per-question countdowns skew-free. The per-question
// countdown follows pause-on-switch semantics: it runs only while its
// question is the active one, suspends when another question is activated,
// and resumes from the remaining value. Not safe for concurrent use; the
// engine serializes all access on a single goroutine.
type Machine struct {
	phase      Phase
	reason     Reason
	globalLeft int
	order      []uuid.UUID
	questions  map[uuid.UUID]*questionState
	active     uuid.UUID // uuid.Nil when no question is active
}

// NewMachine builds a machine in the Loading phase. questionIDs must be in
// presentation order; both countdowns are given in seconds.
func NewMachine(questionIDs []uuid.UUID, globalSeconds, perQuestionSeconds int) *Machine {
	m := &Machine{
		phase:      PhaseLoading,
		globalLeft: globalSeconds,
		order:      make([]uuid.UUID, len(questionIDs)),
		questions:  make(map[uuid.UUID]*questionState, len(questionIDs)),
	}
	copy(m.order, questionIDs)
	for _, id := range questionIDs {
		m.questions[id] = &questionState{id: id, timeLeft: perQuestionSeconds}
	}
	return m
}

// Start moves Loading → Running. Returns false if already started.
func (m *Machine) Start() bool {
	if m.phase != PhaseLoading {
		return false
	}
	m.phase = PhaseRunning
	return true
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase { return m.phase }

// Reason returns the terminal reason, empty until a terminal trigger fired.
func (m *Machine) Reason() Reason { return m.reason }

// GlobalTimeLeft returns the remaining global seconds.
func (m *Machine) GlobalTimeLeft() int { return m.globalLeft }

// Tick advances both countdowns by one second. Outside Running it is a no-op,
// so a late tick that fires after a terminal trigger can never reopen the
// session or double-trigger submission.
func (m *Machine) Tick() TickResult {
	var res TickResult
	if m.phase != PhaseRunning {
		return res
	}

	// Active question countdown, pause-on-switch: only the active, unlocked
	// question burns time.
	if m.active != uuid.Nil {
		q := m.questions[m.active]
		if !q.locked {
			q.timeLeft--
			if q.timeLeft <= 0 {
				q.timeLeft = 0
				q.locked = true
				id := q.id
				res.LockedQuestion = &id
				m.active = uuid.Nil
			}
		}
	}

	m.globalLeft--
	if m.globalLeft <= 0 {
		m.globalLeft = 0
		if m.terminate(ReasonTimeExpired) {
			res.Expired = true
		}
	}
	return res
}

// Activate makes the question the single active one. Locked questions can
// never be re-activated; the previous active question's countdown is
// suspended at its remaining value.
func (m *Machine) Activate(id uuid.UUID) bool {
	if m.phase != PhaseRunning {
		return false
	}
	q, ok := m.questions[id]
	if !ok || q.locked {
		return false
	}
	m.active = id
	return true
}

// Select records an option for an unlocked question. Selections on locked
// questions are silently ignored, not an error. Invalid option keys are
// rejected before they reach the answer set.
func (m *Machine) Select(id uuid.UUID, option string) bool {
	if m.phase != PhaseRunning {
		return false
	}
	if !model.ValidOptionKey(option) {
		return false
	}
	q, ok := m.questions[id]
	if !ok || q.locked {
		return false
	}
	q.selected = option
	return true
}

// SubmitRequested fires the manual-submit terminal trigger.
func (m *Machine) SubmitRequested() bool {
	return m.terminate(ReasonManualSubmit)
}

// ViolationReported fires the integrity-violation terminal trigger.
// Zero tolerance: the first reported signal force-terminates the session.
func (m *Machine) ViolationReported() bool {
	return m.terminate(ReasonIntegrityViolation)
}

// terminate performs the Running → Terminating transition. Only the first
// trigger has effect; the reason is frozen at that point.
func (m *Machine) terminate(reason Reason) bool {
	if m.phase != PhaseRunning {
		return false
	}
	m.phase = PhaseTerminating
	m.reason = reason
	m.active = uuid.Nil
	return true
}

// Finalize moves Terminating → Submitted. Called after the gateway round-trip
// completes, whatever its outcome; the session is terminal either way.
func (m *Machine) Finalize() bool {
	if m.phase != PhaseTerminating {
		return false
	}
	m.phase = PhaseSubmitted
	return true
}

// Answers returns the full answer list in presentation order.
func (m *Machine) Answers() []model.AttemptAnswer {
	answers := make([]model.AttemptAnswer, 0, len(m.order))
	for _, id := range m.order {
		q := m.questions[id]
		answers = append(answers, model.AttemptAnswer{
			QuestionID:     q.id,
			SelectedOption: q.selected,
			Locked:         q.locked,
		})
	}
	return answers
}

// Counts returns the attempted and locked tallies for advisory display.
func (m *Machine) Counts() (attempted, locked int) {
	for _, q := range m.questions {
		if q.selected != "" {
			attempted++
		}
		if q.locked {
			locked++
		}
	}
	return attempted, locked
}

// QuestionSnapshot is the client-visible state of one question.
type QuestionSnapshot struct {
	ID             uuid.UUID `json:"id"`
	SelectedOption string    `json:"selected_option,omitempty"`
	Locked         bool      `json:"locked"`
	TimeLeft       int       `json:"time_left"`
}

// Snapshot is the client-visible state of the whole session.
type Snapshot struct {
	Phase            Phase              `json:"phase"`
	Reason           Reason             `json:"reason,omitempty"`
	GlobalTimeLeft   int                `json:"global_time_left"`
	ActiveQuestionID *uuid.UUID         `json:"active_question_id,omitempty"`
	Questions        []QuestionSnapshot `json:"questions"`
}

// Snapshot renders the current state for a client push.
func (m *Machine) Snapshot() Snapshot {
	snap := Snapshot{
		Phase:          m.phase,
		Reason:         m.reason,
		GlobalTimeLeft: m.globalLeft,
		Questions:      make([]QuestionSnapshot, 0, len(m.order)),
	}
	if m.active != uuid.Nil {
		id := m.active
		snap.ActiveQuestionID = &id
	}
	for _, id := range m.order {
		q := m.questions[id]
		snap.Questions = append(snap.Questions, QuestionSnapshot{
			ID:             q.id,
			SelectedOption: q.selected,
			Locked:         q.locked,
			TimeLeft:       q.timeLeft,
		})
	}
	return snap
}
