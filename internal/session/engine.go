package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/veritest/veritest-backend/internal/model"
)

// Gateway accepts exactly one terminal submission per (student, test) pair.
type Gateway interface {
	Submit(ctx context.Context, studentID int, testID uuid.UUID, answers []model.AttemptAnswer, reason model.FinishReason, flagged bool) (*model.Attempt, error)
}

// DuplicateAttemptError is returned by a Gateway when an attempt already
// exists for the pair. The engine treats it as success-with-existing-record.
type DuplicateAttemptError struct {
	Existing *model.Attempt
}

func (e *DuplicateAttemptError) Error() string {
	return "attempt already exists for this student and test"
}

// Sink receives outbound session payloads, typically a WebSocket connection.
type Sink interface {
	Send(v interface{}) error
}

// EventKind enumerates inbound session events.
type EventKind int

const (
	EventActivate EventKind = iota
	EventSelect
	EventViolation
	EventSubmit
)

// Event is one inbound mutation request from the student's client.
type Event struct {
	Kind       EventKind
	QuestionID uuid.UUID
	Option     string
	Detail     string
}

// ─── Outbound payloads ──────────────────────────────────────────────

type StartedPayload struct {
	Event string           `json:"event"`
	Paper *model.TestPaper `json:"paper"`
	State Snapshot         `json:"state"`
}

type TickPayload struct {
	Event            string     `json:"event"`
	GlobalTimeLeft   int        `json:"global_time_left"`
	ActiveQuestionID *uuid.UUID `json:"active_question_id,omitempty"`
	ActiveTimeLeft   *int       `json:"active_time_left,omitempty"`
}

type StatePayload struct {
	Event string   `json:"event"`
	State Snapshot `json:"state"`
}

type LockedPayload struct {
	Event      string    `json:"event"`
	QuestionID uuid.UUID `json:"question_id"`
}

// LocalTally is the advisory, non-authoritative tally computed in the engine.
// It carries no correctness information; scoring happens in the gateway.
type LocalTally struct {
	Total     int `json:"total"`
	Attempted int `json:"attempted"`
	Locked    int `json:"locked"`
}

type SubmittedPayload struct {
	Event      string             `json:"event"`
	Status     string             `json:"status"` // completed | already_submitted | pending_sync
	Reason     model.FinishReason `json:"reason"`
	Attempt    *model.Attempt     `json:"attempt,omitempty"`
	LocalTally LocalTally         `json:"local_tally"`
}

// Engine drives one Machine from a single tick source and an inbound event
// stream, and performs the exactly-once handoff to the Gateway on the first
// terminal trigger. All machine access is serialized on the Run goroutine.
type Engine struct {
	studentID int
	testID    uuid.UUID
	machine   *Machine
	gateway   Gateway
	sink      Sink
	events    chan Event
	done      chan struct{}
	log       zerolog.Logger
}

// NewEngine creates an engine around a freshly built machine.
func NewEngine(studentID int, testID uuid.UUID, machine *Machine, gateway Gateway, sink Sink, log zerolog.Logger) *Engine {
	return &Engine{
		studentID: studentID,
		testID:    testID,
		machine:   machine,
		gateway:   gateway,
		sink:      sink,
		events:    make(chan Event, 16),
		done:      make(chan struct{}),
		log: log.With().
			Int("student_id", studentID).
			Str("test_id", testID.String()).
			Logger(),
	}
}

// Done is closed when Run has returned.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Offer hands an inbound event to the engine. Returns false once the engine
// has stopped, so read pumps can exit instead of blocking.
func (e *Engine) Offer(ev Event) bool {
	select {
	case e.events <- ev:
		return true
	case <-e.done:
		return false
	}
}

// Run starts the machine and processes ticks and events until a terminal
// trigger fires or ctx is cancelled. A cancelled context means the client
// vanished before any terminal trigger: the ephemeral session is discarded
// without submission, and the student may be re-admitted later.
func (e *Engine) Run(ctx context.Context, ticks <-chan time.Time) {
	defer close(e.done)

	e.machine.Start()

	for {
		select {
		case <-ctx.Done():
			e.log.Debug().Msg("Session abandoned before terminal trigger")
			return

		case <-ticks:
			res := e.machine.Tick()
			if res.LockedQuestion != nil {
				_ = e.sink.Send(LockedPayload{Event: "locked", QuestionID: *res.LockedQuestion})
			}
			if res.Expired {
				e.finish(ctx)
				return
			}
			_ = e.sink.Send(e.tickPayload())

		case ev := <-e.events:
			switch ev.Kind {
			case EventActivate:
				if e.machine.Activate(ev.QuestionID) {
					_ = e.sink.Send(e.tickPayload())
				}
			case EventSelect:
				// Locked or unknown questions are silently ignored.
				e.machine.Select(ev.QuestionID, ev.Option)
			case EventViolation:
				if e.machine.ViolationReported() {
					e.log.Warn().Str("detail", ev.Detail).Msg("Integrity violation, forcing submission")
					e.finish(ctx)
					return
				}
			case EventSubmit:
				if e.machine.SubmitRequested() {
					e.finish(ctx)
					return
				}
			}
		}
	}
}

// tickPayload builds the compact per-second countdown push.
func (e *Engine) tickPayload() TickPayload {
	snap := e.machine.Snapshot()
	p := TickPayload{
		Event:            "tick",
		GlobalTimeLeft:   snap.GlobalTimeLeft,
		ActiveQuestionID: snap.ActiveQuestionID,
	}
	if snap.ActiveQuestionID != nil {
		for i := range snap.Questions {
			if snap.Questions[i].ID == *snap.ActiveQuestionID {
				left := snap.Questions[i].TimeLeft
				p.ActiveTimeLeft = &left
				break
			}
		}
	}
	return p
}

// finish performs the single gateway handoff. The machine is already
// Terminating, so ticks and mutations are dead; whatever the gateway
// round-trip returns, the session ends in Submitted and a result payload is
// pushed so the client can always render something.
func (e *Engine) finish(ctx context.Context) {
	reason := e.machine.Reason().FinishReason()
	flagged := e.machine.Reason() == ReasonIntegrityViolation
	answers := e.machine.Answers()
	attempted, locked := e.machine.Counts()

	payload := SubmittedPayload{
		Event:  "submitted",
		Reason: reason,
		LocalTally: LocalTally{
			Total:     len(answers),
			Attempted: attempted,
			Locked:    locked,
		},
	}

	// The gateway call must survive the client hanging up mid-submission.
	submitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	attempt, err := e.gateway.Submit(submitCtx, e.studentID, e.testID, answers, reason, flagged)
	var dup *DuplicateAttemptError
	switch {
	case err == nil:
		payload.Status = "completed"
		payload.Attempt = attempt
		e.log.Info().
			Str("attempt_id", attempt.ID.String()).
			Int("percent", attempt.Percent).
			Str("reason", string(reason)).
			Msg("Attempt submitted")
	case errors.As(err, &dup):
		// Another tab or session won the race; their record stands.
		payload.Status = "already_submitted"
		payload.Attempt = dup.Existing
		e.log.Info().Msg("Duplicate submission, returning existing attempt")
	default:
		// Network or store failure: the session is terminal regardless and the
		// client falls back to the locally computed tally for display.
		payload.Status = "pending_sync"
		e.log.Error().Err(err).Msg("Gateway submission failed, session terminal anyway")
	}

	e.machine.Finalize()
	_ = e.sink.Send(payload)
}
