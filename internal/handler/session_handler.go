package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/veritest/veritest-backend/internal/config"
	"github.com/veritest/veritest-backend/internal/middleware"
	"github.com/veritest/veritest-backend/internal/service"
	"github.com/veritest/veritest-backend/internal/session"
	ws "github.com/veritest/veritest-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// connSink adapts a WebSocket connection to the engine's outbound interface.
// The engine goroutine and the ping replies in the read pump both write, so
// sends are serialized with a mutex.
type connSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *connSink) Send(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ws.WriteTyped(s.conn, v)
}

// SessionHandler hosts live assessment sessions over WebSocket. One
// connection is one ephemeral session: admission, countdowns, locking, and
// the terminal submission handoff all live server-side for its duration.
type SessionHandler struct {
	admissionService  *service.AdmissionService
	submissionService *service.SubmissionService
	rdb               *redis.Client
	log               zerolog.Logger
	upgrader          websocket.Upgrader
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(
	admissionService *service.AdmissionService,
	submissionService *service.SubmissionService,
	rdb *redis.Client,
	log zerolog.Logger,
	allowedOrigins []string,
) *SessionHandler {
	return &SessionHandler{
		admissionService:  admissionService,
		submissionService: submissionService,
		rdb:               rdb,
		log:               log.With().Str("component", "session_handler").Logger(),
		upgrader:          buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/student/session
// Upgrades to WebSocket and runs one live session against the active test.
func (h *SessionHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	studentID := claims.UserID

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	// Admission is re-checked at upgrade time: the REST admission answer may
	// be stale by the time the stream opens.
	decision, err := h.admissionService.RequestAdmission(c.Request.Context(), studentID)
	if err != nil {
		h.log.Error().Err(err).Msg("Admission check failed")
		ws.WriteError(conn, "admission check failed")
		return
	}
	switch decision.Status {
	case service.AdmissionNoActiveTest:
		ws.WriteError(conn, "no test available right now")
		return
	case service.AdmissionAlreadyAttempted:
		ws.WriteError(conn, "test already attempted")
		return
	}

	paper := decision.Paper
	test := decision.Test

	questionIDs := make([]uuid.UUID, len(paper.Questions))
	for i := range paper.Questions {
		questionIDs[i] = paper.Questions[i].ID
	}

	machine := session.NewMachine(questionIDs, test.DurationSeconds, test.QuestionSeconds)
	sink := &connSink{conn: conn}
	engine := session.NewEngine(studentID, test.ID, machine, h.submissionService, sink, h.log)

	sessionLog := h.log.With().
		Int("student_id", studentID).
		Str("test_id", test.ID.String()).
		Logger()
	sessionLog.Info().Int("questions", len(questionIDs)).Msg("Session opened")

	// Started payload carries the sanitized paper and the initial state so
	// the client renders before the first tick.
	machine.Start()
	if err := sink.Send(session.StartedPayload{
		Event: "started",
		Paper: paper,
		State: machine.Snapshot(),
	}); err != nil {
		sessionLog.Warn().Err(err).Msg("Failed to send start payload")
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	go engine.Run(ctx, ticker.C)

	h.readPump(cancel, conn, engine, sink, sessionLog, studentID, test.ID)

	// The engine either finished with a terminal submission or was cancelled
	// by the read pump; wait for it so the connection outlives the handoff.
	<-engine.Done()
	sessionLog.Debug().Msg("Session closed")
}

// readPump translates inbound frames into engine events until the connection
// drops or the engine stops accepting.
func (h *SessionHandler) readPump(
	cancel context.CancelFunc,
	conn *websocket.Conn,
	engine *session.Engine,
	sink *connSink,
	log zerolog.Logger,
	studentID int,
	testID uuid.UUID,
) {
	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("Unexpected close")
			} else {
				log.Debug().Msg("Connection closed")
			}
			cancel()
			return
		}

		switch msg.Action {
		case ws.ActionPing:
			_ = sink.Send(ws.PongResponse{Event: ws.EventPong})

		case ws.ActionActivate, ws.ActionSelect:
			qid, err := uuid.Parse(msg.QID)
			if err != nil {
				ws.WriteError(conn, "invalid q_id format")
				continue
			}
			ev := session.Event{Kind: session.EventActivate, QuestionID: qid}
			if msg.Action == ws.ActionSelect {
				ev = session.Event{Kind: session.EventSelect, QuestionID: qid, Option: msg.Option}
			}
			if !engine.Offer(ev) {
				return
			}

		case ws.ActionViolation:
			h.queueIntegrityEvent(studentID, testID, msg.Kind, msg.Detail)
			if !engine.Offer(session.Event{Kind: session.EventViolation, Detail: msg.Kind}) {
				return
			}

		case ws.ActionSubmit:
			if !engine.Offer(session.Event{Kind: session.EventSubmit}) {
				return
			}

		default:
			log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(msg.Action))
		}
	}
}

// queueIntegrityEvent pushes an audit record onto the Redis queue; a
// background worker batches these into PostgreSQL. Fire-and-forget: the
// session's forced termination never waits on the audit trail.
func (h *SessionHandler) queueIntegrityEvent(studentID int, testID uuid.UUID, kind, detail string) {
	payload, _ := json.Marshal(map[string]interface{}{
		"student_id":  studentID,
		"test_id":     testID.String(),
		"kind":        kind,
		"detail":      detail,
		"occurred_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err := h.rdb.RPush(context.Background(), config.WorkerKey.IntegrityEventsQueue, payload).Err(); err != nil {
		h.log.Error().Err(err).Msg("Failed to queue integrity event")
	}
}
