package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionActivate  Action = "activate"
	ActionSelect    Action = "select"
	ActionViolation Action = "violation"
	ActionSubmit    Action = "submit"
	ActionPing      Action = "ping"
)

// RequestPayload is the single inbound message shape for the session stream.
// Fields beyond Action are interpreted per action; unknown shapes are
// rejected at this boundary rather than guessed at deeper in the core.
type RequestPayload struct {
	Action Action `json:"action"`
	// QID identifies the question for activate/select.
	QID string `json:"q_id,omitempty"`
	// Option is the selected option key (A–D) for select.
	Option string `json:"option,omitempty"`
	// Kind names the integrity signal (visibility_loss, window_blur,
	// clipboard, context_menu) for violation.
	Kind string `json:"kind,omitempty"`
	// Detail carries optional client context for violation.
	Detail string `json:"detail,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError Event = "error"
	EventPong  Event = "pong"
)

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
