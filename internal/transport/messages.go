package transport

import "github.com/MrWong99/vastaa/internal/agent"

// Message types carried in the "type" field of text messages.
const (
	TypeSettingsUpdate = "settings_update"
	TypeAgentStatus    = "agent_status"
	TypeSession        = "session"
	TypeError          = "error"
)

// envelope is decoded first to dispatch a client text message.
type envelope struct {
	Type string `json:"type"`
}

// SettingsUpdate changes per-session settings. Absent fields are left
// unchanged.
type SettingsUpdate struct {
	Type      string   `json:"type"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// AgentStatus is pushed to the client periodically.
type AgentStatus struct {
	Type string `json:"type"`
	agent.Status
}

// SessionHello is the first message on a new connection.
type SessionHello struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id"`
	SampleRate int    `json:"sample_rate"`
	FrameSize  int    `json:"frame_size"`
}

// ErrorMessage reports a rejected client message. The connection stays
// open.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
