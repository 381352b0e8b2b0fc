package models

import "time"

// AutomationEvent is a single entry of the command audit log.
type AutomationEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`   // LOGIN | MODE_CHANGE | TEMP_CHANGE | STATUS_READ | RETRY | ERROR
	Device      string    `json:"device"` // thermostat name, empty for session-level events
	Description string    `json:"description"`
	Metadata    any       `json:"metadata,omitempty"`
}

// DiagnosticArtifact indexes one captured failure: where the blobs live and
// which operation attempt produced them. Blobs themselves stay on disk.
type DiagnosticArtifact struct {
	ID         string    `json:"id"`
	CapturedAt time.Time `json:"captured_at"`
	Operation  string    `json:"operation"`
	Attempt    int       `json:"attempt"`
	ErrorKind  string    `json:"error_kind"`
	Summary    string    `json:"summary"`
	HTMLPath   string    `json:"html_path,omitempty"`
	ScreenPath string    `json:"screenshot_path,omitempty"`
}

// Credentials is the portal login pair. Write-once at session creation; it is
// never logged and never written into diagnostic artifacts.
type Credentials struct {
	Username string
	Password string
}

// String masks both fields so accidental %v formatting leaks nothing.
func (Credentials) String() string { return "credentials{***}" }
