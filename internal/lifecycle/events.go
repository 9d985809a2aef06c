package lifecycle

import "time"

// EventType discriminates the LifecycleEvent union published on the
// controller's event bus.
type EventType string

const (
	EventStatus           EventType = "status"
	EventServerStartError EventType = "server-start-error"
	EventLogLine          EventType = "log-line"
)

// LifecycleEvent is the union type published to every subscriber of the
// controller's event bus: a running/stopped status change, a listener that
// failed to bind, or a passthrough log line for an attached admin console.
type LifecycleEvent struct {
	Type      EventType
	Timestamp time.Time

	// Status fields (EventStatus)
	Running  bool
	Starting bool

	// ServerStartError fields (EventServerStartError)
	Service string
	Err     string

	// LogLine fields (EventLogLine)
	Line string
}
