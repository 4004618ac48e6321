package audit

import (
	"encoding/json"
	"time"
)

// EventType classifies audit events by pipeline stage.
type EventType string

const (
	EventPolicyValidate     EventType = "policy.validate"
	EventPolicyReject       EventType = "policy.reject"
	EventConfigRender       EventType = "config.render"
	EventSecretsMaterialize EventType = "secrets.materialize"
	EventSandboxDerive      EventType = "sandbox.derive"
	EventServiceLaunch      EventType = "service.launch"
	EventServiceExit        EventType = "service.exit"
	EventServiceRestart     EventType = "service.restart"
	EventServiceAbort       EventType = "service.abort"
	EventServiceStop        EventType = "service.stop"
	EventCrashLoopTrip      EventType = "service.crash_loop"
)

// Severity levels, ordered.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Event is one audit log entry. Details must never carry resolved secret
// values; callers record source paths, variable names and byte counts.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType EventType      `json:"event_type"`
	Service   string         `json:"service"`
	LaunchID  string         `json:"launch_id,omitempty"`
	Severity  Severity       `json:"severity"`
	Details   map[string]any `json:"details,omitempty"`
	HashPrev  string         `json:"hash_prev"`
}

// NewEvent returns an event stamped with the current time.
func NewEvent(t EventType, service string, sev Severity, details map[string]any) Event {
	return Event{
		Timestamp: time.Now().UTC(),
		EventType: t,
		Service:   service,
		Severity:  sev,
		Details:   details,
	}
}

// MarshalJSON implements json.Marshaler with RFC 3339 timestamps.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	return json.Marshal(&struct {
		Timestamp string `json:"timestamp"`
		*Alias
	}{
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		Alias:     (*Alias)(&e),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Event) UnmarshalJSON(data []byte) error {
	type Alias Event
	aux := &struct {
		Timestamp string `json:"timestamp"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	t, err := time.Parse(time.RFC3339Nano, aux.Timestamp)
	if err != nil {
		return err
	}
	e.Timestamp = t
	return nil
}

// Validate checks that all required fields are populated.
func (e *Event) Validate() error {
	if e.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}
	if e.EventType == "" {
		return ErrMissingEventType
	}
	if e.Service == "" {
		return ErrMissingService
	}
	if e.Severity == "" {
		return ErrMissingSeverity
	}
	return nil
}
