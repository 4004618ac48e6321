package audit

import "time"

// Launch groups the journal events of one agent launch.
type Launch struct {
	ID       string    `json:"launch_id"`
	Unit     string    `json:"unit,omitempty"`
	Started  time.Time `json:"started"`
	Ended    time.Time `json:"ended,omitempty"`
	ExitCode *int      `json:"exit_code,omitempty"`
	// AbortedAt names the pipeline stage that stopped the launch.
	AbortedAt string `json:"aborted_at,omitempty"`
	// Positions are indexes into the journal.
	Positions []int `json:"positions"`
}

// Running reports whether the journal has no terminal event for l.
func (l *Launch) Running() bool {
	return l.ExitCode == nil && l.AbortedAt == ""
}

// IndexLaunches groups events by launch ID in order of first appearance.
// Events without a launch ID, such as policy and stop events, are skipped.
func IndexLaunches(events []Event) []Launch {
	var launches []Launch
	byID := make(map[string]int)

	for i, e := range events {
		if e.LaunchID == "" {
			continue
		}
		idx, ok := byID[e.LaunchID]
		if !ok {
			idx = len(launches)
			byID[e.LaunchID] = idx
			launches = append(launches, Launch{ID: e.LaunchID, Started: e.Timestamp})
		}
		l := &launches[idx]
		l.Positions = append(l.Positions, i)

		switch e.EventType {
		case EventServiceLaunch:
			if unit, ok := e.Details["unit"].(string); ok {
				l.Unit = unit
			}
		case EventServiceExit:
			if code, ok := intDetail(e.Details["exit_code"]); ok {
				l.ExitCode = &code
			}
			l.Ended = e.Timestamp
		case EventServiceAbort:
			if stage, ok := e.Details["stage"].(string); ok {
				l.AbortedAt = stage
			}
			l.Ended = e.Timestamp
		}
	}
	return launches
}

// FindLaunch returns the launch with the given ID.
func FindLaunch(events []Event, id string) (*Launch, bool) {
	for _, l := range IndexLaunches(events) {
		if l.ID == id {
			return &l, true
		}
	}
	return nil, false
}

// intDetail accepts both in-memory ints and numbers decoded from JSON.
func intDetail(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
