package supervisor

import "fmt"

// RuntimeCrash reports an agent that started and then exited non-zero.
// The restart policy recovers it.
type RuntimeCrash struct {
	LaunchID string
	ExitCode int
}

func (e *RuntimeCrash) Error() string {
	return fmt.Sprintf("agent exited with status %d (launch %s)", e.ExitCode, e.LaunchID)
}

// CrashLoopError is returned when the crash-loop breaker trips.
type CrashLoopError struct {
	Failures uint32
	Last     error
}

func (e *CrashLoopError) Error() string {
	return fmt.Sprintf("crash loop: %d consecutive failures, giving up: %v", e.Failures, e.Last)
}

func (e *CrashLoopError) Unwrap() error { return e.Last }

// StageError wraps a pre-launch failure with the stage it happened in.
// Pre-launch failures are never retried.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// Pre-launch stages.
const (
	StageMaterialize = "materialize"
	StageSandbox     = "sandbox"
)
