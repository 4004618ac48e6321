package sandbox

import "fmt"

// SandboxSetupError reports an isolation primitive the host cannot
// provide. The agent is never started unconfined.
type SandboxSetupError struct {
	Primitive string
	Reason    string
	Err       error
}

func (e *SandboxSetupError) Error() string {
	msg := fmt.Sprintf("sandbox setup: %s: %s", e.Primitive, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SandboxSetupError) Unwrap() error { return e.Err }
