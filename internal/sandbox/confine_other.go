//go:build !linux

package sandbox

// Confine is only available on Linux.
func Confine(opts ConfineOptions) error {
	return &SandboxSetupError{Primitive: "confine", Reason: "only supported on linux"}
}
