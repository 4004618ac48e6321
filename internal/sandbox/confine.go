package sandbox

// ConfineOptions describes what the shim does inside the unit immediately
// before the agent binary is executed.
type ConfineOptions struct {
	// Landlock restricts the filesystem: Writable paths keep write access
	// and everything else is read-only.
	Landlock bool
	Writable []string
	Binary   string
	Args     []string
	// Env is the complete agent environment, credentials included.
	Env []string
}
