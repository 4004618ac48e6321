package policy

// DefaultLists returns the built-in allow/deny lists. A fresh copy is
// returned on every call so callers may not mutate shared state.
func DefaultLists() ListSpec {
	return ListSpec{
		Commands: []string{
			"git", "npm", "cargo", "ls", "cat", "grep",
			"find", "echo", "pwd", "wc", "head", "tail",
		},
		ToolPackages: []string{
			"/usr/local/bin",
			"/usr/bin",
			"/bin",
		},
		ForbiddenPaths: []string{
			"/etc", "/root", "/home", "/usr", "/bin", "/sbin",
			"/lib", "/opt", "/boot", "/dev", "/proc", "/sys",
			"/var", "/tmp",
			"~/.ssh", "~/.gnupg", "~/.aws", "~/.config",
		},
	}
}
