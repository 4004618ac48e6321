package secrets

import (
	"bytes"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/awnumar/memguard"

	"github.com/agentcell/agentcell/internal/policy"
)

// Secret is one resolved secret held in locked memory.
type Secret struct {
	Ref policy.SecretRef
	buf *memguard.LockedBuffer
}

// Value returns a copy of the secret in ordinary memory.
func (s *Secret) Value() string {
	if s.buf == nil || !s.buf.IsAlive() {
		return ""
	}
	return string(s.buf.Bytes())
}

// Len returns the secret length in bytes.
func (s *Secret) Len() int {
	if s.buf == nil || !s.buf.IsAlive() {
		return 0
	}
	return s.buf.Size()
}

// Resolved is the set of secrets read for one process start.
type Resolved struct {
	Secrets []*Secret
}

// Destroy wipes every secret buffer. Safe to call more than once.
func (r *Resolved) Destroy() {
	if r == nil {
		return
	}
	for _, s := range r.Secrets {
		if s.buf != nil {
			s.buf.Destroy()
		}
	}
}

// LoadSecrets reads every ref's source file in order. Content is trimmed of
// surrounding whitespace and must be valid UTF-8, since TOML strings cannot
// carry anything else. The first unreadable, empty or invalid source
// aborts the load and wipes anything read so far.
func LoadSecrets(refs []policy.SecretRef) (*Resolved, error) {
	r := &Resolved{}
	for _, ref := range refs {
		s, err := loadSecret(ref)
		if err != nil {
			r.Destroy()
			return nil, err
		}
		r.Secrets = append(r.Secrets, s)
	}
	return r, nil
}

func loadSecret(ref policy.SecretRef) (*Secret, error) {
	if ref.SourcePath == "" {
		return nil, &SecretReadError{Name: ref.Name, Path: ref.SourcePath, Err: fmt.Errorf("no source path declared")}
	}

	data, err := os.ReadFile(ref.SourcePath)
	if err != nil {
		return nil, &SecretReadError{Name: ref.Name, Path: ref.SourcePath, Err: err}
	}
	defer memguard.WipeBytes(data)

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &EmptySecretError{Name: ref.Name, Path: ref.SourcePath}
	}
	if !utf8.Valid(trimmed) {
		return nil, &InvalidSecretError{Name: ref.Name, Path: ref.SourcePath, Reason: "content is not valid UTF-8"}
	}
	if bytes.IndexByte(trimmed, 0) >= 0 {
		return nil, &InvalidSecretError{Name: ref.Name, Path: ref.SourcePath, Reason: "content contains a NUL byte"}
	}

	value := make([]byte, len(trimmed))
	copy(value, trimmed)
	return &Secret{Ref: ref, buf: memguard.NewBufferFromBytes(value)}, nil
}
