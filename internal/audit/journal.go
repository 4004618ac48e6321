package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

// DefaultPath keeps the journal out of the state and runtime directories
// the agent can write to.
const DefaultPath = "/var/log/agentcell/audit.jsonl"

// SealPath returns where the seal of the journal at path is kept.
func SealPath(path string) string {
	return path + ".seal"
}

// JournalConfig configures a Journal.
type JournalConfig struct {
	Path          string
	FlushInterval time.Duration
}

// DefaultJournalConfig returns the journal settings used by run.
func DefaultJournalConfig() JournalConfig {
	return JournalConfig{
		Path:          DefaultPath,
		FlushInterval: 5 * time.Second,
	}
}

// Journal is the file-backed EventLogger. Events are appended as JSON Lines,
// chained from genesis, and the seal is rewritten after every flush. The
// journal is never rotated: rotation would cut the chain the seal vouches
// for.
type Journal struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	w      *bufio.Writer
	chain  chain
	dirty  bool
	closed bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// OpenJournal opens the journal at cfg.Path and resumes its chain. A journal
// that no longer verifies against its seal is refused with ErrSealMismatch,
// since appending to it would bury the damage under fresh events.
func OpenJournal(cfg JournalConfig) (*Journal, error) {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}

	v, events, err := verifyPath(cfg.Path)
	switch {
	case errors.Is(err, ErrNoJournal):
	case err != nil:
		return nil, err
	case !v.Intact():
		return nil, fmt.Errorf("%w: %s", ErrSealMismatch, v.Describe())
	}

	c, err := resumeChain(events)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("opening audit journal: %w", err)
	}

	j := &Journal{
		path:  cfg.Path,
		file:  f,
		w:     bufio.NewWriter(f),
		chain: c,
		// Seal an unsealed tail or a fresh journal on the first flush.
		dirty: v == nil || !v.Sealed || v.Unsealed > 0,
		stop:  make(chan struct{}),
	}
	if cfg.FlushInterval > 0 {
		j.wg.Add(1)
		go j.flushLoop(cfg.FlushInterval)
	}
	return j, nil
}

// Path returns the journal location.
func (j *Journal) Path() string {
	return j.path
}

// Log appends e to the journal.
func (j *Journal) Log(_ context.Context, e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrLoggerClosed
	}

	next := j.chain
	if err := next.link(&e); err != nil {
		return fmt.Errorf("hashing audit event: %w", err)
	}
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding audit event: %w", err)
	}
	if _, err := j.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	j.chain = next
	j.dirty = true
	return nil
}

// Flush writes buffered events, syncs the journal and then updates the
// seal, so the seal never vouches for events that are not on disk.
func (j *Journal) Flush(_ context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrLoggerClosed
	}
	return j.flushLocked()
}

func (j *Journal) flushLocked() error {
	if err := j.w.Flush(); err != nil {
		return fmt.Errorf("flushing audit journal: %w", err)
	}
	if !j.dirty {
		return nil
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("syncing audit journal: %w", err)
	}
	data, err := json.Marshal(j.chain.seal())
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(SealPath(j.path), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing audit seal: %w", err)
	}
	j.dirty = false
	return nil
}

// Close flushes, seals and closes the journal.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.stop)
	err := j.flushLocked()
	j.mu.Unlock()

	j.wg.Wait()
	if cerr := j.file.Close(); err == nil {
		err = cerr
	}
	return err
}

func (j *Journal) flushLoop(interval time.Duration) {
	defer j.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-j.stop:
			return
		case <-t.C:
			j.mu.Lock()
			if !j.closed {
				_ = j.flushLocked()
			}
			j.mu.Unlock()
		}
	}
}

// ReadEvents decodes every event in the journal at path.
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, n, err)
		}
		events = append(events, e)
	}
	return events, sc.Err()
}

// ReadSeal returns the seal of the journal at path, or nil when the journal
// has never been sealed.
func ReadSeal(path string) (*Seal, error) {
	data, err := os.ReadFile(SealPath(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s Seal
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", SealPath(path), err)
	}
	return &s, nil
}

// VerifyFile checks the journal at path against its chain and seal. A
// deleted journal whose seal survives reports every sealed event missing.
func VerifyFile(path string) (*Verification, error) {
	v, _, err := verifyPath(path)
	return v, err
}

// VerifyEvents is VerifyFile that also returns the decoded events.
func VerifyEvents(path string) (*Verification, []Event, error) {
	return verifyPath(path)
}

func verifyPath(path string) (*Verification, []Event, error) {
	seal, err := ReadSeal(path)
	if err != nil {
		return nil, nil, err
	}
	events, err := ReadEvents(path)
	if errors.Is(err, fs.ErrNotExist) {
		if seal == nil {
			return nil, nil, fmt.Errorf("%w at %s", ErrNoJournal, path)
		}
		return Verify(nil, seal), nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return Verify(events, seal), events, nil
}
