package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// GenesisHash is the hash_prev of the first event in a journal.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Seal records how far a journal has been committed. It is rewritten after
// every flush and lets verification catch a journal that was shortened or
// regenerated, which the chain alone cannot: a truncated prefix is still
// internally consistent.
type Seal struct {
	Events  int       `json:"events"`
	Head    string    `json:"head"`
	Updated time.Time `json:"updated"`
}

// Digest returns the link hash of e: SHA-256 over its JSON encoding,
// hash_prev included.
func Digest(e *Event) (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", ErrEmptyEvent
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// chain assigns hash_prev links and tracks the journal head. Journal
// serializes access.
type chain struct {
	events int
	head   string
}

func resumeChain(events []Event) (chain, error) {
	if len(events) == 0 {
		return chain{head: GenesisHash}, nil
	}
	head, err := Digest(&events[len(events)-1])
	if err != nil {
		return chain{}, fmt.Errorf("hashing journal head: %w", err)
	}
	return chain{events: len(events), head: head}, nil
}

func (c *chain) link(e *Event) error {
	e.HashPrev = c.head
	d, err := Digest(e)
	if err != nil {
		return err
	}
	c.head = d
	c.events++
	return nil
}

func (c *chain) seal() Seal {
	return Seal{Events: c.events, Head: c.head, Updated: time.Now().UTC()}
}

// Verification is the outcome of checking a journal against its chain and
// seal.
type Verification struct {
	Events   int  `json:"events"`
	Verified int  `json:"verified"`
	BrokenAt int  `json:"broken_at"`
	Sealed   bool `json:"sealed"`
	// Unsealed counts trailing events written after the last seal update,
	// e.g. when the process died between flushes.
	Unsealed int `json:"unsealed"`
	// Missing counts sealed events no longer present in the journal.
	Missing  int    `json:"missing"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

// Intact reports whether no event was edited, reordered or removed.
func (v *Verification) Intact() bool {
	return v.BrokenAt < 0 && v.Missing == 0
}

// Verify walks events from genesis. With a seal, the event at position
// seal.Events-1 must hash to seal.Head and the journal must hold at least
// seal.Events events.
func Verify(events []Event, seal *Seal) *Verification {
	v := &Verification{Events: len(events), BrokenAt: -1, Sealed: seal != nil}

	prev := GenesisHash
	for i := range events {
		if events[i].HashPrev != prev {
			v.BrokenAt, v.Expected, v.Actual = i, prev, events[i].HashPrev
			return v
		}
		d, err := Digest(&events[i])
		if err != nil {
			v.BrokenAt = i
			return v
		}
		if seal != nil && i+1 == seal.Events && d != seal.Head {
			v.BrokenAt, v.Expected, v.Actual = i, seal.Head, d
			return v
		}
		prev = d
		v.Verified++
	}

	if seal != nil {
		if len(events) < seal.Events {
			v.Missing = seal.Events - len(events)
			v.Expected = seal.Head
		} else {
			v.Unsealed = len(events) - seal.Events
		}
	}
	return v
}

// Describe summarizes a failed verification in one line.
func (v *Verification) Describe() string {
	switch {
	case v.BrokenAt >= 0:
		return fmt.Sprintf("chain broken at event %d", v.BrokenAt)
	case v.Missing > 0:
		return fmt.Sprintf("%d sealed events missing", v.Missing)
	default:
		return fmt.Sprintf("%d events intact", v.Verified)
	}
}
