package audit

import "errors"

// Validation errors for Event fields.
var (
	ErrMissingTimestamp = errors.New("audit: timestamp is required")
	ErrMissingEventType = errors.New("audit: event_type is required")
	ErrMissingService   = errors.New("audit: service is required")
	ErrMissingSeverity  = errors.New("audit: severity is required")
)

var (
	ErrEmptyEvent   = errors.New("audit: cannot hash empty event data")
	ErrLoggerClosed = errors.New("audit: logger is closed")
	// ErrSealMismatch means the journal no longer matches its seal.
	ErrSealMismatch = errors.New("audit: journal does not match its seal")
	ErrNoJournal    = errors.New("audit: no journal")
)
