package audit

import "context"

// NopLogger discards all events. Used when audit.enabled is false.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (n *NopLogger) Log(_ context.Context, _ Event) error { return nil }
func (n *NopLogger) Flush(_ context.Context) error        { return nil }
func (n *NopLogger) Close() error                         { return nil }
