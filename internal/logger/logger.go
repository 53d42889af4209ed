package logger

import "tagstore-dht/internal/domain"

// Field is a structured key:value log field.
type Field struct {
	Key string
	Val any
}

// Logger is the minimal structured logging interface used across the
// module; go.uber.org/zap is adapted to it in internal/logger/zap.
type Logger interface {
	Named(name string) Logger
	With(fields ...Field) Logger
	WithNode(n domain.NodeRef) Logger
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// F is a concise constructor for a single Field.
func F(key string, val any) Field { return Field{Key: key, Val: val} }

// FNode serializes a domain.NodeRef into a structured log field.
func FNode(key string, n domain.NodeRef) Field {
	return Field{
		Key: key,
		Val: map[string]any{
			"id":   n.ID.ToHexString(true),
			"addr": n.ChordAddr(),
		},
	}
}

// ----------------------------------------------------------------
// NopLogger is a Logger implementation that discards everything.
type NopLogger struct{}

func (l *NopLogger) Named(name string) Logger              { return l }
func (l *NopLogger) With(fields ...Field) Logger            { return l }
func (l *NopLogger) WithNode(n domain.NodeRef) Logger       { return l }
func (l *NopLogger) Debug(msg string, fields ...Field)      {}
func (l *NopLogger) Info(msg string, fields ...Field)       {}
func (l *NopLogger) Warn(msg string, fields ...Field)       {}
func (l *NopLogger) Error(msg string, fields ...Field)      {}
