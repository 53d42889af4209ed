package wire

import "fmt"

// ErrorKind is the abstract error taxonomy of spec.md §7.
type ErrorKind string

const (
	KindMalformed   ErrorKind = "malformed"
	KindNotFound    ErrorKind = "not_found"
	KindTransport   ErrorKind = "transport"
	KindRefused     ErrorKind = "refused"
	KindTimeout     ErrorKind = "timeout"
	KindRemoteError ErrorKind = "remote_error"
	KindConflict    ErrorKind = "conflict"
	KindNotLeader   ErrorKind = "not_leader"
	KindFatal       ErrorKind = "fatal"
)

// Error is the failure body the wire protocol carries back in place of a
// successful Data payload. The wire protocol has no status codes; a
// failure reply's Data is {"error": {"kind": "...", "error": "..."}}, so
// the "error" field holds this object rather than a bare message string.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"error"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError constructs a wire.Error of the given kind.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// replyEnvelope is what a handler's failure reply serializes as.
type replyEnvelope struct {
	Error *Error `json:"error,omitempty"`
}

// ErrorReply builds a Message whose Data carries the given error, the
// transport-level analogue of spec.md §7's "{\"error\":\"…\"}" reply.
func ErrorReply(command, function string, err *Error) Message {
	msg, _ := NewMessage(command, function, replyEnvelope{Error: err})
	return msg
}

// AsError extracts an *Error from a reply message's Data, if present.
func AsError(m Message) *Error {
	var env replyEnvelope
	if err := m.Decode(&env); err != nil {
		return nil
	}
	return env.Error
}
