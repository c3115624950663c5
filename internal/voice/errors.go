package voice

import "errors"

// Session errors. None of them is fatal to the process; the socket loop logs
// them and keeps reading.
var (
	ErrMalformedMessage   = errors.New("malformed control message")
	ErrMissingAsset       = errors.New("audio asset not found")
	ErrDuplicateCallStart = errors.New("duplicate call start")
	ErrPrematureClose     = errors.New("connection closed before call start")
	ErrWriteFailure       = errors.New("recording write failed")

	ErrCallInUse     = errors.New("call id already has a live session")
	ErrNotStarted    = errors.New("message received before call start")
	ErrSessionClosed = errors.New("session closed")
	ErrNotActive     = errors.New("session not active")
	ErrCallNotFound  = errors.New("call not found")
)

// errorKind is the metrics label for a session error.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrMalformedMessage):
		return "malformed_message"
	case errors.Is(err, ErrMissingAsset):
		return "missing_asset"
	case errors.Is(err, ErrDuplicateCallStart):
		return "duplicate_call_start"
	case errors.Is(err, ErrPrematureClose):
		return "premature_close"
	case errors.Is(err, ErrWriteFailure):
		return "write_failure"
	case errors.Is(err, ErrCallInUse):
		return "call_in_use"
	case errors.Is(err, ErrNotStarted):
		return "not_started"
	case errors.Is(err, ErrNotActive), errors.Is(err, ErrSessionClosed):
		return "not_active"
	default:
		return "send_failure"
	}
}
