package logger

import (
	"go.uber.org/zap"
)

// CallID tags a log line with the call identifier.
func CallID(id string) zap.Field {
	return zap.String("call_sid", id)
}

// SessionID tags a log line with the socket connection id.
func SessionID(id string) zap.Field {
	return zap.String("session_id", id)
}

// Bytes logs a byte count.
func Bytes(key string, n int) zap.Field {
	return zap.Int(key, n)
}
