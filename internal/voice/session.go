package voice

import (
	"bytes"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type State int32

const (
	StateUninitialized State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is the transport under a session. *websocket.Conn satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Session is the state of one audio socket. The receive goroutine owns the
// audio buffer; everything else reads state through the accessors.
type Session struct {
	ID       string
	OpenedAt time.Time

	conn         Conn
	closeOnce    sync.Once
	writeTimeout time.Duration
	writeMu      sync.Mutex

	mu        sync.RWMutex
	state     State
	meta      CallMetadata
	startedAt time.Time

	audio  bytes.Buffer
	frames int

	log  *zap.Logger
	span trace.Span
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// CallID is empty until the call start has been accepted.
func (s *Session) CallID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta.CallID
}

// Metadata returns the call metadata and whether the call has started.
func (s *Session) Metadata() (CallMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta, s.state != StateUninitialized
}

func (s *Session) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

// AudioLen and Frames must only be called from the receive goroutine.
func (s *Session) AudioLen() int {
	return s.audio.Len()
}

func (s *Session) Frames() int {
	return s.frames
}

// Logger carries the session id, and the call id once the call has started.
func (s *Session) Logger() *zap.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.log
}

func (s *Session) activate(meta CallMetadata, log *zap.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = meta
	s.state = StateActive
	s.startedAt = time.Now()
	s.log = log
}

func (s *Session) appendAudio(chunk []byte) {
	s.audio.Write(chunk)
	s.frames++
}

// takeAudio hands the buffer to the finalizer. The session must be closed.
func (s *Session) takeAudio() []byte {
	return s.audio.Bytes()
}

// Send writes one text frame. Writers are serialised because the websocket
// connection supports a single concurrent writer.
func (s *Session) Send(payload []byte) error {
	if s.State() != StateActive {
		return ErrNotActive
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return err
		}
	}
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// close moves the session to StateClosed and returns the state it left.
func (s *Session) close() State {
	s.mu.Lock()
	prev := s.state
	s.state = StateClosed
	s.mu.Unlock()

	s.closeConn()
	return prev
}

func (s *Session) closeConn() {
	s.closeOnce.Do(func() {
		if err := s.conn.Close(); err != nil {
			s.Logger().Debug("Socket close returned error", zap.Error(err))
		}
	})
}
