package voice

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/troikatech/call-recorder/pkg/logger"
	"github.com/troikatech/call-recorder/pkg/metrics"
)

const tracerName = "github.com/troikatech/call-recorder/internal/voice"

// Playback sources, used as the metrics label.
const (
	SourceDTMF      = "dtmf"
	SourceBroadcast = "broadcast"
	SourceAPI       = "api"
)

// AssetSource resolves a digit or asset name to prerecorded audio.
type AssetSource interface {
	Load(name string) ([]byte, error)
}

// noAssets is used when no asset source is configured; every lookup misses.
type noAssets struct{}

func (noAssets) Load(string) ([]byte, error) {
	return nil, fmt.Errorf("no asset source configured")
}

// discardSink drops recordings. It backs the default finalizer.
type discardSink struct{}

func (discardSink) WriteRecording(_ context.Context, _ string, r io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	return "", nil
}

// Options configures a Manager. Nil fields get defaults; the default
// finalizer discards recordings.
type Options struct {
	Registry  *Registry
	Assets    AssetSource
	Finalizer *Finalizer
	Metrics   *metrics.Metrics
	Logger    *zap.Logger

	// Attributes of outbound playAudio commands.
	ContentType string
	SampleRate  int

	WriteTimeout time.Duration
}

// Manager runs the per-connection protocol: it opens sessions, dispatches
// every received frame through the session state machine, and finalizes the
// recording on close.
type Manager struct {
	registry  *Registry
	assets    AssetSource
	finalizer *Finalizer
	metrics   *metrics.Metrics
	logger    *zap.Logger
	tracer    trace.Tracer

	contentType  string
	sampleRate   int
	writeTimeout time.Duration

	mu   sync.Mutex
	open map[string]*Session
	live sync.WaitGroup
}

func NewManager(opts Options) *Manager {
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(prometheus.NewRegistry())
	}
	if opts.Assets == nil {
		opts.Assets = noAssets{}
	}
	if opts.Finalizer == nil {
		opts.Finalizer = NewFinalizer(discardSink{}, 0, opts.Metrics, opts.Logger)
	}
	if opts.ContentType == "" {
		opts.ContentType = DefaultContentType
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}

	return &Manager{
		registry:     opts.Registry,
		assets:       opts.Assets,
		finalizer:    opts.Finalizer,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		tracer:       otel.Tracer(tracerName),
		contentType:  opts.ContentType,
		sampleRate:   opts.SampleRate,
		writeTimeout: opts.WriteTimeout,
		open:         make(map[string]*Session),
	}
}

func (m *Manager) Registry() *Registry {
	return m.registry
}

// OpenSessions counts connections that have not been closed yet, started or not.
func (m *Manager) OpenSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

// Open creates the session for a new connection in StateUninitialized.
func (m *Manager) Open(conn Conn) *Session {
	id := uuid.NewString()
	_, span := m.tracer.Start(context.Background(), "voice.session",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("session.id", id)),
	)

	s := &Session{
		ID:           id,
		OpenedAt:     time.Now(),
		conn:         conn,
		writeTimeout: m.writeTimeout,
		state:        StateUninitialized,
		log:          m.logger.With(logger.SessionID(id)),
		span:         span,
	}

	m.mu.Lock()
	m.open[id] = s
	m.mu.Unlock()
	m.live.Add(1)

	m.metrics.SessionsOpened.Inc()
	m.metrics.ActiveSessions.Inc()
	s.Logger().Info("Socket connected")
	return s
}

// Dispatch applies one received frame to the session. The returned error is
// informational: it has already been logged and counted, and the caller
// should keep reading.
func (m *Manager) Dispatch(s *Session, f Frame) error {
	msg, err := DecodeControl(f)
	if err != nil {
		return m.fail(s, err, "Dropping malformed message", zap.Int("bytes", len(f.Data)))
	}

	switch s.State() {
	case StateClosed:
		return ErrSessionClosed

	case StateUninitialized:
		switch msg.Kind {
		case KindCallStart:
			return m.start(s, msg.CallStart)
		case KindUnclassified:
			s.Logger().Debug("Unhandled message", zap.ByteString("msg", f.Data))
			return nil
		default:
			return m.fail(s, fmt.Errorf("%w: %s", ErrNotStarted, msg.Kind), "Dropping message received before call start")
		}
	}

	switch msg.Kind {
	case KindAudio:
		s.appendAudio(msg.Audio)
		m.metrics.AudioFrames.Inc()
		m.metrics.AudioBytes.Add(float64(len(msg.Audio)))
		return nil

	case KindDTMF:
		return m.playDigit(s, msg.DTMF)

	case KindCallStart:
		return m.fail(s, fmt.Errorf("%w: %s", ErrDuplicateCallStart, msg.CallStart.CallID),
			"Ignoring call start on an active session", zap.String("received_call_sid", msg.CallStart.CallID))

	default:
		// Playback-complete and similar notifications.
		s.Logger().Debug("Unhandled message", zap.ByteString("msg", f.Data))
		return nil
	}
}

func (m *Manager) start(s *Session, meta CallMetadata) error {
	if err := m.registry.Register(meta.CallID, s); err != nil {
		return m.fail(s, err, "Rejecting call start", logger.CallID(meta.CallID))
	}
	log := s.Logger().With(logger.CallID(meta.CallID))
	s.activate(meta, log)

	s.span.SetAttributes(
		attribute.String("call.id", meta.CallID),
		attribute.String("call.mix_type", meta.MixType),
		attribute.Int("call.sample_rate", meta.SampleRate),
	)
	m.metrics.CallsStarted.Inc()
	m.metrics.ActiveCalls.Inc()

	log.Info("Call started",
		zap.String("mix_type", meta.MixType),
		zap.Int("sample_rate", meta.SampleRate),
		zap.String("direction", meta.Direction),
		logger.MaskPhoneIfPresent("from", meta.From),
		logger.MaskPhoneIfPresent("to", meta.To),
	)
	return nil
}

func (m *Manager) playDigit(s *Session, ev DTMFEvent) error {
	audio, err := m.assets.Load(ev.Digit)
	if err != nil {
		return m.fail(s, fmt.Errorf("%w: digit %q: %v", ErrMissingAsset, ev.Digit, err),
			"No audio for DTMF digit", zap.String("digit", ev.Digit))
	}
	s.span.AddEvent("dtmf", trace.WithAttributes(attribute.String("digit", ev.Digit)))
	return m.send(s, audio, SourceDTMF)
}

func (m *Manager) send(s *Session, audio []byte, source string) error {
	cmd := PlaybackCommand{AudioContent: audio, ContentType: m.contentType, SampleRate: m.sampleRate}
	payload, err := cmd.Encode()
	if err != nil {
		return m.fail(s, err, "Failed to encode playback")
	}
	if err := s.Send(payload); err != nil {
		return m.fail(s, fmt.Errorf("send playback: %w", err), "Failed to send playback", zap.String("source", source))
	}

	m.metrics.PlaybacksSent.WithLabelValues(source).Inc()
	s.Logger().Info("Playback sent",
		zap.String("source", source),
		zap.Int("audio_bytes", len(audio)),
	)
	return nil
}

func (m *Manager) fail(s *Session, err error, msg string, fields ...zap.Field) error {
	m.metrics.SessionErrors.WithLabelValues(errorKind(err)).Inc()
	s.Logger().Warn(msg, append(fields, zap.Error(err))...)
	s.span.AddEvent("error", trace.WithAttributes(attribute.String("error", err.Error())))
	return err
}

// Play sends asset to the session registered for callID.
func (m *Manager) Play(callID, asset string) error {
	s, ok := m.registry.Lookup(callID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrCallNotFound, callID)
	}
	audio, err := m.assets.Load(asset)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrMissingAsset, asset, err)
	}
	return m.send(s, audio, SourceAPI)
}

// Broadcast sends asset to every active call and returns how many sessions
// accepted the write. Writes run concurrently so one slow peer does not hold
// up the rest.
func (m *Manager) Broadcast(asset string) (int, error) {
	audio, err := m.assets.Load(asset)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrMissingAsset, asset, err)
	}

	var delivered atomic.Int64
	var wg conc.WaitGroup
	for _, s := range m.registry.Sessions() {
		wg.Go(func() {
			if err := m.send(s, audio, SourceBroadcast); err == nil {
				delivered.Add(1)
			}
		})
	}
	wg.Wait()

	m.logger.Debug("Broadcast playback",
		zap.String("asset", asset),
		zap.Int64("delivered", delivered.Load()),
	)
	return int(delivered.Load()), nil
}

// Close ends the session from any state. It is safe to call more than once;
// only the first call finalizes. The returned channel yields one Result.
func (m *Manager) Close(s *Session) <-chan Result {
	prev := s.close()
	if prev == StateClosed {
		return resultOf(Result{CallID: s.CallID(), Err: ErrSessionClosed})
	}
	defer m.live.Done()
	defer s.span.End()

	m.mu.Lock()
	delete(m.open, s.ID)
	m.mu.Unlock()

	m.metrics.ActiveSessions.Dec()
	m.metrics.SessionDuration.Observe(time.Since(s.OpenedAt).Seconds())

	if prev == StateUninitialized {
		m.metrics.SessionErrors.WithLabelValues(errorKind(ErrPrematureClose)).Inc()
		s.Logger().Warn("Socket closed before call start, no recording written")
		return resultOf(Result{Err: ErrPrematureClose})
	}

	meta, _ := s.Metadata()
	m.registry.Remove(meta.CallID)
	m.metrics.ActiveCalls.Dec()

	data := s.takeAudio()
	s.Logger().Info("Socket closed",
		zap.Int("frames", s.Frames()),
		zap.Int("audio_bytes", len(data)),
		zap.Duration("call_duration", time.Since(s.StartedAt())),
	)

	ctx := trace.ContextWithSpan(context.Background(), s.span)
	return m.finalizer.Finalize(ctx, meta, data)
}

// Shutdown closes every open connection and waits for receive loops and
// pending recording writes to finish.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.open))
	for _, s := range m.open {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	m.logger.Info("Closing open sockets", zap.Int("sessions", len(sessions)))
	for _, s := range sessions {
		s.closeConn()
	}

	done := make(chan struct{})
	go func() {
		m.live.Wait()
		m.finalizer.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func resultOf(r Result) <-chan Result {
	ch := make(chan Result, 1)
	ch <- r
	close(ch)
	return ch
}
