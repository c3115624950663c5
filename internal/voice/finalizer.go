package voice

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/troikatech/call-recorder/pkg/audio"
	"github.com/troikatech/call-recorder/pkg/logger"
	"github.com/troikatech/call-recorder/pkg/metrics"
)

// BitDepth of every recording. Calls deliver 16-bit linear PCM.
const BitDepth = 16

// RecordingSink is where finished recordings go. storage.LocalDriver
// satisfies it.
type RecordingSink interface {
	WriteRecording(ctx context.Context, callID string, r io.Reader) (string, error)
}

// Result reports the outcome of one finalization.
type Result struct {
	CallID     string
	Location   string
	DataLength int
	Err        error
}

// Finalizer writes header + audio for closed calls. Writes run in the
// background; Wait blocks until every scheduled write has finished.
type Finalizer struct {
	sink    RecordingSink
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger
	tracer  trace.Tracer

	wg conc.WaitGroup
}

func NewFinalizer(sink RecordingSink, timeout time.Duration, m *metrics.Metrics, log *zap.Logger) *Finalizer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Finalizer{
		sink:    sink,
		timeout: timeout,
		metrics: m,
		logger:  log,
		tracer:  otel.Tracer(tracerName),
	}
}

// Finalize schedules the write of one recording. The returned channel yields
// exactly one Result and is then closed. Failed writes are logged and not
// retried.
func (f *Finalizer) Finalize(ctx context.Context, meta CallMetadata, data []byte) <-chan Result {
	done := make(chan Result, 1)
	f.wg.Go(func() {
		defer close(done)
		done <- f.write(ctx, meta, data)
	})
	return done
}

// Wait blocks until all scheduled writes are done.
func (f *Finalizer) Wait() {
	if r := f.wg.WaitAndRecover(); r != nil {
		f.logger.Error("Recording writer panicked", zap.String("panic", r.String()))
	}
}

func (f *Finalizer) write(ctx context.Context, meta CallMetadata, data []byte) Result {
	res := Result{CallID: meta.CallID, DataLength: len(data)}

	ctx, span := f.tracer.Start(ctx, "voice.finalize", trace.WithAttributes(
		attribute.String("call.id", meta.CallID),
		attribute.Int("recording.data_length", len(data)),
	))
	defer span.End()

	header, err := audio.Header(audio.HeaderParams{
		Channels:   meta.Channels(),
		SampleRate: meta.SampleRate,
		BitDepth:   BitDepth,
		DataLength: len(data),
	})
	if err == nil {
		ctx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()

		start := time.Now()
		res.Location, err = f.sink.WriteRecording(ctx, meta.CallID, io.MultiReader(bytes.NewReader(header), bytes.NewReader(data)))
		if err == nil {
			f.metrics.RecordingsWritten.Inc()
			f.metrics.RecordingBytes.Observe(float64(len(data)))
			f.logger.Info("Recording written",
				logger.CallID(meta.CallID),
				zap.String("location", res.Location),
				zap.Int("data_length", len(data)),
				zap.Int("channels", meta.Channels()),
				zap.Int("sample_rate", meta.SampleRate),
				zap.Duration("took", time.Since(start)),
			)
			span.SetStatus(codes.Ok, "")
			return res
		}
	}

	res.Err = fmt.Errorf("%w: %s: %v", ErrWriteFailure, meta.CallID, err)
	f.metrics.RecordingsFailed.Inc()
	f.metrics.SessionErrors.WithLabelValues(errorKind(res.Err)).Inc()
	f.logger.Error("Failed to write recording",
		logger.CallID(meta.CallID),
		zap.Int("data_length", len(data)),
		zap.Error(err),
	)
	span.RecordError(err)
	span.SetStatus(codes.Error, "recording write failed")
	return res
}
