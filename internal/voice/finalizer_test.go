package voice

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/troikatech/call-recorder/pkg/audio"
	"github.com/troikatech/call-recorder/pkg/metrics"
)

type panicSink struct{}

func (panicSink) WriteRecording(context.Context, string, io.Reader) (string, error) {
	panic("sink exploded")
}

type slowSink struct{}

func (slowSink) WriteRecording(ctx context.Context, _ string, _ io.Reader) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestFinalizer_WritesHeaderAndData(t *testing.T) {
	sink := newMemSink()
	f := NewFinalizer(sink, time.Second, metrics.New(prometheus.NewRegistry()), zap.NewNop())

	meta := CallMetadata{CallID: "xyz", MixType: MixMono, SampleRate: 16000}
	res := awaitResult(t, f.Finalize(context.Background(), meta, make([]byte, 100)))
	if res.Err != nil {
		t.Fatalf("Finalize() error: %v", res.Err)
	}
	if res.Location != "mem://xyz.wav" {
		t.Errorf("Location = %q", res.Location)
	}

	file, _ := sink.Get("xyz")
	h, err := audio.ParseHeader(file)
	if err != nil {
		t.Fatalf("ParseHeader() error: %v", err)
	}
	if h.SampleRate != 16000 || h.Subchunk2Size != 100 || h.ChunkSize != 136 {
		t.Errorf("header = %+v", h)
	}
	f.Wait()
}

func TestFinalizer_ChannelClosedAfterResult(t *testing.T) {
	f := NewFinalizer(newMemSink(), time.Second, metrics.New(prometheus.NewRegistry()), zap.NewNop())
	ch := f.Finalize(context.Background(), CallMetadata{CallID: "a", SampleRate: 8000}, nil)

	awaitResult(t, ch)
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after the single result")
	}
}

func TestFinalizer_Timeout(t *testing.T) {
	f := NewFinalizer(slowSink{}, 20*time.Millisecond, metrics.New(prometheus.NewRegistry()), zap.NewNop())

	res := awaitResult(t, f.Finalize(context.Background(), CallMetadata{CallID: "slow", SampleRate: 8000}, []byte{1, 2}))
	if !errors.Is(res.Err, ErrWriteFailure) {
		t.Errorf("error = %v, want ErrWriteFailure", res.Err)
	}
}

func TestFinalizer_InvalidMetadata(t *testing.T) {
	sink := newMemSink()
	m := metrics.New(prometheus.NewRegistry())
	f := NewFinalizer(sink, time.Second, m, zap.NewNop())

	res := awaitResult(t, f.Finalize(context.Background(), CallMetadata{CallID: "bad"}, []byte{1}))
	if !errors.Is(res.Err, ErrWriteFailure) {
		t.Errorf("error = %v, want ErrWriteFailure", res.Err)
	}
	if _, ok := sink.Get("bad"); ok {
		t.Error("nothing should be written without a valid header")
	}
}

func TestFinalizer_WaitRecoversPanic(t *testing.T) {
	f := NewFinalizer(panicSink{}, time.Second, metrics.New(prometheus.NewRegistry()), zap.NewNop())
	ch := f.Finalize(context.Background(), CallMetadata{CallID: "p", SampleRate: 8000}, nil)

	f.Wait()
	if _, ok := <-ch; ok {
		t.Error("no result expected from a panicking write")
	}
}
