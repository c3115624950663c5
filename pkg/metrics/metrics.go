package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for call sessions and the HTTP API.
type Metrics struct {
	// Connection metrics
	ActiveSessions  prometheus.Gauge
	SessionsOpened  prometheus.Counter
	SessionDuration prometheus.Histogram

	// Call metrics
	ActiveCalls  prometheus.Gauge
	CallsStarted prometheus.Counter
	AudioFrames  prometheus.Counter
	AudioBytes   prometheus.Counter

	// Playback metrics, labelled by what triggered them (dtmf, broadcast, api)
	PlaybacksSent *prometheus.CounterVec

	// Protocol and write errors, labelled by kind
	SessionErrors *prometheus.CounterVec

	// Recording metrics
	RecordingsWritten prometheus.Counter
	RecordingsFailed  prometheus.Counter
	RecordingBytes    prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates all collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in the server and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "callrec_active_sessions",
			Help: "Current number of open audio socket connections",
		}),
		SessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "callrec_sessions_opened_total",
			Help: "Total number of audio socket connections accepted",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "callrec_session_duration_seconds",
			Help:    "Lifetime of audio socket connections",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),

		ActiveCalls: factory.NewGauge(prometheus.GaugeOpts{
			Name: "callrec_active_calls",
			Help: "Current number of calls registered in the call registry",
		}),
		CallsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "callrec_calls_started_total",
			Help: "Total number of accepted call-start messages",
		}),
		AudioFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "callrec_audio_frames_total",
			Help: "Total number of binary audio frames appended",
		}),
		AudioBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "callrec_audio_bytes_total",
			Help: "Total number of audio bytes appended",
		}),

		PlaybacksSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "callrec_playbacks_sent_total",
			Help: "Total number of playAudio commands written to sessions",
		}, []string{"source"}),

		SessionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "callrec_session_errors_total",
			Help: "Total number of non-fatal session errors by kind",
		}, []string{"kind"}),

		RecordingsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "callrec_recordings_written_total",
			Help: "Total number of recordings finalized",
		}),
		RecordingsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "callrec_recordings_failed_total",
			Help: "Total number of recordings that could not be written",
		}),
		RecordingBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "callrec_recording_size_bytes",
			Help:    "Audio data length of finalized recordings",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 12), // 16KB to ~32MB
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "callrec_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "callrec_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// GinMiddleware records request counts and latency per route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
