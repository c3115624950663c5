package test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/troikatech/call-recorder/internal/api"
	"github.com/troikatech/call-recorder/internal/api/handlers"
	"github.com/troikatech/call-recorder/internal/voice"
	"github.com/troikatech/call-recorder/pkg/assets"
	"github.com/troikatech/call-recorder/pkg/audio"
	"github.com/troikatech/call-recorder/pkg/auth"
	"github.com/troikatech/call-recorder/pkg/env"
	"github.com/troikatech/call-recorder/pkg/metrics"
	"github.com/troikatech/call-recorder/pkg/storage"
)

var (
	digitFive  = []byte("RIFF-digit-5")
	helloAudio = []byte("RIFF-hello")
)

type testServer struct {
	router     *gin.Engine
	manager    *voice.Manager
	recordings string
}

func testConfig() *env.Config {
	return &env.Config{
		AppEnv:              "test",
		SocketPath:          "/socket",
		AnswerSayText:       "Connecting to Socket",
		PassDTMF:            true,
		HelloAsset:          "hello",
		PlaybackContentType: "wav",
		PlaybackSampleRate:  8000,
		WSReadLimit:         1 << 20,
		WSReadTimeout:       5 * time.Second,
		WSWriteTimeout:      2 * time.Second,
		CORSAllowedOrigins:  "*",
		APIRateLimitRPM:     180,
		JWTIssuer:           "call-recorder",
		JWTAudience:         "call-recorder-api",
	}
}

// buildTestServer wires the real router against temp directories. withHello
// controls whether the hello asset exists.
func buildTestServer(t *testing.T, cfg *env.Config, withHello bool) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	digits := t.TempDir()
	recordings := t.TempDir()
	if err := os.WriteFile(filepath.Join(digits, "5.wav"), digitFive, 0o644); err != nil {
		t.Fatal(err)
	}
	if withHello {
		if err := os.WriteFile(filepath.Join(digits, "hello.wav"), helloAudio, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	log := zap.NewNop()
	driver := storage.NewLocalDriver(recordings)

	manager := voice.NewManager(voice.Options{
		Assets:       assets.NewDirSource(digits),
		Finalizer:    voice.NewFinalizer(driver, time.Second, m, log),
		Metrics:      m,
		Logger:       log,
		ContentType:  cfg.PlaybackContentType,
		SampleRate:   cfg.PlaybackSampleRate,
		WriteTimeout: cfg.WSWriteTimeout,
	})

	h := handlers.NewHandler(cfg, manager, driver, nil, reg)
	return &testServer{
		router:     api.NewRouter(cfg, h, m, nil),
		manager:    manager,
		recordings: recordings,
	}
}

func (s *testServer) do(method, path string, body []byte, header http.Header) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestAnswer(t *testing.T) {
	s := buildTestServer(t, testConfig(), true)

	w := s.do(http.MethodPost, "/answer", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var verbs []map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &verbs); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(verbs) != 2 {
		t.Fatalf("got %d verbs, want 2", len(verbs))
	}
	if verbs[0]["verb"] != "say" || verbs[0]["text"] != "Connecting to Socket" {
		t.Errorf("first verb = %v", verbs[0])
	}
	if verbs[1]["verb"] != "listen" || verbs[1]["url"] != "/socket" || verbs[1]["passDtmf"] != true {
		t.Errorf("second verb = %v", verbs[1])
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := buildTestServer(t, testConfig(), true)

	w := s.do(http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
	var health handlers.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "healthy" || health.Services["redis"] != "disabled" {
		t.Errorf("health = %+v", health)
	}

	w = s.do(http.MethodGet, "/metrics", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "callrec_http_requests_total") {
		t.Error("metrics output is missing the http request counter")
	}
}

func TestHelloWithoutCalls(t *testing.T) {
	s := buildTestServer(t, testConfig(), true)

	w := s.do(http.MethodGet, "/hello", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"delivered":0`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestHelloMissingAsset(t *testing.T) {
	s := buildTestServer(t, testConfig(), false)

	if w := s.do(http.MethodGet, "/hello", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestRecordingLookup(t *testing.T) {
	s := buildTestServer(t, testConfig(), true)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/api/recordings/unknown", http.StatusNotFound},
		{"/api/recordings/a..b", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if w := s.do(http.MethodGet, tt.path, nil, nil); w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestPlayToUnknownCall(t *testing.T) {
	s := buildTestServer(t, testConfig(), true)

	w := s.do(http.MethodPost, "/api/calls/nope/play", []byte(`{"asset":"hello"}`), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}

	w = s.do(http.MethodPost, "/api/calls/nope/play", []byte(`{}`), nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing asset field: status = %d, want 400", w.Code)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	cfg := testConfig()
	cfg.JWTSecret = "test-secret"
	s := buildTestServer(t, cfg, true)

	if w := s.do(http.MethodGet, "/api/calls", nil, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}

	viewer, _, err := auth.GenerateAccessToken("op-1", auth.RoleViewer, cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	header := http.Header{"Authorization": {"Bearer " + viewer}}

	if w := s.do(http.MethodGet, "/api/calls", nil, header); w.Code != http.StatusOK {
		t.Errorf("viewer list: status = %d, want 200", w.Code)
	}
	if w := s.do(http.MethodPost, "/api/calls/abc/play", []byte(`{"asset":"hello"}`), header); w.Code != http.StatusForbidden {
		t.Errorf("viewer play: status = %d, want 403", w.Code)
	}

	// Media server routes stay open.
	if w := s.do(http.MethodPost, "/answer", nil, nil); w.Code != http.StatusOK {
		t.Errorf("answer: status = %d, want 200", w.Code)
	}
}

func readPlayback(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read playback: %v", err)
	}
	if mt != websocket.TextMessage {
		t.Fatalf("message type = %d, want text", mt)
	}

	var msg struct {
		Type string `json:"type"`
		Data struct {
			AudioContent     string `json:"audioContent"`
			AudioContentType string `json:"audioContentType"`
			SampleRate       string `json:"sampleRate"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("playback is not JSON: %v", err)
	}
	if msg.Type != "playAudio" || msg.Data.AudioContentType != "wav" || msg.Data.SampleRate != "8000" {
		t.Fatalf("playback = %s", data)
	}
	audioContent, err := base64.StdEncoding.DecodeString(msg.Data.AudioContent)
	if err != nil {
		t.Fatalf("audioContent: %v", err)
	}
	return audioContent
}

func TestCallEndToEnd(t *testing.T) {
	s := buildTestServer(t, testConfig(), true)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	send := func(mt int, data []byte) {
		t.Helper()
		if err := conn.WriteMessage(mt, data); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	send(websocket.TextMessage, []byte(`{"callSid":"abc","mixType":"mono","sampleRate":8000,"from":"+919876543210"}`))
	chunk := bytes.Repeat([]byte{0x01, 0x02}, 160)
	send(websocket.BinaryMessage, chunk)
	send(websocket.BinaryMessage, chunk)
	send(websocket.TextMessage, []byte(`{"type":"playback-complete"}`))

	// DTMF: exactly the digit asset comes back.
	send(websocket.TextMessage, []byte(`{"event":"dtmf","dtmf":"5"}`))
	if got := readPlayback(t, conn); !bytes.Equal(got, digitFive) {
		t.Errorf("dtmf playback = %q, want %q", got, digitFive)
	}

	// Frames are handled in order, so the call is registered by now.
	w := s.do(http.MethodGet, "/api/calls", nil, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"call_sid":"abc"`) {
		t.Fatalf("list calls: %d %s", w.Code, w.Body.String())
	}

	w = s.do(http.MethodGet, "/hello", nil, nil)
	if !strings.Contains(w.Body.String(), `"delivered":1`) {
		t.Fatalf("hello: %s", w.Body.String())
	}
	if got := readPlayback(t, conn); !bytes.Equal(got, helloAudio) {
		t.Errorf("hello playback = %q", got)
	}

	w = s.do(http.MethodPost, "/api/calls/abc/play", []byte(`{"asset":"5"}`), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("targeted play: %d %s", w.Code, w.Body.String())
	}
	if got := readPlayback(t, conn); !bytes.Equal(got, digitFive) {
		t.Errorf("targeted playback = %q", got)
	}

	send(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	var recording []byte
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		w = s.do(http.MethodGet, "/api/recordings/abc", nil, nil)
		if w.Code == http.StatusOK {
			recording = w.Body.Bytes()
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if recording == nil {
		t.Fatal("recording was not written after the socket closed")
	}
	if w.Header().Get("Content-Type") != "audio/wav" {
		t.Errorf("Content-Type = %q", w.Header().Get("Content-Type"))
	}
	// 640 bytes of 16-bit mono at 8 kHz.
	if got := w.Header().Get("X-Recording-Duration"); got != "0.040" {
		t.Errorf("X-Recording-Duration = %q, want 0.040", got)
	}
	if len(recording) != audio.HeaderSize+640 {
		t.Fatalf("recording length = %d, want %d", len(recording), audio.HeaderSize+640)
	}
	h, err := audio.ParseHeader(recording)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if h.NumChannels != 1 || h.SampleRate != 8000 || h.BitsPerSample != 16 || h.Subchunk2Size != 640 {
		t.Errorf("header = %+v", h)
	}
	if !bytes.Equal(recording[audio.HeaderSize:], append(append([]byte{}, chunk...), chunk...)) {
		t.Error("recorded audio does not match the frames sent")
	}

	if _, err := os.Stat(filepath.Join(s.recordings, "abc.wav")); err != nil {
		t.Errorf("recording file: %v", err)
	}
	if n := s.manager.Registry().Len(); n != 0 {
		t.Errorf("registry still holds %d calls", n)
	}
}

func TestSocketClosedBeforeCallStart(t *testing.T) {
	s := buildTestServer(t, testConfig(), true)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.WriteMessage(websocket.BinaryMessage, []byte{0, 0, 0, 0})
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.manager.OpenSessions() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := s.manager.OpenSessions(); n != 0 {
		t.Fatalf("OpenSessions() = %d, want 0", n)
	}

	entries, err := os.ReadDir(s.recordings)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("no recording expected, found %d files", len(entries))
	}
}
