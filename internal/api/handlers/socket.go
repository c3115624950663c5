package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/troikatech/call-recorder/internal/voice"
	"github.com/troikatech/call-recorder/pkg/env"
)

func newUpgrader(cfg *env.Config, log *zap.Logger) websocket.Upgrader {
	allowed := splitOrigins(cfg.CORSAllowedOrigins)
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Media servers do not send an Origin header.
			if origin == "" || cfg.AppEnv == "development" {
				return true
			}
			for _, o := range allowed {
				if o == "*" || o == origin {
					return true
				}
			}
			log.Warn("WebSocket connection rejected - invalid origin",
				zap.String("origin", origin),
				zap.String("remote_addr", r.RemoteAddr),
			)
			return false
		},
	}
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// CallSocket accepts the media server's audio socket. Frames are read and
// dispatched in order on this goroutine; when the socket closes for any
// reason the session is finalized.
func (h *Handler) CallSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade to WebSocket",
			zap.Error(err),
			zap.String("origin", c.GetHeader("Origin")),
			zap.String("remote_addr", c.Request.RemoteAddr),
		)
		return
	}
	conn.SetReadLimit(h.cfg.WSReadLimit)

	session := h.manager.Open(conn)
	defer h.manager.Close(session)

	done := make(chan struct{})
	defer close(done)
	if h.cfg.WSReadTimeout > 0 {
		h.keepalive(conn, session, done)
	}

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				session.Logger().Warn("WebSocket read error", zap.Error(err))
			} else {
				session.Logger().Debug("WebSocket closed", zap.Error(err))
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			_ = h.manager.Dispatch(session, voice.Frame{Binary: true, Data: message})
		case websocket.TextMessage:
			_ = h.manager.Dispatch(session, voice.Frame{Data: message})
		}
	}
}

// keepalive pings the peer and extends the read deadline on every pong, so a
// half-open connection ends the read loop instead of leaking the session.
func (h *Handler) keepalive(conn *websocket.Conn, session *voice.Session, done <-chan struct{}) {
	readTimeout := h.cfg.WSReadTimeout
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go func() {
		ticker := time.NewTicker(readTimeout * 9 / 10)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				deadline := time.Now().Add(h.cfg.WSWriteTimeout)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					session.Logger().Debug("Failed to send ping", zap.Error(err))
					return
				}
			}
		}
	}()
}
