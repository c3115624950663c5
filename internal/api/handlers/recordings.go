package handlers

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/troikatech/call-recorder/pkg/audio"
	"github.com/troikatech/call-recorder/pkg/errors"
	"github.com/troikatech/call-recorder/pkg/logger"
	"github.com/troikatech/call-recorder/pkg/storage"
)

// GetRecording streams a finalized recording.
func (h *Handler) GetRecording(c *gin.Context) {
	callID := c.Param("call_sid")

	rc, size, err := h.recordings.OpenRecording(callID)
	if err != nil {
		switch {
		case stderrors.Is(err, storage.ErrNotFound):
			errors.NotFound(c, "no recording for this call_sid")
		case stderrors.Is(err, storage.ErrInvalidName):
			errors.BadRequest(c, "invalid call_sid")
		default:
			errors.InternalError(c, err, h.logger)
		}
		return
	}
	defer rc.Close()

	extra := map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s.wav"`, callID),
	}

	br := bufio.NewReader(rc)
	var duration float64
	if raw, err := br.Peek(audio.HeaderSize); err == nil {
		if hdr, err := audio.ParseHeader(raw); err == nil {
			duration = hdr.Duration()
			extra["X-Recording-Duration"] = strconv.FormatFloat(duration, 'f', 3, 64)
		} else {
			h.logger.Warn("Recording has an unreadable header", logger.CallID(callID), zap.Error(err))
		}
	}

	h.logger.Debug("Serving recording",
		logger.CallID(callID),
		logger.Bytes("size", int(size)),
		zap.Float64("duration_sec", duration),
	)
	c.DataFromReader(http.StatusOK, size, "audio/wav", br, extra)
}
