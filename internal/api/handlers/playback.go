package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/troikatech/call-recorder/internal/voice"
	"github.com/troikatech/call-recorder/pkg/errors"
)

// Hello plays the hello asset into every active call.
func (h *Handler) Hello(c *gin.Context) {
	delivered, err := h.manager.Broadcast(h.cfg.HelloAsset)
	if err != nil {
		if stderrors.Is(err, voice.ErrMissingAsset) {
			errors.NotFound(c, "hello asset is not available")
			return
		}
		errors.InternalError(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"delivered": delivered,
	})
}

type PlayRequest struct {
	Asset string `json:"asset" binding:"required"`
}

// PlayToCall plays an asset into one call.
func (h *Handler) PlayToCall(c *gin.Context) {
	callID := c.Param("call_sid")

	var req PlayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BadRequest(c, "request body must be {\"asset\": \"<name>\"}")
		return
	}

	err := h.manager.Play(callID, req.Asset)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"status":   "sent",
			"call_sid": callID,
			"asset":    req.Asset,
		})
	case stderrors.Is(err, voice.ErrCallNotFound):
		errors.NotFound(c, "no active call with this call_sid")
	case stderrors.Is(err, voice.ErrMissingAsset):
		errors.NotFound(c, "asset not found: "+req.Asset)
	case stderrors.Is(err, voice.ErrNotActive):
		errors.Conflict(c, "call is no longer active")
	default:
		errors.BadGateway(c, "failed to write playback to the call socket")
	}
}
