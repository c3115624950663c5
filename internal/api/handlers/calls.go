package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type CallSummary struct {
	CallSID    string    `json:"call_sid"`
	MixType    string    `json:"mix_type"`
	SampleRate int       `json:"sample_rate"`
	Direction  string    `json:"direction,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// ListCalls returns the calls currently registered, ordered by call id.
func (h *Handler) ListCalls(c *gin.Context) {
	sessions := h.manager.Registry().Sessions()
	calls := make([]CallSummary, 0, len(sessions))
	for _, s := range sessions {
		meta, started := s.Metadata()
		if !started {
			continue
		}
		calls = append(calls, CallSummary{
			CallSID:    meta.CallID,
			MixType:    meta.MixType,
			SampleRate: meta.SampleRate,
			Direction:  meta.Direction,
			StartedAt:  s.StartedAt(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"calls":         calls,
		"count":         len(calls),
		"open_sessions": h.manager.OpenSessions(),
	})
}
