package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Verb is one instruction in a call-control webhook response.
type Verb struct {
	Verb     string `json:"verb"`
	Text     string `json:"text,omitempty"`
	URL      string `json:"url,omitempty"`
	PassDTMF bool   `json:"passDtmf,omitempty"`
}

// Answer tells the media server to greet the caller and then stream the
// call audio to the socket endpoint.
func (h *Handler) Answer(c *gin.Context) {
	c.JSON(http.StatusOK, []Verb{
		{Verb: "say", Text: h.cfg.AnswerSayText},
		{Verb: "listen", URL: h.cfg.SocketPath, PassDTMF: h.cfg.PassDTMF},
	})
}
