package handlers

import (
	"github.com/gin-gonic/gin"
)

func (h *Handler) GetPrometheusMetrics(c *gin.Context) {
	h.promHandler.ServeHTTP(c.Writer, c.Request)
}
