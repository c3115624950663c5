package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/troikatech/call-recorder/pkg/errors"
	"github.com/troikatech/call-recorder/pkg/storage"
)

// ValidateCallIDParam rejects call ids that could not name a recording file.
func ValidateCallIDParam(paramName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		callID := c.Param(paramName)
		if callID == "" {
			errors.BadRequest(c, paramName+" parameter is required")
			c.Abort()
			return
		}

		if err := storage.ValidateName(callID); err != nil {
			errors.BadRequest(c, "invalid "+paramName+" parameter")
			c.Abort()
			return
		}

		c.Set(paramName, callID)
		c.Next()
	}
}
