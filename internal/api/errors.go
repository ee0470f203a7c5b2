package api

import (
	"errors"
	"net/http"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeError maps the error taxonomy onto HTTP statuses
func writeError(c *gin.Context, err error) {
	status, title := http.StatusInternalServerError, "Internal server error"
	message := err.Error()

	switch {
	case errors.Is(err, models.ErrEmptyCart):
		status, title = http.StatusBadRequest, "Cart is empty"
	case errors.Is(err, models.ErrSignature):
		status, title = http.StatusBadRequest, "Webhook Error"
	case errors.Is(err, models.ErrValidation):
		status, title = http.StatusBadRequest, "Invalid request data"
	case errors.Is(err, models.ErrNotFound):
		status, title = http.StatusNotFound, "Not found"
	case errors.Is(err, models.ErrStoreUnavailable):
		status, title = http.StatusServiceUnavailable, "Database unavailable"
		message = "The cart store is temporarily unavailable. Please try again."
	case errors.Is(err, models.ErrProvider):
		title = "Payment provider error"
	default:
		message = "An unexpected error occurred"
	}

	if status >= http.StatusInternalServerError {
		util.GetLogger().Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}

	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   title,
		"message": message,
	})
}

func writeBindError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   "Invalid request data",
		"message": err.Error(),
	})
}
