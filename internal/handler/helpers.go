package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"signalhub/invitehub/internal/handler/middleware"
	"signalhub/invitehub/internal/service"
	"signalhub/invitehub/pkg/response"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// statusForCategory maps an invitation failure to the admin API status code.
func statusForCategory(c service.ErrorCategory) int {
	switch c {
	case service.CategoryInvalidChannelID, service.CategoryInvalidUserID:
		return http.StatusBadRequest
	case service.CategoryRateLimitExceeded:
		return http.StatusTooManyRequests
	case service.CategoryUserNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func writeInviteError(c *gin.Context, err error) {
	category := service.Classify(err)

	message := string(category)
	var inviteErr *service.InviteError
	if errors.As(err, &inviteErr) && inviteErr.Message != "" {
		message = inviteErr.Message
	} else if category == service.CategoryTransientAPIFailure {
		message = "chat platform unavailable, retries exhausted"
	}

	response.Failure(c, statusForCategory(category), string(category), message)
}

// queryLimit parses ?limit=, falling back to the default and clamping to the max.
func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return min(n, maxListLimit), true
}

func adminID(c *gin.Context) string {
	if claims, ok := middleware.AdminClaims(c); ok {
		return claims.Subject
	}
	return ""
}
