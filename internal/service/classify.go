package service

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"signalhub/invitehub/internal/telegram"
)

type descriptionRule struct {
	fragment string
	category ErrorCategory
}

// Matched case-insensitively against the Bot API description, in order.
var descriptionRules = []descriptionRule{
	{"too many requests", CategoryTransientAPIFailure},
	{"retry after", CategoryTransientAPIFailure},
	{"flood", CategoryTransientAPIFailure},

	{"not enough rights", CategoryPermissionDenied},
	{"chat_admin_required", CategoryPermissionDenied},
	{"need administrator rights", CategoryPermissionDenied},
	{"have no rights", CategoryPermissionDenied},
	{"not an administrator", CategoryPermissionDenied},
	{"administrator rights", CategoryPermissionDenied},

	{"chat_id is empty", CategoryInvalidChannelID},
	{"invalid chat id", CategoryInvalidChannelID},

	{"user not found", CategoryUserNotFound},
	{"user_id_invalid", CategoryUserNotFound},
	{"participant_id_invalid", CategoryUserNotFound},
	{"user is deactivated", CategoryUserNotFound},
	{"invalid user id", CategoryInvalidUserID},

	{"chat not found", CategoryChannelNotFound},
	{"channel_invalid", CategoryChannelNotFound},
	{"channel_private", CategoryChannelNotFound},
}

// Classify maps any error to a category. It is total: API failures with an
// unrecognised code fall back to CategoryPermanentAPIFailure, while errors
// that never reached the API (no code at all) count as transient.
func Classify(err error) ErrorCategory {
	if err == nil {
		return CategoryPermanentAPIFailure
	}

	var inviteErr *InviteError
	if errors.As(err, &inviteErr) {
		return inviteErr.Category
	}

	var apiErr *telegram.APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr)
	}

	if errors.Is(err, context.Canceled) {
		return CategoryPermanentAPIFailure
	}
	return CategoryTransientAPIFailure
}

func classifyAPIError(e *telegram.APIError) ErrorCategory {
	if e.Code == http.StatusTooManyRequests || e.RetryAfter > 0 {
		return CategoryTransientAPIFailure
	}
	if e.Code >= http.StatusInternalServerError {
		return CategoryTransientAPIFailure
	}

	desc := strings.ToLower(e.Description)
	for _, rule := range descriptionRules {
		if strings.Contains(desc, rule.fragment) {
			return rule.category
		}
	}
	return CategoryPermanentAPIFailure
}

// classifyDelivery re-reads a classification for the direct-message phase,
// where the target chat is the user's private chat.
func classifyDelivery(err error) ErrorCategory {
	c := Classify(err)
	if c == CategoryChannelNotFound || c == CategoryInvalidChannelID {
		return CategoryUserNotFound
	}
	return c
}
