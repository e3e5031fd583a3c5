package service

import "fmt"

// ErrorCategory is the stable, dispatchable class of an invitation failure.
type ErrorCategory string

const (
	CategoryInvalidChannelID    ErrorCategory = "INVALID_CHANNEL_ID"
	CategoryInvalidUserID       ErrorCategory = "INVALID_USER_ID"
	CategoryPermissionDenied    ErrorCategory = "PERMISSION_DENIED"
	CategoryChannelNotFound     ErrorCategory = "CHANNEL_NOT_FOUND"
	CategoryUserNotFound        ErrorCategory = "USER_NOT_FOUND"
	CategoryRateLimitExceeded   ErrorCategory = "RATE_LIMIT_EXCEEDED"
	CategoryTransientAPIFailure ErrorCategory = "TRANSIENT_API_FAILURE"
	CategoryPermanentAPIFailure ErrorCategory = "PERMANENT_API_FAILURE"
)

// IsRetryable reports whether the orchestrator may retry a failure of this
// category. Rate-limit rejections are surfaced to the caller instead.
func IsRetryable(c ErrorCategory) bool {
	return c == CategoryTransientAPIFailure
}

// Rate limit subjects.
const (
	SubjectUser    = "user"
	SubjectChannel = "channel"
)

// InviteError carries a category and, when it came from the platform, the raw cause.
type InviteError struct {
	Category ErrorCategory
	Subject  string
	Message  string
	Err      error
}

func (e *InviteError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Category)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *InviteError) Unwrap() error { return e.Err }

// Is matches any *InviteError of the same category, so the sentinels below
// work with errors.Is.
func (e *InviteError) Is(target error) bool {
	t, ok := target.(*InviteError)
	if !ok {
		return false
	}
	return t.Category == e.Category
}

var (
	ErrInvalidChannelID    = &InviteError{Category: CategoryInvalidChannelID, Message: "invalid channel id"}
	ErrInvalidUserID       = &InviteError{Category: CategoryInvalidUserID, Message: "invalid user id"}
	ErrPermissionDenied    = &InviteError{Category: CategoryPermissionDenied, Message: "bot lacks admin rights in channel"}
	ErrChannelNotFound     = &InviteError{Category: CategoryChannelNotFound, Message: "channel not found"}
	ErrUserNotFound        = &InviteError{Category: CategoryUserNotFound, Message: "user not found"}
	ErrRateLimitExceeded   = &InviteError{Category: CategoryRateLimitExceeded, Message: "invitation rate limit exceeded"}
	ErrTransientAPIFailure = &InviteError{Category: CategoryTransientAPIFailure, Message: "transient chat api failure"}
	ErrPermanentAPIFailure = &InviteError{Category: CategoryPermanentAPIFailure, Message: "chat api failure"}
)

func newInviteError(category ErrorCategory, cause error) *InviteError {
	base := sentinelFor(category)
	return &InviteError{Category: category, Message: base.Message, Err: cause}
}

func newRateLimitError(subject string) *InviteError {
	return &InviteError{
		Category: CategoryRateLimitExceeded,
		Subject:  subject,
		Message:  fmt.Sprintf("invitation rate limit exceeded for %s", subject),
	}
}

func sentinelFor(c ErrorCategory) *InviteError {
	switch c {
	case CategoryInvalidChannelID:
		return ErrInvalidChannelID
	case CategoryInvalidUserID:
		return ErrInvalidUserID
	case CategoryPermissionDenied:
		return ErrPermissionDenied
	case CategoryChannelNotFound:
		return ErrChannelNotFound
	case CategoryUserNotFound:
		return ErrUserNotFound
	case CategoryRateLimitExceeded:
		return ErrRateLimitExceeded
	case CategoryTransientAPIFailure:
		return ErrTransientAPIFailure
	default:
		return ErrPermanentAPIFailure
	}
}
