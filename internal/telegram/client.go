// Package telegram wraps the Bot API calls the invitation flow depends on.
package telegram

import (
	"context"
	"fmt"
	"time"
)

const (
	MinMemberLimit = 1
	MaxMemberLimit = 99999
)

// InviteLink is a platform-issued join URL. It is never persisted.
type InviteLink struct {
	URL           string
	ExpiresAt     *time.Time
	MemberLimit   int
	IsJoinRequest bool
}

// LinkOptions configures a scoped invite link.
type LinkOptions struct {
	Name               string
	ExpireAt           time.Time
	MemberLimit        int
	CreatesJoinRequest bool
}

type MessageHandle struct {
	ChatID    int64
	MessageID int
}

// Client is the subset of the chat platform used to issue and deliver invites.
type Client interface {
	// CreateScopedInviteLink needs the can_invite_users admin right.
	CreateScopedInviteLink(ctx context.Context, channelID string, opts LinkOptions) (*InviteLink, error)
	// CreateBasicInviteLink exports the channel's primary link.
	CreateBasicInviteLink(ctx context.Context, channelID string) (*InviteLink, error)
	SendDirectMessage(ctx context.Context, userID string, text string) (*MessageHandle, error)
}

// APIError is a failed Bot API response.
type APIError struct {
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram api error %d: %s (retry after %s)", e.Code, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

// NormalizeMemberLimit clamps limit into the range the Bot API accepts; 0 means unlimited.
func NormalizeMemberLimit(limit int) int {
	switch {
	case limit <= 0:
		return 0
	case limit > MaxMemberLimit:
		return MaxMemberLimit
	}
	return limit
}
