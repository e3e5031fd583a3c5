package repository

import (
	"context"

	"signalhub/invitehub/internal/model"
)

type InvitationEventRepository interface {
	Create(ctx context.Context, event *model.InvitationEvent) error
	ListByChannel(ctx context.Context, channelID string, limit int) ([]model.InvitationEvent, error)
	CountByStatus(ctx context.Context, channelID string) (map[model.InvitationStatus]int64, error)
}
