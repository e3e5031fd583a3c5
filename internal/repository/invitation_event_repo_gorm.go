package repository

import (
	"context"

	"gorm.io/gorm"

	"signalhub/invitehub/internal/model"
)

type gormInvitationEventRepository struct {
	db *gorm.DB
}

// NewGormInvitationEventRepository works against any gorm dialect (postgres, sqlite).
func NewGormInvitationEventRepository(db *gorm.DB) InvitationEventRepository {
	return &gormInvitationEventRepository{db: db}
}

func (r *gormInvitationEventRepository) Create(ctx context.Context, event *model.InvitationEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *gormInvitationEventRepository) ListByChannel(ctx context.Context, channelID string, limit int) ([]model.InvitationEvent, error) {
	var events []model.InvitationEvent
	q := r.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("occurred_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *gormInvitationEventRepository) CountByStatus(ctx context.Context, channelID string) (map[model.InvitationStatus]int64, error) {
	var rows []struct {
		Status model.InvitationStatus
		Total  int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.InvitationEvent{}).
		Select("status, COUNT(*) AS total").
		Where("channel_id = ? AND name = ?", channelID, model.EventInvitation).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[model.InvitationStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
