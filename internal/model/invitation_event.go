package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	EventInvitationAttempt = "channel_invitation_attempt"
	EventInvitation        = "channel_invitation"
)

type InvitationStatus string

const (
	InvitationStatusPending InvitationStatus = "pending"
	InvitationStatusSuccess InvitationStatus = "success"
	InvitationStatusError   InvitationStatus = "error"
)

// InvitationEvent is one audit record emitted by the invitation flow.
// It is stored as JSON in the per-channel history list and, for outcome
// events, optionally archived in SQL.
type InvitationEvent struct {
	ID             uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	AttemptID      uuid.UUID        `gorm:"type:uuid;index;not null" json:"attempt_id"`
	Name           string           `gorm:"type:varchar(64);not null" json:"event"`
	ChannelID      string           `gorm:"type:varchar(64);index;not null" json:"channel_id"`
	UserID         string           `gorm:"type:varchar(64);index;not null" json:"user_id"`
	ChannelType    string           `gorm:"type:varchar(32)" json:"channel_type,omitempty"`
	Status         InvitationStatus `gorm:"type:varchar(16);not null" json:"status"`
	ErrorCode      string           `gorm:"type:varchar(64)" json:"error_code,omitempty"`
	ErrorMessage   string           `gorm:"type:text" json:"error_message,omitempty"`
	Attempts       int              `gorm:"not null;default:0" json:"attempts"`
	ResponseTimeMs int64            `gorm:"not null;default:0" json:"response_time_ms"`
	UsedFallback   bool             `gorm:"not null;default:false" json:"used_fallback"`
	OccurredAt     time.Time        `gorm:"index;not null" json:"occurred_at"`
	CreatedAt      time.Time        `json:"-"`
}

func (InvitationEvent) TableName() string { return "invitation_events" }

func (e *InvitationEvent) BeforeCreate(_ *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
