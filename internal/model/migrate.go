package model

import "gorm.io/gorm"

// AutoMigrate runs GORM auto-migration for the audit archive tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&InvitationEvent{}); err != nil {
		return err
	}

	// Archive listings are always per channel, newest first.
	return db.Exec(
		"CREATE INDEX IF NOT EXISTS idx_invitation_events_channel_occurred " +
			"ON invitation_events (channel_id, occurred_at DESC)",
	).Error
}
