package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	NotificationReminderScheduled = "reminder_scheduled"
	NotificationPenaltyCharged    = "penalty_charged"
	NotificationPenaltyFailed     = "penalty_failed"
	NotificationStakeRefunded     = "stake_refunded"
)

type Notification struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `json:"userId" gorm:"type:uuid;index;not null"`
	Type      string    `json:"type" gorm:"not null"` // reminder_scheduled, penalty_charged, penalty_failed, stake_refunded
	Title     string    `json:"title" gorm:"not null"`
	Body      string    `json:"body"`
	Read      bool      `json:"read" gorm:"default:false"`
	Metadata  *string   `json:"metadata"` // JSON string for navigation context (goalId, checkInId, ...)
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
