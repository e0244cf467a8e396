package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Outcome is the daily self-report submitted by the goal owner.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeDefer     Outcome = "defer"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeCompleted, OutcomeFailed, OutcomeDefer:
		return true
	}
	return false
}

// CheckIn is one report for one goal on one calendar day. The composite
// unique index is what makes concurrent submissions for the same day safe.
type CheckIn struct {
	ID               uuid.UUID           `json:"id" gorm:"type:uuid;primaryKey"`
	GoalID           uuid.UUID           `json:"goalId" gorm:"type:uuid;not null;uniqueIndex:idx_checkin_goal_date"`
	Date             string              `json:"date" gorm:"type:varchar(10);not null;uniqueIndex:idx_checkin_goal_date"`
	Completed        bool                `json:"completed" gorm:"not null"`
	Notes            *string             `json:"notes"`
	CheckedInAt      time.Time           `json:"checkedInAt" gorm:"not null"`
	PaymentProcessed bool                `json:"paymentProcessed" gorm:"default:false"`
	AmountCharged    decimal.NullDecimal `json:"amountCharged" gorm:"type:decimal(12,2)"`
	PaymentID        *uuid.UUID          `json:"paymentId" gorm:"type:uuid"`
	StreakCount      int                 `json:"streakCount" gorm:"default:0"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

func (c *CheckIn) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// CheckIn DTOs
type SubmitCheckInRequest struct {
	Outcome Outcome `json:"outcome" validate:"required,oneof=completed failed defer"`
	Date    *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Notes   *string `json:"notes" validate:"omitempty,max=1000"`
}

type UpdateCheckInRequest struct {
	Completed *bool   `json:"completed"`
	Notes     *string `json:"notes" validate:"omitempty,max=1000"`
}

// CheckInResult is returned by submit and update. A deferred submission has
// no CheckIn. PaymentError is set when the check-in was recorded but the
// penalty could not be collected.
type CheckInResult struct {
	CheckIn      *CheckIn      `json:"checkIn"`
	Deferred     bool          `json:"deferred"`
	Payment      *Payment      `json:"payment,omitempty"`
	PaymentError *PaymentError `json:"paymentError,omitempty"`
	Goal         *Goal         `json:"goal,omitempty"`
}

type PaymentError struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}
