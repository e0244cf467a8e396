package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaymentType string

const (
	PaymentTypeStakeAuthorization PaymentType = "stake_authorization"
	PaymentTypeFailurePenalty     PaymentType = "failure_penalty"
	PaymentTypeRefund             PaymentType = "refund"
	PaymentTypeProcessingFee      PaymentType = "processing_fee"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusAuthorized PaymentStatus = "authorized"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

// Payment is an append-only audit record. Only status and processing fields
// change after insert; rows are never deleted by application code.
type Payment struct {
	ID                     uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	UserID                 uuid.UUID         `json:"userId" gorm:"type:uuid;index;not null"`
	GoalID                 *uuid.UUID        `json:"goalId" gorm:"type:uuid;index"`
	CheckInID              *uuid.UUID        `json:"checkInId" gorm:"type:uuid;index"`
	Amount                 decimal.Decimal   `json:"amount" gorm:"type:decimal(12,2);not null"` // negative for refunds
	Currency               string            `json:"currency" gorm:"type:varchar(3);not null"`
	Type                   PaymentType       `json:"type" gorm:"type:varchar(32);not null;index"`
	Status                 PaymentStatus     `json:"status" gorm:"type:varchar(16);not null;default:'pending'"`
	ProcessorTransactionID *string           `json:"processorTransactionId" gorm:"type:varchar(255)"`
	IdempotencyKey         string            `json:"-" gorm:"type:varchar(255);index"`
	FailureReason          *string           `json:"failureReason"`
	CharityName            *string           `json:"charityName"`
	Metadata               datatypes.JSONMap `json:"metadata"`
	CreatedAt              time.Time         `json:"createdAt"`
	ProcessedAt            *time.Time        `json:"processedAt"`
	UpdatedAt              time.Time         `json:"updatedAt"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

type AuthorizeStakeRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}
