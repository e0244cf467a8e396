package repository

import (
	"context"

	"github.com/arnold/stakeit-api/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return translate(s.conn(ctx).Create(payment).Error)
}

// UpdatePayment writes status transitions and processor details. Amount,
// type and ownership are fixed at insert.
func (s *Store) UpdatePayment(ctx context.Context, payment *models.Payment) error {
	return translate(s.conn(ctx).Model(payment).
		Select("status", "processor_transaction_id", "failure_reason", "metadata", "processed_at", "updated_at").
		Updates(payment).Error)
}

func (s *Store) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := s.conn(ctx).First(&payment, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &payment, nil
}

type PaymentFilter struct {
	UserID    uuid.UUID
	GoalID    *uuid.UUID
	CheckInID *uuid.UUID
	Types     []models.PaymentType
	Statuses  []models.PaymentStatus
}

func (s *Store) paymentQuery(ctx context.Context, f PaymentFilter) *gorm.DB {
	q := s.conn(ctx).Model(&models.Payment{})
	if f.UserID != uuid.Nil {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.GoalID != nil {
		q = q.Where("goal_id = ?", *f.GoalID)
	}
	if f.CheckInID != nil {
		q = q.Where("check_in_id = ?", *f.CheckInID)
	}
	if len(f.Types) > 0 {
		q = q.Where("type IN ?", f.Types)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	return q
}

// ListPayments returns matching payments, newest first.
func (s *Store) ListPayments(ctx context.Context, f PaymentFilter) ([]models.Payment, error) {
	var payments []models.Payment
	if err := s.paymentQuery(ctx, f).Order("created_at DESC").Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// LatestPayment returns the newest matching payment or ErrNotFound.
func (s *Store) LatestPayment(ctx context.Context, f PaymentFilter) (*models.Payment, error) {
	var payment models.Payment
	if err := s.paymentQuery(ctx, f).Order("created_at DESC").First(&payment).Error; err != nil {
		return nil, translate(err)
	}
	return &payment, nil
}

func (s *Store) CountPayments(ctx context.Context, f PaymentFilter) (int64, error) {
	var n int64
	if err := s.paymentQuery(ctx, f).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
