package repository

import (
	"context"

	"github.com/arnold/stakeit-api/internal/models"
	"github.com/google/uuid"
)

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	return translate(s.conn(ctx).Create(user).Error)
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.conn(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.conn(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *Store) SaveUser(ctx context.Context, user *models.User) error {
	return translate(s.conn(ctx).Save(user).Error)
}

func (s *Store) SetDeviceToken(ctx context.Context, userID uuid.UUID, token string) error {
	res := s.conn(ctx).Model(&models.User{}).Where("id = ?", userID).Update("fcm_token", token)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetProcessorCustomer(ctx context.Context, userID uuid.UUID, customerID string) error {
	return s.conn(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("processor_customer_id", customerID).Error
}
