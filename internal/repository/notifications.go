package repository

import (
	"context"

	"github.com/arnold/stakeit-api/internal/models"
	"github.com/google/uuid"
)

func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	return s.conn(ctx).Create(n).Error
}

type NotificationPage struct {
	Notifications []models.Notification `json:"notifications"`
	Total         int64                 `json:"total"`
	Unread        int64                 `json:"unread"`
	Page          int                   `json:"page"`
	Limit         int                   `json:"limit"`
}

func (s *Store) ListNotifications(ctx context.Context, userID uuid.UUID, page, limit int) (*NotificationPage, error) {
	offset := (page - 1) * limit

	out := &NotificationPage{Page: page, Limit: limit}
	if err := s.conn(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&out.Notifications).Error; err != nil {
		return nil, err
	}

	if err := s.conn(ctx).Model(&models.Notification{}).Where("user_id = ?", userID).Count(&out.Total).Error; err != nil {
		return nil, err
	}
	if err := s.conn(ctx).Model(&models.Notification{}).Where("user_id = ? AND read = ?", userID, false).Count(&out.Unread).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, userID, id uuid.UUID) error {
	res := s.conn(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) error {
	return s.conn(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true).Error
}
