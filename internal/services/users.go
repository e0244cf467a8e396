package services

import (
	"context"
	"errors"
	"strings"

	"github.com/arnold/stakeit-api/internal/apperr"
	"github.com/arnold/stakeit-api/internal/models"
	"github.com/arnold/stakeit-api/internal/repository"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = apperr.New(apperr.KindUnauthorized, "Invalid credentials")

type UserService struct {
	store *repository.Store
}

func NewUserService(store *repository.Store) *UserService {
	return &UserService{store: store}
}

func (s *UserService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, apperr.New(apperr.KindValidation, "Email and password are required")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	user := &models.User{
		Email:       email,
		Password:    string(hashedPassword),
		Name:        req.Name,
		DisplayName: req.Name,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.New(apperr.KindInvalidState, "Email already registered")
		}
		return nil, apperr.Internal(err)
	}
	return user, nil
}

func (s *UserService) Login(ctx context.Context, req models.LoginRequest) (*models.User, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *UserService) Get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, lookup(err, "User")
	}
	return user, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID uuid.UUID, req models.UpdateProfileRequest) (*models.User, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.DisplayName != nil {
		user.DisplayName = *req.DisplayName
	}
	if req.AvatarURL != nil {
		user.AvatarURL = *req.AvatarURL
	}
	if err := s.store.SaveUser(ctx, user); err != nil {
		return nil, apperr.Internal(err)
	}
	return user, nil
}

// SetDeviceToken saves the FCM token for push notifications.
func (s *UserService) SetDeviceToken(ctx context.Context, userID uuid.UUID, token string) error {
	if strings.TrimSpace(token) == "" {
		return apperr.New(apperr.KindValidation, "Token is required")
	}
	if err := s.store.SetDeviceToken(ctx, userID, token); err != nil {
		return lookup(err, "User")
	}
	return nil
}

// NotificationService reads and acknowledges in-app notifications.
type NotificationService struct {
	store *repository.Store
}

func NewNotificationService(store *repository.Store) *NotificationService {
	return &NotificationService{store: store}
}

func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, page, limit int) (*repository.NotificationPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 50 {
		limit = 20
	}
	out, err := s.store.ListNotifications(ctx, userID, page, limit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return out, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.store.MarkNotificationRead(ctx, userID, id); err != nil {
		return lookup(err, "Notification")
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	if err := s.store.MarkAllNotificationsRead(ctx, userID); err != nil {
		return apperr.Internal(err)
	}
	return nil
}
