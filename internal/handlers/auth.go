package handlers

import (
	"github.com/arnold/stakeit-api/internal/apperr"
	"github.com/arnold/stakeit-api/internal/middleware"
	"github.com/arnold/stakeit-api/internal/models"
	"github.com/gofiber/fiber/v2"
)

func (h *Handler) Register(c *fiber.Ctx) error {
	var req models.RegisterRequest
	if err := h.bind(c, &req); err != nil {
		return fail(c, err)
	}

	user, err := h.Users.Register(c.UserContext(), req)
	if err != nil {
		return fail(c, err)
	}

	token, err := middleware.GenerateToken(h.jwtSecret, user.ID, user.Email)
	if err != nil {
		return fail(c, apperr.Internal(err))
	}

	return created(c, "Account created", models.AuthResponse{
		Token: token,
		User:  *user,
	})
}

func (h *Handler) Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := h.bind(c, &req); err != nil {
		return fail(c, err)
	}

	user, err := h.Users.Login(c.UserContext(), req)
	if err != nil {
		return fail(c, err)
	}

	token, err := middleware.GenerateToken(h.jwtSecret, user.ID, user.Email)
	if err != nil {
		return fail(c, apperr.Internal(err))
	}

	return ok(c, "Logged in", models.AuthResponse{
		Token: token,
		User:  *user,
	})
}

func (h *Handler) GetMe(c *fiber.Ctx) error {
	user, err := h.Users.Get(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "", user)
}

func (h *Handler) UpdateProfile(c *fiber.Ctx) error {
	var req models.UpdateProfileRequest
	if err := h.bind(c, &req); err != nil {
		return fail(c, err)
	}

	user, err := h.Users.UpdateProfile(c.UserContext(), middleware.GetUserID(c), req)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "Profile updated", user)
}

// RegisterDeviceToken saves the FCM token for push notifications
func (h *Handler) RegisterDeviceToken(c *fiber.Ctx) error {
	var req struct {
		Token string `json:"token" validate:"required"`
	}
	if err := h.bind(c, &req); err != nil {
		return fail(c, err)
	}

	if err := h.Users.SetDeviceToken(c.UserContext(), middleware.GetUserID(c), req.Token); err != nil {
		return fail(c, err)
	}
	return ok(c, "Device registered", nil)
}
