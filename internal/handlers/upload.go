package handlers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/arnold/stakeit-api/internal/apperr"
	"github.com/arnold/stakeit-api/internal/middleware"
	"github.com/arnold/stakeit-api/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const maxAvatarSize = 5 * 1024 * 1024

var avatarTypes = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}

// UploadAvatar stores a profile image under UploadDir and points the user's
// avatar at it. Files are served from /uploads.
func (h *Handler) UploadAvatar(c *fiber.Ctx) error {
	file, err := c.FormFile("image")
	if err != nil {
		return fail(c, apperr.New(apperr.KindValidation, "No image file provided"))
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !avatarTypes[ext] {
		return fail(c, apperr.New(apperr.KindValidation, "Only jpg, png, and webp images are allowed"))
	}
	if file.Size > maxAvatarSize {
		return fail(c, apperr.New(apperr.KindValidation, "Image must be under 5MB"))
	}

	if err := os.MkdirAll(h.UploadDir, 0755); err != nil {
		return fail(c, apperr.Internal(err))
	}

	filename := uuid.New().String() + ext
	if err := c.SaveFile(file, filepath.Join(h.UploadDir, filename)); err != nil {
		return fail(c, apperr.Internal(err))
	}

	url := fmt.Sprintf("/uploads/%s", filename)
	user, err := h.Users.UpdateProfile(c.UserContext(), middleware.GetUserID(c), models.UpdateProfileRequest{AvatarURL: &url})
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "Avatar updated", user)
}
