package handlers

import (
	"errors"
	"strings"

	"github.com/arnold/stakeit-api/internal/apperr"
	"github.com/arnold/stakeit-api/internal/logger"
	"github.com/arnold/stakeit-api/internal/models"
	"github.com/arnold/stakeit-api/internal/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handler binds the HTTP surface to the services. It holds no request state.
type Handler struct {
	Users         *services.UserService
	Goals         *services.GoalService
	CheckIns      *services.CheckInService
	Payments      *services.PaymentService
	Notifications *services.NotificationService

	// UploadDir is where avatar images are written.
	UploadDir string

	jwtSecret string
	validate  *validator.Validate
}

func New(jwtSecret string, users *services.UserService, goals *services.GoalService, checkIns *services.CheckInService, payments *services.PaymentService, notifications *services.NotificationService) *Handler {
	return &Handler{
		Users:         users,
		Goals:         goals,
		CheckIns:      checkIns,
		Payments:      payments,
		Notifications: notifications,
		UploadDir:     "uploads",
		jwtSecret:     jwtSecret,
		validate:      validator.New(),
	}
}

func ok(c *fiber.Ctx, message string, data interface{}) error {
	return c.JSON(models.APIResponse{Success: true, Message: message, Data: data, Errors: []models.ErrorDetail{}})
}

func created(c *fiber.Ctx, message string, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(models.APIResponse{Success: true, Message: message, Data: data, Errors: []models.ErrorDetail{}})
}

// fail writes err as an envelope. Internal errors are logged and masked.
func fail(c *fiber.Ctx, err error) error {
	return failWith(c, err, nil)
}

// failWith reports an error but still returns data, used when a payment
// outcome accompanies the error.
func failWith(c *fiber.Ctx, err error, data interface{}) error {
	var invalid *invalidRequest
	if errors.As(err, &invalid) {
		return c.Status(fiber.StatusBadRequest).JSON(models.APIResponse{
			Success: false,
			Message: "Validation failed",
			Data:    data,
			Errors:  invalid.details,
		})
	}

	appErr := apperr.As(err)
	status := statusFor(appErr.Kind)
	if status == fiber.StatusInternalServerError {
		logger.Error("request failed", "method", c.Method(), "path", c.Path(), "err", err)
	}
	return c.Status(status).JSON(models.APIResponse{
		Success: false,
		Message: appErr.Message,
		Data:    data,
		Errors:  []models.ErrorDetail{{Kind: string(appErr.Kind), Message: appErr.Message}},
	})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound, apperr.KindNothingToRefund:
		return fiber.StatusNotFound
	case apperr.KindUnauthorized:
		return fiber.StatusUnauthorized
	case apperr.KindForbidden:
		return fiber.StatusForbidden
	case apperr.KindDuplicateCheckIn, apperr.KindInvalidState:
		return fiber.StatusConflict
	case apperr.KindInvalidTransition:
		return fiber.StatusUnprocessableEntity
	case apperr.KindPaymentMethodRequired, apperr.KindProcessorDeclined:
		return fiber.StatusPaymentRequired
	case apperr.KindProcessorUnavailable:
		return fiber.StatusServiceUnavailable
	case apperr.KindValidation:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

type invalidRequest struct {
	details []models.ErrorDetail
}

func (e *invalidRequest) Error() string {
	return "invalid request"
}

// bind parses the JSON body into dst and runs its validate tags.
func (h *Handler) bind(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return apperr.Wrap(apperr.KindValidation, "Invalid request body", err)
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return apperr.Internal(err)
		}
		details := make([]models.ErrorDetail, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, models.ErrorDetail{
				Kind:    string(apperr.KindValidation),
				Field:   lowerFirst(fe.Field()),
				Message: fe.Field() + " failed " + fe.Tag() + " validation",
			})
		}
		return &invalidRequest{details: details}
	}
	return nil
}

func paramID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, apperr.New(apperr.KindValidation, "Invalid "+name)
	}
	return id, nil
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// Config returns the fiber settings the API is served with. The body limit
// leaves room for a full-size avatar plus multipart framing.
func Config() fiber.Config {
	return fiber.Config{
		AppName:      "stakeit",
		ErrorHandler: ErrorHandler,
		BodyLimit:    maxAvatarSize + 1024*1024,
	}
}

// ErrorHandler renders errors that escape a handler, such as unknown routes
// and oversized bodies, in the same envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		kind := "http"
		if fe.Code == fiber.StatusNotFound {
			kind = string(apperr.KindNotFound)
		}
		return c.Status(fe.Code).JSON(models.APIResponse{
			Success: false,
			Message: fe.Message,
			Errors:  []models.ErrorDetail{{Kind: kind, Message: fe.Message}},
		})
	}
	return fail(c, err)
}
