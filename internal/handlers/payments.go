package handlers

import (
	"github.com/arnold/stakeit-api/internal/middleware"
	"github.com/arnold/stakeit-api/internal/models"
	"github.com/gofiber/fiber/v2"
)

func (h *Handler) AuthorizeStake(c *fiber.Ctx) error {
	goalID, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}

	var req models.AuthorizeStakeRequest
	if len(c.Body()) > 0 {
		if err := h.bind(c, &req); err != nil {
			return fail(c, err)
		}
	}

	payment, err := h.Payments.AuthorizeStake(c.UserContext(), middleware.GetUserID(c), goalID, req.Amount)
	if err != nil {
		return fail(c, err)
	}
	return created(c, "Stake authorized", payment)
}

func (h *Handler) CaptureStake(c *fiber.Ctx) error {
	goalID, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}

	payment, err := h.Payments.CaptureStake(c.UserContext(), middleware.GetUserID(c), goalID)
	if err != nil {
		return failWith(c, err, payment)
	}
	return ok(c, "Stake captured", payment)
}

func (h *Handler) RefundStake(c *fiber.Ctx) error {
	goalID, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}

	refund, err := h.Payments.RefundStake(c.UserContext(), middleware.GetUserID(c), goalID)
	if err != nil {
		return failWith(c, err, refund)
	}
	return ok(c, "Stake refunded", refund)
}

func (h *Handler) GetGoalPayments(c *fiber.Ctx) error {
	goalID, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}

	list, err := h.Payments.ListForGoal(c.UserContext(), middleware.GetUserID(c), goalID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "", list)
}

func (h *Handler) GetPayments(c *fiber.Ctx) error {
	list, err := h.Payments.List(c.UserContext(), middleware.GetUserID(c), models.PaymentType(c.Query("type")))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "", list)
}
