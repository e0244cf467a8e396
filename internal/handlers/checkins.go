package handlers

import (
	"github.com/arnold/stakeit-api/internal/middleware"
	"github.com/arnold/stakeit-api/internal/models"
	"github.com/arnold/stakeit-api/internal/repository"
	"github.com/gofiber/fiber/v2"
)

// SubmitCheckIn records today's (or a backdated) outcome for a goal. A
// penalty that could not be collected is reported in paymentError; the
// check-in itself is still saved.
func (h *Handler) SubmitCheckIn(c *fiber.Ctx) error {
	goalID, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}

	var req models.SubmitCheckInRequest
	if err := h.bind(c, &req); err != nil {
		return fail(c, err)
	}

	res, err := h.CheckIns.Submit(c.UserContext(), middleware.GetUserID(c), goalID, req)
	if err != nil {
		return fail(c, err)
	}
	if res.Deferred {
		return ok(c, "Check-in deferred", res)
	}
	return created(c, checkInMessage(res), res)
}

func (h *Handler) GetCheckIns(c *fiber.Ctx) error {
	goalID, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}

	r := repository.DateRange{From: c.Query("from"), To: c.Query("to")}
	list, err := h.CheckIns.List(c.UserContext(), middleware.GetUserID(c), goalID, r)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "", list)
}

// GetTodayCheckIn returns null data when nothing has been recorded today.
func (h *Handler) GetTodayCheckIn(c *fiber.Ctx) error {
	goalID, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}

	checkIn, err := h.CheckIns.Today(c.UserContext(), middleware.GetUserID(c), goalID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "", checkIn)
}

func (h *Handler) UpdateCheckIn(c *fiber.Ctx) error {
	checkInID, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}

	var req models.UpdateCheckInRequest
	if err := h.bind(c, &req); err != nil {
		return fail(c, err)
	}

	res, err := h.CheckIns.Update(c.UserContext(), middleware.GetUserID(c), checkInID, req)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, checkInMessage(res), res)
}

func (h *Handler) DeleteCheckIn(c *fiber.Ctx) error {
	checkInID, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}

	if err := h.CheckIns.Delete(c.UserContext(), middleware.GetUserID(c), checkInID); err != nil {
		return fail(c, err)
	}
	return ok(c, "Check-in deleted", nil)
}

// RetryPenalty charges the penalty of a failed check-in whose earlier
// attempt did not settle.
func (h *Handler) RetryPenalty(c *fiber.Ctx) error {
	checkInID, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}

	res, err := h.CheckIns.ChargePenalty(c.UserContext(), middleware.GetUserID(c), checkInID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, checkInMessage(res), res)
}

func checkInMessage(res *models.CheckInResult) string {
	if res.PaymentError != nil {
		return "Check-in recorded, penalty not collected"
	}
	return "Check-in recorded"
}
