package handlers

import (
	"context"

	"github.com/arnold/stakeit-api/internal/middleware"
	"github.com/arnold/stakeit-api/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func (h *Handler) GetGoals(c *fiber.Ctx) error {
	goals, err := h.Goals.List(c.UserContext(), middleware.GetUserID(c), models.GoalStatus(c.Query("status")))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "", goals)
}

func (h *Handler) CreateGoal(c *fiber.Ctx) error {
	var req models.CreateGoalRequest
	if err := h.bind(c, &req); err != nil {
		return fail(c, err)
	}

	goal, err := h.Goals.Create(c.UserContext(), middleware.GetUserID(c), req)
	if err != nil {
		return fail(c, err)
	}
	return created(c, "Goal created", goal)
}

func (h *Handler) GetGoal(c *fiber.Ctx) error {
	goalID, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}

	goal, err := h.Goals.Get(c.UserContext(), middleware.GetUserID(c), goalID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "", goal)
}

func (h *Handler) PauseGoal(c *fiber.Ctx) error {
	return h.goalTransition(c, "Goal paused", h.Goals.Pause)
}

func (h *Handler) ResumeGoal(c *fiber.Ctx) error {
	return h.goalTransition(c, "Goal resumed", h.Goals.Resume)
}

func (h *Handler) CancelGoal(c *fiber.Ctx) error {
	return h.goalTransition(c, "Goal cancelled", h.Goals.Cancel)
}

type goalTransitionFunc func(ctx context.Context, userID, goalID uuid.UUID) (*models.Goal, error)

func (h *Handler) goalTransition(c *fiber.Ctx, message string, apply goalTransitionFunc) error {
	goalID, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}

	goal, err := apply(c.UserContext(), middleware.GetUserID(c), goalID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, message, goal)
}

func (h *Handler) GetGoalStats(c *fiber.Ctx) error {
	goalID, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}

	stats, err := h.Goals.Stats(c.UserContext(), middleware.GetUserID(c), goalID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "", stats)
}

func (h *Handler) ReconcileGoal(c *fiber.Ctx) error {
	goalID, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}

	stats, err := h.Goals.Reconcile(c.UserContext(), middleware.GetUserID(c), goalID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "Goal counters reconciled", stats)
}
