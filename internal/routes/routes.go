package routes

import (
	"github.com/arnold/stakeit-api/internal/handlers"
	"github.com/arnold/stakeit-api/internal/middleware"
	"github.com/gofiber/fiber/v2"
)

func Setup(app *fiber.App, h *handlers.Handler, jwtSecret string) {
	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", h.Register)
	auth.Post("/login", h.Login)

	protected := api.Group("/", middleware.Protected(jwtSecret))

	protected.Get("/me", h.GetMe)
	protected.Put("/me", h.UpdateProfile)
	protected.Post("/me/avatar", h.UploadAvatar)

	// Device token for push notifications
	protected.Post("/device-token", h.RegisterDeviceToken)

	goals := protected.Group("/goals")
	goals.Get("/", h.GetGoals)
	goals.Post("/", h.CreateGoal)
	goals.Get("/:id", h.GetGoal)
	goals.Post("/:id/pause", h.PauseGoal)
	goals.Post("/:id/resume", h.ResumeGoal)
	goals.Post("/:id/cancel", h.CancelGoal)
	goals.Get("/:id/stats", h.GetGoalStats)
	goals.Post("/:id/reconcile", h.ReconcileGoal)

	// Check-ins
	goals.Get("/:id/checkins", h.GetCheckIns)
	goals.Post("/:id/checkins", h.SubmitCheckIn)
	goals.Get("/:id/checkins/today", h.GetTodayCheckIn)

	checkins := protected.Group("/checkins")
	checkins.Put("/:id", h.UpdateCheckIn)
	checkins.Delete("/:id", h.DeleteCheckIn)
	checkins.Post("/:id/charge", h.RetryPenalty)

	// Stake and payments
	goals.Post("/:id/stake/authorize", h.AuthorizeStake)
	goals.Post("/:id/stake/capture", h.CaptureStake)
	goals.Post("/:id/stake/refund", h.RefundStake)
	goals.Get("/:id/payments", h.GetGoalPayments)
	protected.Get("/payments", h.GetPayments)

	// Notifications
	notifications := protected.Group("/notifications")
	notifications.Get("/", h.GetNotifications)
	notifications.Put("/:id/read", h.MarkNotificationRead)
	notifications.Post("/read-all", h.MarkAllRead)
}
