package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/arnold/stakeit-api/internal/config"
	"github.com/arnold/stakeit-api/internal/database"
	"github.com/arnold/stakeit-api/internal/handlers"
	"github.com/arnold/stakeit-api/internal/locks"
	"github.com/arnold/stakeit-api/internal/logger"
	"github.com/arnold/stakeit-api/internal/payments"
	"github.com/arnold/stakeit-api/internal/processor"
	"github.com/arnold/stakeit-api/internal/repository"
	"github.com/arnold/stakeit-api/internal/routes"
	"github.com/arnold/stakeit-api/internal/services"
)

type appContext struct {
	cfg *config.Config
}

// open connects and migrates the database.
func (a *appContext) open() (*gorm.DB, error) {
	db, err := database.Connect(database.Options{URL: a.cfg.DatabaseURL, Verbose: a.cfg.Debug})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(app *appContext) error {
	if _, err := app.open(); err != nil {
		return err
	}
	logger.Info("database migrated")
	return nil
}

type ReconcileCmd struct {
	Goal string `help:"Goal ID to reconcile." required:""`
}

func (c *ReconcileCmd) Run(app *appContext) error {
	goalID, err := uuid.Parse(c.Goal)
	if err != nil {
		return fmt.Errorf("invalid goal id: %w", err)
	}

	db, err := app.open()
	if err != nil {
		return err
	}
	store := repository.New(db)
	orch := payments.New(processor.Disabled{}, payments.Options{Currency: app.cfg.Currency})
	goals := services.NewGoalService(store, orch, nil)

	stats, err := goals.ReconcileAny(context.Background(), goalID)
	if err != nil {
		return err
	}
	logger.Info("goal reconciled",
		"goal", goalID,
		"completed", stats.CompletedDays,
		"failed", stats.FailedDays,
		"currentStreak", stats.CurrentStreak,
		"longestStreak", stats.LongestStreak,
		"paid", stats.TotalPaid.StringFixed(2),
	)
	return nil
}

type ServeCmd struct {
	Port string `help:"Listen port; overrides PORT." short:"p"`
}

func (c *ServeCmd) Run(app *appContext) error {
	cfg := app.cfg
	if c.Port != "" {
		cfg.Port = c.Port
	}

	db, err := app.open()
	if err != nil {
		return err
	}
	store := repository.New(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var proc processor.Processor = processor.Disabled{}
	if cfg.StripeSecretKey != "" {
		proc = processor.NewStripe(cfg.StripeSecretKey, cfg.ProcessorTimeout)
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, payments disabled")
	}

	var locker locks.Locker = locks.NewLocal()
	if cfg.RedisAddress != "" {
		redisLocker, rdb := locks.NewRedis(cfg.RedisAddress)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		locker = redisLocker
	}

	orch := payments.New(proc, payments.Options{
		Currency: cfg.Currency,
		Charity:  cfg.CharityName,
		Timeout:  cfg.ProcessorTimeout,
		Locker:   locker,
	})

	notifier := services.NewNotifier(store, services.NewPush(ctx, cfg.FCMServiceAccount, store))
	goals := services.NewGoalService(store, orch, nil)
	h := handlers.New(
		cfg.JWTSecret,
		services.NewUserService(store),
		goals,
		services.NewCheckInService(store, goals, orch, notifier, nil),
		services.NewPaymentService(store, orch, notifier),
		services.NewNotificationService(store),
	)
	h.UploadDir = cfg.UploadDir

	server := fiber.New(handlers.Config())
	server.Use(recover.New())
	server.Use(fiberlogger.New())
	server.Use(cors.New())
	server.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	server.Static("/uploads", cfg.UploadDir)
	routes.Setup(server, h, cfg.JWTSecret)

	go func() {
		<-ctx.Done()
		if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error("shutdown", "err", err)
		}
	}()

	logger.Info("listening", "port", cfg.Port)
	return server.Listen(":" + cfg.Port)
}
