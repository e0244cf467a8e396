package database

import (
	"strings"

	"github.com/arnold/stakeit-api/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

type Options struct {
	URL     string
	Verbose bool
}

func Connect(opts Options) (*gorm.DB, error) {
	var dialector gorm.Dialector

	// Use PostgreSQL if URL starts with postgres, otherwise SQLite
	isPostgres := strings.HasPrefix(opts.URL, "postgres")
	if isPostgres {
		dialector = postgres.Open(opts.URL)
	} else {
		dialector = sqlite.Open(opts.URL)
	}

	logLevel := logger.Warn
	if opts.Verbose {
		logLevel = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		// Map driver unique violations to gorm.ErrDuplicatedKey
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if !isPostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// SQLite allows a single writer; serialize through one connection so
		// concurrent transactions queue instead of failing with SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, err
		}
	}

	DB = db
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Goal{},
		&models.CheckIn{},
		&models.Payment{},
		&models.Notification{},
	)
}
