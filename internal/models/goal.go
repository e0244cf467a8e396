package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type GoalStatus string

const (
	GoalStatusActive    GoalStatus = "active"
	GoalStatusPaused    GoalStatus = "paused"
	GoalStatusCompleted GoalStatus = "completed"
	GoalStatusFailed    GoalStatus = "failed"
	GoalStatusCancelled GoalStatus = "cancelled"
)

// Terminal reports whether no further user transition is allowed.
func (s GoalStatus) Terminal() bool {
	return s == GoalStatusCompleted || s == GoalStatusFailed || s == GoalStatusCancelled
}

type Goal struct {
	ID               uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	UserID           uuid.UUID       `json:"userId" gorm:"type:uuid;index;not null"`
	Title            string          `json:"title" gorm:"not null"`
	Description      *string         `json:"description"`
	Category         string          `json:"category" gorm:"not null;default:'general'"`
	Status           GoalStatus      `json:"status" gorm:"type:varchar(16);not null;default:'active';index"`
	StartDate        string          `json:"startDate" gorm:"type:varchar(10);not null"`
	EndDate          string          `json:"endDate" gorm:"type:varchar(10);not null"`
	DurationDays     int             `json:"durationDays" gorm:"not null"`
	TotalStakeAmount decimal.Decimal `json:"totalStakeAmount" gorm:"type:decimal(12,2);not null;default:0"`
	DailyStakeAmount decimal.Decimal `json:"dailyStakeAmount" gorm:"type:decimal(12,2);not null;default:0"`
	Currency         string          `json:"currency" gorm:"type:varchar(3);not null"`
	ReminderTime     *string         `json:"reminderTime" gorm:"type:varchar(5)"` // HH:MM, UTC

	// Cached projection of the check-in history, maintained by the goal ledger.
	SuccessfulDays int             `json:"successfulDays" gorm:"default:0"`
	FailedDays     int             `json:"failedDays" gorm:"default:0"`
	MissedDays     int             `json:"missedDays" gorm:"default:0"`
	CurrentStreak  int             `json:"currentStreak" gorm:"default:0"`
	LongestStreak  int             `json:"longestStreak" gorm:"default:0"`
	TotalPaid      decimal.Decimal `json:"totalPaid" gorm:"type:decimal(12,2);not null;default:0"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	CheckIns []CheckIn `json:"checkIns,omitempty" gorm:"foreignKey:GoalID;constraint:OnDelete:CASCADE"`
	Payments []Payment `json:"payments,omitempty" gorm:"foreignKey:GoalID;constraint:OnDelete:CASCADE"`
}

func (g *Goal) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

// DailyStake computes round(total / duration, 2).
func DailyStake(total decimal.Decimal, durationDays int) decimal.Decimal {
	if durationDays <= 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(durationDays))).Round(2)
}

// Goal DTOs
type CreateGoalRequest struct {
	Title            string          `json:"title" validate:"required,max=200"`
	Description      *string         `json:"description" validate:"omitempty,max=2000"`
	Category         string          `json:"category" validate:"omitempty,max=50"`
	StartDate        *string         `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	DurationDays     int             `json:"durationDays" validate:"required,min=1,max=365"`
	TotalStakeAmount decimal.Decimal `json:"totalStakeAmount"`
	ReminderTime     *string         `json:"reminderTime" validate:"omitempty,datetime=15:04"`
}

type GoalStats struct {
	GoalID         uuid.UUID `json:"goalId"`
	CurrentStreak  int       `json:"currentStreak"`
	LongestStreak  int       `json:"longestStreak"`
	TotalCheckIns  int       `json:"totalCheckIns"`
	CompletedDays  int       `json:"completedDays"`
	FailedDays     int       `json:"failedDays"`
	MissedDays     int       `json:"missedDays"`
	CompletionRate float64   `json:"completionRate"`
	LastCheckIn    *string   `json:"lastCheckIn"`
	DaysRemaining  int       `json:"daysRemaining"`

	TotalPaid decimal.Decimal `json:"totalPaid"`

	// Cached holds the counters stored on the goal; Drift is set when they
	// disagree with the recomputed values above.
	Cached GoalCounters `json:"cached"`
	Drift  bool         `json:"drift"`
}

type GoalCounters struct {
	SuccessfulDays int             `json:"successfulDays"`
	FailedDays     int             `json:"failedDays"`
	MissedDays     int             `json:"missedDays"`
	CurrentStreak  int             `json:"currentStreak"`
	LongestStreak  int             `json:"longestStreak"`
	TotalPaid      decimal.Decimal `json:"totalPaid"`
}

func (g *Goal) Counters() GoalCounters {
	return GoalCounters{
		SuccessfulDays: g.SuccessfulDays,
		FailedDays:     g.FailedDays,
		MissedDays:     g.MissedDays,
		CurrentStreak:  g.CurrentStreak,
		LongestStreak:  g.LongestStreak,
		TotalPaid:      g.TotalPaid,
	}
}

// Equal compares the history-derived counters. MissedDays is excluded: it
// grows with the calendar between writes, so a stale value is not drift.
func (c GoalCounters) Equal(o GoalCounters) bool {
	return c.SuccessfulDays == o.SuccessfulDays &&
		c.FailedDays == o.FailedDays &&
		c.CurrentStreak == o.CurrentStreak &&
		c.LongestStreak == o.LongestStreak &&
		c.TotalPaid.Equal(o.TotalPaid)
}

// Counters returns the recomputed values in the shape of the cached ones.
func (s *GoalStats) Counters() GoalCounters {
	return GoalCounters{
		SuccessfulDays: s.CompletedDays,
		FailedDays:     s.FailedDays,
		MissedDays:     s.MissedDays,
		CurrentStreak:  s.CurrentStreak,
		LongestStreak:  s.LongestStreak,
		TotalPaid:      s.TotalPaid,
	}
}
