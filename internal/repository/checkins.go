package repository

import (
	"context"

	"github.com/arnold/stakeit-api/internal/models"
	"github.com/google/uuid"
)

// InsertCheckIn inserts a new check-in. A second row for the same
// (goal, date) is rejected by idx_checkin_goal_date and reported as
// ErrDuplicate.
func (s *Store) InsertCheckIn(ctx context.Context, checkIn *models.CheckIn) error {
	return translate(s.conn(ctx).Create(checkIn).Error)
}

func (s *Store) GetCheckIn(ctx context.Context, id uuid.UUID) (*models.CheckIn, error) {
	var checkIn models.CheckIn
	if err := s.conn(ctx).First(&checkIn, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &checkIn, nil
}

func (s *Store) GetCheckInForUpdate(ctx context.Context, id uuid.UUID) (*models.CheckIn, error) {
	var checkIn models.CheckIn
	if err := s.forUpdate(ctx).First(&checkIn, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &checkIn, nil
}

func (s *Store) GetCheckInByDate(ctx context.Context, goalID uuid.UUID, date string) (*models.CheckIn, error) {
	var checkIn models.CheckIn
	if err := s.conn(ctx).Where("goal_id = ? AND date = ?", goalID, date).First(&checkIn).Error; err != nil {
		return nil, translate(err)
	}
	return &checkIn, nil
}

// SaveCheckIn persists revisable fields. Goal and date are never rewritten.
func (s *Store) SaveCheckIn(ctx context.Context, checkIn *models.CheckIn) error {
	return translate(s.conn(ctx).Model(checkIn).
		Select("completed", "notes", "payment_processed", "amount_charged", "payment_id", "streak_count", "updated_at").
		Updates(checkIn).Error)
}

// SetStreakCount rewrites only the stored streak of a check-in.
func (s *Store) SetStreakCount(ctx context.Context, id uuid.UUID, count int) error {
	return s.conn(ctx).Model(&models.CheckIn{}).
		Where("id = ?", id).
		Update("streak_count", count).Error
}

func (s *Store) DeleteCheckIn(ctx context.Context, id uuid.UUID) error {
	res := s.conn(ctx).Delete(&models.CheckIn{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DateRange bounds a check-in query. Empty bounds are open; both ends are
// inclusive. Dates compare lexically, which matches calendar order for
// YYYY-MM-DD.
type DateRange struct {
	From string
	To   string
}

// ListCheckIns returns the goal's check-ins in ascending date order.
func (s *Store) ListCheckIns(ctx context.Context, goalID uuid.UUID, r DateRange) ([]models.CheckIn, error) {
	q := s.conn(ctx).Where("goal_id = ?", goalID)
	if r.From != "" {
		q = q.Where("date >= ?", r.From)
	}
	if r.To != "" {
		q = q.Where("date <= ?", r.To)
	}

	var checkIns []models.CheckIn
	if err := q.Order("date ASC").Find(&checkIns).Error; err != nil {
		return nil, err
	}
	return checkIns, nil
}

// CheckInsBefore returns check-ins strictly before date, newest first.
func (s *Store) CheckInsBefore(ctx context.Context, goalID uuid.UUID, date string) ([]models.CheckIn, error) {
	var checkIns []models.CheckIn
	if err := s.conn(ctx).
		Where("goal_id = ? AND date < ?", goalID, date).
		Order("date DESC").
		Find(&checkIns).Error; err != nil {
		return nil, err
	}
	return checkIns, nil
}
