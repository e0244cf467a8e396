package repository

import (
	"context"

	"github.com/arnold/stakeit-api/internal/models"
	"github.com/google/uuid"
)

func (s *Store) CreateGoal(ctx context.Context, goal *models.Goal) error {
	return translate(s.conn(ctx).Create(goal).Error)
}

func (s *Store) GetGoal(ctx context.Context, id uuid.UUID) (*models.Goal, error) {
	var goal models.Goal
	if err := s.conn(ctx).First(&goal, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &goal, nil
}

// GetGoalForUpdate loads the goal and locks its row until the transaction
// ends, serializing counter updates for the same goal.
func (s *Store) GetGoalForUpdate(ctx context.Context, id uuid.UUID) (*models.Goal, error) {
	var goal models.Goal
	if err := s.forUpdate(ctx).First(&goal, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &goal, nil
}

func (s *Store) SaveGoal(ctx context.Context, goal *models.Goal) error {
	return translate(s.conn(ctx).Omit("CheckIns", "Payments").Save(goal).Error)
}

type GoalFilter struct {
	UserID uuid.UUID
	Status models.GoalStatus
}

func (s *Store) ListGoals(ctx context.Context, f GoalFilter) ([]models.Goal, error) {
	q := s.conn(ctx).Where("user_id = ?", f.UserID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var goals []models.Goal
	if err := q.Order("created_at DESC").Find(&goals).Error; err != nil {
		return nil, err
	}
	return goals, nil
}
