package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	agentdomain "github.com/smallbiznis/fieldops/internal/agent/domain"
	"github.com/smallbiznis/fieldops/pkg/db"
	"gorm.io/gorm"
)

const agentColumns = `id, user_id, display_name, current_load, max_load, status,
	latitude, longitude, created_at, updated_at`

type repo struct{}

func Provide() agentdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, a *agentdomain.Agent) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO agents (`+agentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.UserID,
		a.DisplayName,
		a.CurrentLoad,
		a.MaxLoad,
		a.Status,
		a.Latitude,
		a.Longitude,
		a.CreatedAt,
		a.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, tx *gorm.DB, a *agentdomain.Agent) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE agents
		SET display_name = ?, max_load = ?, status = ?, latitude = ?, longitude = ?, updated_at = ?
		WHERE id = ?`,
		a.DisplayName,
		a.MaxLoad,
		a.Status,
		a.Latitude,
		a.Longitude,
		a.UpdatedAt,
		a.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*agentdomain.Agent, error) {
	return r.findOne(ctx, tx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*agentdomain.Agent, error) {
	return r.findOne(ctx, tx, db.ForUpdate(tx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`), id)
}

func (r *repo) FindByUserID(ctx context.Context, tx *gorm.DB, userID string) (*agentdomain.Agent, error) {
	return r.findOne(ctx, tx, `SELECT `+agentColumns+` FROM agents WHERE user_id = ?`, userID)
}

func (r *repo) findOne(ctx context.Context, tx *gorm.DB, query string, args ...any) (*agentdomain.Agent, error) {
	var agent agentdomain.Agent
	if err := tx.WithContext(ctx).Raw(query, args...).Scan(&agent).Error; err != nil {
		return nil, err
	}
	if agent.ID == uuid.Nil {
		return nil, nil
	}
	return &agent, nil
}

func (r *repo) List(ctx context.Context, tx *gorm.DB, filter agentdomain.ListFilter) ([]agentdomain.Agent, int64, error) {
	where := ""
	args := []any{}
	switch {
	case filter.AvailableOnly:
		where = ` WHERE status = ? AND current_load < max_load`
		args = append(args, agentdomain.StatusAvailable)
	case filter.Status != "":
		where = ` WHERE status = ?`
		args = append(args, filter.Status)
	}

	var total int64
	if err := tx.WithContext(ctx).Raw(`SELECT COUNT(*) FROM agents`+where, args...).Scan(&total).Error; err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + agentColumns + ` FROM agents` + where + ` ORDER BY created_at ASC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	var agents []agentdomain.Agent
	if err := tx.WithContext(ctx).Raw(query, args...).Scan(&agents).Error; err != nil {
		return nil, 0, err
	}
	return agents, total, nil
}

// ListEligible returns agents able to take work, in round-robin order.
func (r *repo) ListEligible(ctx context.Context, tx *gorm.DB) ([]agentdomain.Agent, error) {
	var agents []agentdomain.Agent
	err := tx.WithContext(ctx).Raw(
		db.ForUpdate(tx, `SELECT `+agentColumns+` FROM agents
		WHERE status = ? AND current_load < max_load
		ORDER BY created_at ASC, id ASC`),
		agentdomain.StatusAvailable,
	).Scan(&agents).Error
	if err != nil {
		return nil, err
	}
	return agents, nil
}

func (r *repo) IncrementLoad(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE agents SET current_load = current_load + 1, updated_at = ? WHERE id = ?`,
		at,
		id,
	).Error
}

// IncrementLoadWithinCapacity reports false when the agent is already at max_load.
func (r *repo) IncrementLoadWithinCapacity(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE agents SET current_load = current_load + 1, updated_at = ?
		WHERE id = ? AND current_load < max_load`,
		at,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReleaseLoad decrements current_load, never below zero.
func (r *repo) ReleaseLoad(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE agents
		SET current_load = CASE WHEN current_load > 0 THEN current_load - 1 ELSE 0 END,
			updated_at = ?
		WHERE id = ?`,
		at,
		id,
	).Error
}

func (r *repo) CountAssignments(ctx context.Context, tx *gorm.DB, id uuid.UUID) (agentdomain.AssignmentCounts, error) {
	var counts agentdomain.AssignmentCounts
	err := tx.WithContext(ctx).Raw(
		`SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0) AS completed,
			COALESCE(SUM(CASE WHEN status IN ('pending', 'in_progress') THEN 1 ELSE 0 END), 0) AS active
		FROM meter_assignments
		WHERE agent_id = ?`,
		id,
	).Scan(&counts).Error
	return counts, err
}

func (r *repo) CountReadings(ctx context.Context, tx *gorm.DB, id uuid.UUID) (int64, error) {
	var total int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM meter_readings WHERE agent_id = ?`,
		id,
	).Scan(&total).Error
	return total, err
}

func (r *repo) CompletionSpans(ctx context.Context, tx *gorm.DB, id uuid.UUID) ([]agentdomain.CompletionSpan, error) {
	var spans []agentdomain.CompletionSpan
	err := tx.WithContext(ctx).Raw(
		`SELECT assigned_at, completed_at
		FROM meter_assignments
		WHERE agent_id = ? AND status = 'completed' AND completed_at IS NOT NULL`,
		id,
	).Scan(&spans).Error
	return spans, err
}
