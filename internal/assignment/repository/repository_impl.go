package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	assignmentdomain "github.com/smallbiznis/fieldops/internal/assignment/domain"
	"github.com/smallbiznis/fieldops/pkg/db"
	"gorm.io/gorm"
)

const assignmentColumns = `id, meter_id, agent_id, assigned_by, status, estimated_time,
	assigned_at, completed_at, completion_notes, created_at, updated_at`

type repo struct{}

func Provide() assignmentdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, a *assignmentdomain.Assignment) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO meter_assignments (`+assignmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.MeterID,
		a.AgentID,
		a.AssignedBy,
		a.Status,
		a.EstimatedTime,
		a.AssignedAt,
		a.CompletedAt,
		a.CompletionNotes,
		a.CreatedAt,
		a.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, tx *gorm.DB, a *assignmentdomain.Assignment) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE meter_assignments
		SET status = ?, estimated_time = ?, completion_notes = ?, updated_at = ?
		WHERE id = ?`,
		a.Status,
		a.EstimatedTime,
		a.CompletionNotes,
		a.UpdatedAt,
		a.ID,
	).Error
}

func (r *repo) Close(ctx context.Context, tx *gorm.DB, a *assignmentdomain.Assignment) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE meter_assignments
		SET status = ?, estimated_time = ?, completion_notes = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND completed_at IS NULL`,
		a.Status,
		a.EstimatedTime,
		a.CompletionNotes,
		a.CompletedAt,
		a.UpdatedAt,
		a.ID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*assignmentdomain.Assignment, error) {
	return r.findOne(ctx, tx, `SELECT `+assignmentColumns+` FROM meter_assignments WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*assignmentdomain.Assignment, error) {
	return r.findOne(ctx, tx, db.ForUpdate(tx, `SELECT `+assignmentColumns+` FROM meter_assignments WHERE id = ?`), id)
}

func (r *repo) findOne(ctx context.Context, tx *gorm.DB, query string, args ...any) (*assignmentdomain.Assignment, error) {
	var assignment assignmentdomain.Assignment
	if err := tx.WithContext(ctx).Raw(query, args...).Scan(&assignment).Error; err != nil {
		return nil, err
	}
	if assignment.ID == uuid.Nil {
		return nil, nil
	}
	return &assignment, nil
}

func (r *repo) ActiveMeterIDs(ctx context.Context, tx *gorm.DB, meterIDs []uuid.UUID) (map[uuid.UUID]struct{}, error) {
	active := make(map[uuid.UUID]struct{})
	if len(meterIDs) == 0 {
		return active, nil
	}

	var rows []struct {
		MeterID uuid.UUID
	}
	err := tx.WithContext(ctx).Raw(
		`SELECT meter_id FROM meter_assignments
		WHERE meter_id IN ? AND status IN ('pending', 'in_progress')`,
		meterIDs,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		active[row.MeterID] = struct{}{}
	}
	return active, nil
}

func (r *repo) List(ctx context.Context, tx *gorm.DB, filter assignmentdomain.ListFilter) ([]assignmentdomain.Assignment, int64, error) {
	where, args := buildWhere(filter)

	var total int64
	if err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM meter_assignments`+where,
		args...,
	).Scan(&total).Error; err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + assignmentColumns + ` FROM meter_assignments` + where +
		` ORDER BY assigned_at DESC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	var items []assignmentdomain.Assignment
	if err := tx.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func buildWhere(filter assignmentdomain.ListFilter) (string, []any) {
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 3)

	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.AgentID != nil {
		clauses = append(clauses, "agent_id = ?")
		args = append(args, *filter.AgentID)
	}
	if filter.MeterID != nil {
		clauses = append(clauses, "meter_id = ?")
		args = append(args, *filter.MeterID)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
