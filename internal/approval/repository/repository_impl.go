package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	approvaldomain "github.com/smallbiznis/fieldops/internal/approval/domain"
	"github.com/smallbiznis/fieldops/pkg/db"
	"gorm.io/gorm"
)

const requestColumns = `id, meter_id, agent_id, meter_data, submission_notes, status, reviewer_id,
	review_notes, submitted_at, reviewed_at, created_at, updated_at`

type repo struct{}

func Provide() approvaldomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, req *approvaldomain.Request) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO meter_approval_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID,
		req.MeterID,
		req.AgentID,
		req.MeterData,
		req.SubmissionNotes,
		req.Status,
		req.ReviewerID,
		req.ReviewNotes,
		req.SubmittedAt,
		req.ReviewedAt,
		req.CreatedAt,
		req.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*approvaldomain.Request, error) {
	return r.findOne(ctx, tx, `SELECT `+requestColumns+` FROM meter_approval_requests WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*approvaldomain.Request, error) {
	return r.findOne(ctx, tx, db.ForUpdate(tx, `SELECT `+requestColumns+` FROM meter_approval_requests WHERE id = ?`), id)
}

func (r *repo) findOne(ctx context.Context, tx *gorm.DB, query string, args ...any) (*approvaldomain.Request, error) {
	var req approvaldomain.Request
	if err := tx.WithContext(ctx).Raw(query, args...).Scan(&req).Error; err != nil {
		return nil, err
	}
	if req.ID == uuid.Nil {
		return nil, nil
	}
	return &req, nil
}

func (r *repo) Review(ctx context.Context, tx *gorm.DB, req *approvaldomain.Request) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE meter_approval_requests
		SET status = ?, reviewer_id = ?, review_notes = ?, reviewed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		req.Status,
		req.ReviewerID,
		req.ReviewNotes,
		req.ReviewedAt,
		req.UpdatedAt,
		req.ID,
		approvaldomain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ListPending(ctx context.Context, tx *gorm.DB) ([]approvaldomain.Request, error) {
	var items []approvaldomain.Request
	err := tx.WithContext(ctx).Raw(
		`SELECT `+requestColumns+` FROM meter_approval_requests
		WHERE status = ?
		ORDER BY submitted_at ASC, id ASC`,
		approvaldomain.StatusPending,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) List(ctx context.Context, tx *gorm.DB, filter approvaldomain.ListFilter) ([]approvaldomain.Request, int64, error) {
	where, args := buildWhere(filter)

	var total int64
	if err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM meter_approval_requests`+where,
		args...,
	).Scan(&total).Error; err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + requestColumns + ` FROM meter_approval_requests` + where +
		` ORDER BY submitted_at DESC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	var items []approvaldomain.Request
	if err := tx.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func buildWhere(filter approvaldomain.ListFilter) (string, []any) {
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
