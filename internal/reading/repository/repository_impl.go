package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	readingdomain "github.com/smallbiznis/fieldops/internal/reading/domain"
	"github.com/smallbiznis/fieldops/pkg/db"
	"gorm.io/gorm"
)

const readingColumns = `id, meter_id, agent_id, assignment_id, reading_value, reading_date,
	latitude, longitude, notes, is_verified, verified_by, verified_at, created_at`

type repo struct{}

func Provide() readingdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, rd *readingdomain.Reading) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO meter_readings (`+readingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rd.ID,
		rd.MeterID,
		rd.AgentID,
		rd.AssignmentID,
		rd.ReadingValue,
		rd.ReadingDate,
		rd.Latitude,
		rd.Longitude,
		rd.Notes,
		rd.IsVerified,
		rd.VerifiedBy,
		rd.VerifiedAt,
		rd.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*readingdomain.Reading, error) {
	return r.findOne(ctx, tx, `SELECT `+readingColumns+` FROM meter_readings WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*readingdomain.Reading, error) {
	return r.findOne(ctx, tx, db.ForUpdate(tx, `SELECT `+readingColumns+` FROM meter_readings WHERE id = ?`), id)
}

func (r *repo) findOne(ctx context.Context, tx *gorm.DB, query string, args ...any) (*readingdomain.Reading, error) {
	var reading readingdomain.Reading
	if err := tx.WithContext(ctx).Raw(query, args...).Scan(&reading).Error; err != nil {
		return nil, err
	}
	if reading.ID == uuid.Nil {
		return nil, nil
	}
	return &reading, nil
}

func (r *repo) MarkVerified(ctx context.Context, tx *gorm.DB, rd *readingdomain.Reading) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE meter_readings
		SET is_verified = ?, verified_by = ?, verified_at = ?
		WHERE id = ? AND is_verified = ?`,
		true,
		rd.VerifiedBy,
		rd.VerifiedAt,
		rd.ID,
		false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) Update(ctx context.Context, tx *gorm.DB, rd *readingdomain.Reading) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE meter_readings
		SET reading_value = ?, reading_date = ?, latitude = ?, longitude = ?, notes = ?
		WHERE id = ?`,
		rd.ReadingValue,
		rd.ReadingDate,
		rd.Latitude,
		rd.Longitude,
		rd.Notes,
		rd.ID,
	).Error
}

func (r *repo) LatestForMeter(ctx context.Context, tx *gorm.DB, meterID uuid.UUID) (*readingdomain.Reading, error) {
	return r.findOne(ctx, tx,
		`SELECT `+readingColumns+` FROM meter_readings
		WHERE meter_id = ?
		ORDER BY created_at DESC, reading_date DESC, id DESC
		LIMIT 1`,
		meterID,
	)
}

func (r *repo) List(ctx context.Context, tx *gorm.DB, filter readingdomain.ListFilter) ([]readingdomain.Reading, int64, error) {
	where, args := buildWhere(filter)

	var total int64
	if err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM meter_readings`+where,
		args...,
	).Scan(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []readingdomain.Reading
	query := `SELECT ` + readingColumns + ` FROM meter_readings` + where + `
		ORDER BY created_at DESC, id ASC`
	pageArgs := args
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		pageArgs = append(append([]any{}, args...), filter.Limit, filter.Offset)
	}
	if err := tx.WithContext(ctx).Raw(query, pageArgs...).Scan(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func buildWhere(filter readingdomain.ListFilter) (string, []any) {
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 3)

	if filter.MeterID != nil {
		clauses = append(clauses, "meter_id = ?")
		args = append(args, *filter.MeterID)
	}
	if filter.AgentID != nil {
		clauses = append(clauses, "agent_id = ?")
		args = append(args, *filter.AgentID)
	}
	if filter.Verified != nil {
		clauses = append(clauses, "is_verified = ?")
		args = append(args, *filter.Verified)
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *repo) ListByMeter(ctx context.Context, tx *gorm.DB, meterID uuid.UUID, limit, offset int) ([]readingdomain.Reading, int64, error) {
	var total int64
	if err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM meter_readings WHERE meter_id = ?`,
		meterID,
	).Scan(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []readingdomain.Reading
	err := tx.WithContext(ctx).Raw(
		`SELECT `+readingColumns+` FROM meter_readings
		WHERE meter_id = ?
		ORDER BY reading_date DESC, id ASC
		LIMIT ? OFFSET ?`,
		meterID,
		limit,
		offset,
	).Scan(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
