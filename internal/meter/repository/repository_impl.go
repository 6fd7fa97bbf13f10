package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	meterdomain "github.com/smallbiznis/fieldops/internal/meter/domain"
	"github.com/smallbiznis/fieldops/pkg/db"
	"gorm.io/gorm"
)

const meterColumns = `id, serial_number, address, latitude, longitude, meter_type, priority, status,
	last_reading, estimated_time, owner_name, metadata, created_at, updated_at`

const activeAssignmentExists = `EXISTS (
	SELECT 1 FROM meter_assignments a
	WHERE a.meter_id = meters.id AND a.status IN ('pending', 'in_progress')
)`

type repo struct{}

func Provide() meterdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, m *meterdomain.Meter) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO meters (`+meterColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID,
		m.SerialNumber,
		m.Address,
		m.Latitude,
		m.Longitude,
		m.MeterType,
		m.Priority,
		m.Status,
		m.LastReading,
		m.EstimatedTime,
		m.OwnerName,
		m.Metadata,
		m.CreatedAt,
		m.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, tx *gorm.DB, m *meterdomain.Meter) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE meters
		SET address = ?, latitude = ?, longitude = ?, meter_type = ?, priority = ?, status = ?,
			estimated_time = ?, owner_name = ?, metadata = ?, updated_at = ?
		WHERE id = ?`,
		m.Address,
		m.Latitude,
		m.Longitude,
		m.MeterType,
		m.Priority,
		m.Status,
		m.EstimatedTime,
		m.OwnerName,
		m.Metadata,
		m.UpdatedAt,
		m.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return tx.WithContext(ctx).Exec(`DELETE FROM meters WHERE id = ?`, id).Error
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*meterdomain.Meter, error) {
	return r.findOne(ctx, tx, `SELECT `+meterColumns+` FROM meters WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*meterdomain.Meter, error) {
	return r.findOne(ctx, tx, db.ForUpdate(tx, `SELECT `+meterColumns+` FROM meters WHERE id = ?`), id)
}

func (r *repo) FindBySerial(ctx context.Context, tx *gorm.DB, serial string) (*meterdomain.Meter, error) {
	return r.findOne(ctx, tx, `SELECT `+meterColumns+` FROM meters WHERE serial_number = ?`, serial)
}

func (r *repo) findOne(ctx context.Context, tx *gorm.DB, query string, args ...any) (*meterdomain.Meter, error) {
	var meter meterdomain.Meter
	if err := tx.WithContext(ctx).Raw(query, args...).Scan(&meter).Error; err != nil {
		return nil, err
	}
	if meter.ID == uuid.Nil {
		return nil, nil
	}
	return &meter, nil
}

func (r *repo) FindByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]meterdomain.Meter, error) {
	return r.findMany(ctx, tx, `SELECT `+meterColumns+` FROM meters WHERE id IN ?`, ids)
}

// FindByIDsForUpdate locks the meters in id order so concurrent batches
// acquire row locks in the same sequence.
func (r *repo) FindByIDsForUpdate(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]meterdomain.Meter, error) {
	return r.findMany(ctx, tx, db.ForUpdate(tx, `SELECT `+meterColumns+` FROM meters WHERE id IN ? ORDER BY id`), ids)
}

func (r *repo) findMany(ctx context.Context, tx *gorm.DB, query string, ids []uuid.UUID) ([]meterdomain.Meter, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var meters []meterdomain.Meter
	if err := tx.WithContext(ctx).Raw(query, ids).Scan(&meters).Error; err != nil {
		return nil, err
	}
	return meters, nil
}

func (r *repo) List(ctx context.Context, tx *gorm.DB, filter meterdomain.ListFilter) ([]meterdomain.Meter, int64, error) {
	where, args := buildWhere(filter)

	var total int64
	if err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM meters`+where,
		args...,
	).Scan(&total).Error; err != nil {
		return nil, 0, err
	}

	var meters []meterdomain.Meter
	query := `SELECT ` + meterColumns + ` FROM meters` + where + `
		ORDER BY CASE priority
			WHEN 'critical' THEN 0
			WHEN 'high' THEN 1
			WHEN 'medium' THEN 2
			ELSE 3
		END, created_at ASC, id ASC`
	pageArgs := args
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		pageArgs = append(append([]any{}, args...), filter.Limit, filter.Offset)
	}
	if err := tx.WithContext(ctx).Raw(query, pageArgs...).Scan(&meters).Error; err != nil {
		return nil, 0, err
	}
	return meters, total, nil
}

func buildWhere(filter meterdomain.ListFilter) (string, []any) {
	clauses := make([]string, 0, 5)
	args := make([]any, 0, 5)

	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.MeterType != "" {
		clauses = append(clauses, "meter_type = ?")
		args = append(args, filter.MeterType)
	}
	if filter.Priority != "" {
		clauses = append(clauses, "priority = ?")
		args = append(args, filter.Priority)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		clauses = append(clauses, "(LOWER(serial_number) LIKE ? OR LOWER(address) LIKE ?)")
		args = append(args, pattern, pattern)
	}
	if filter.Assigned != nil {
		if *filter.Assigned {
			clauses = append(clauses, activeAssignmentExists)
		} else {
			clauses = append(clauses, "NOT "+activeAssignmentExists)
		}
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *repo) HasActiveAssignment(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM meter_assignments
		WHERE meter_id = ? AND status IN ('pending', 'in_progress')`,
		id,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) SetLastReading(ctx context.Context, tx *gorm.DB, id uuid.UUID, value string, at time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE meters SET last_reading = ?, updated_at = ? WHERE id = ?`,
		value,
		at,
		id,
	).Error
}
