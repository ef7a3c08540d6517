package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"adspot/internal/models"
)

const applicationColumns = `id, applicant_id, placement, title, image_url, link_url,
       total_amount, status, approver_id, approved_at, idempotency_key, created_at, updated_at`

func scanApplication(row interface{ Scan(...any) error }) (*models.Application, error) {
	var (
		app        models.Application
		approverID sql.NullInt64
		approvedAt sql.NullTime
	)
	err := row.Scan(
		&app.ID, &app.ApplicantID, &app.Placement, &app.Title, &app.ImageURL, &app.LinkURL,
		&app.TotalAmount, &app.Status, &approverID, &approvedAt, &app.IdempotencyKey,
		&app.CreatedAt, &app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	app.ApproverID = approverID.Int64
	if approvedAt.Valid {
		t := approvedAt.Time
		app.ApprovedAt = &t
	}
	return &app, nil
}

func getApplicationTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = ?`
	app, err := scanApplication(tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get application in tx: %w", err)
	}
	return app, nil
}

func getApplicationSlotIDsTx(ctx context.Context, tx *sql.Tx, applicationID int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT slot_id FROM application_slots WHERE application_id = ? ORDER BY slot_id`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get application slots in tx: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan application slot: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (db *DB) GetApplication(ctx context.Context, id int64) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = ?`
	app, err := scanApplication(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return app, nil
}

// GetApplicationByIdempotencyKey returns the application previously
// created with the given key, or ErrNotFound.
func (db *DB) GetApplicationByIdempotencyKey(ctx context.Context, key string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE idempotency_key = ?`
	app, err := scanApplication(db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get application by idempotency key: %w", err)
	}
	return app, nil
}

// GetApplicationSlots returns the slot links of an application with
// their immutable price snapshots.
func (db *DB) GetApplicationSlots(ctx context.Context, applicationID int64) ([]models.ApplicationSlot, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT application_id, slot_id, price_snapshot
         FROM application_slots WHERE application_id = ? ORDER BY slot_id`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get application slots: %w", err)
	}
	defer rows.Close()

	var links []models.ApplicationSlot
	for rows.Next() {
		var l models.ApplicationSlot
		if err := rows.Scan(&l.ApplicationID, &l.SlotID, &l.PriceSnapshot); err != nil {
			return nil, fmt.Errorf("failed to scan application slot: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func (db *DB) GetApplicationsByApplicant(ctx context.Context, applicantID int64) ([]*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications
              WHERE applicant_id = ? ORDER BY created_at DESC`
	return db.queryApplications(ctx, query, applicantID)
}

// GetApplicationsByDateRange returns applications created between start
// and end; the end date is inclusive.
func (db *DB) GetApplicationsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications
              WHERE created_at >= ? AND created_at < ? ORDER BY created_at`
	return db.queryApplications(ctx, query, start, end.AddDate(0, 0, 1))
}

func (db *DB) queryApplications(ctx context.Context, query string, args ...any) ([]*models.Application, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	var apps []*models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}
