package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"adspot/internal/models"
)

const slotColumns = `id, placement, date(date), position, price, status, lock_holder, lock_expiry, banner_id, created_at, updated_at`

func scanSlot(row interface{ Scan(...any) error }) (*models.Slot, error) {
	var (
		slot       models.Slot
		dateStr    string
		lockHolder sql.NullInt64
		lockExpiry sql.NullTime
		bannerID   sql.NullInt64
	)
	err := row.Scan(
		&slot.ID, &slot.Placement, &dateStr, &slot.Position, &slot.Price, &slot.Status,
		&lockHolder, &lockExpiry, &bannerID, &slot.CreatedAt, &slot.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	slot.Date, err = time.Parse(models.DateLayout, dateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse slot date %s: %w", dateStr, err)
	}
	slot.LockHolder = lockHolder.Int64
	slot.LockExpiry = lockExpiry.Time
	slot.BannerID = bannerID.Int64
	return &slot, nil
}

// CreateSlot inserts one inventory row. Which placements, dates and
// positions exist is the provisioning caller's decision; this is a plain
// insert with no policy attached.
func (db *DB) CreateSlot(ctx context.Context, slot *models.Slot) error {
	if slot.Status == "" {
		slot.Status = models.SlotAvailable
	}
	query := `INSERT INTO slots (placement, date, position, price, status, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		slot.Placement,
		slot.Date.Format(models.DateLayout),
		slot.Position,
		slot.Price,
		slot.Status,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create slot: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	slot.ID = id
	slot.CreatedAt = now
	slot.UpdatedAt = now
	return nil
}

func (db *DB) GetSlot(ctx context.Context, id int64) (*models.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE id = ?`
	slot, err := scanSlot(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	return slot, nil
}

// UpdateSlotPrice changes the listed price of a slot. Snapshots already
// taken by existing applications are not touched.
func (db *DB) UpdateSlotPrice(ctx context.Context, id, price int64) error {
	query := `UPDATE slots SET price = ?, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, price, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update slot price: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetAvailability returns the browsing view of a placement for a date
// range, both bounds inclusive. Read-only, takes no locks; slightly
// stale results are acceptable for this surface.
func (db *DB) GetAvailability(ctx context.Context, placement string, from, to time.Time) ([]models.Availability, error) {
	query := `SELECT date(date), position, status, price
              FROM slots
              WHERE placement = ? AND date(date) >= ? AND date(date) <= ?
              ORDER BY date, position`
	rows, err := db.QueryContext(ctx, query, placement,
		from.Format(models.DateLayout), to.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to get availability: %w", err)
	}
	defer rows.Close()

	var out []models.Availability
	for rows.Next() {
		var (
			a       models.Availability
			dateStr string
		)
		if err := rows.Scan(&dateStr, &a.Position, &a.Status, &a.Price); err != nil {
			return nil, fmt.Errorf("failed to scan availability: %w", err)
		}
		a.Date, err = time.Parse(models.DateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse availability date %s: %w", dateStr, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetSoldForDate returns sold slots for a placement and date ordered by
// position, capped at limit. Used by public display surfaces.
func (db *DB) GetSoldForDate(ctx context.Context, placement string, date time.Time, limit int) ([]models.SoldSlot, error) {
	if limit <= 0 {
		limit = models.DefaultSoldLimit
	}
	query := `SELECT banner_id, position FROM slots
              WHERE placement = ? AND date(date) = ? AND status = ?
              ORDER BY position LIMIT ?`
	rows, err := db.QueryContext(ctx, query, placement,
		date.Format(models.DateLayout), models.SlotSold, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get sold slots: %w", err)
	}
	defer rows.Close()

	var out []models.SoldSlot
	for rows.Next() {
		var s models.SoldSlot
		if err := rows.Scan(&s.BannerID, &s.Position); err != nil {
			return nil, fmt.Errorf("failed to scan sold slot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
