package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"adspot/internal/models"

	"github.com/mattn/go-sqlite3"
)

// ReserveApplication atomically locks one available slot per requested
// item and creates the pending application holding them. Either every
// requested slot is locked or nothing is persisted.
//
// The guarded bulk UPDATE re-asserts status='available' and its affected
// row count is compared against the request size; the preceding SELECT
// is defense in depth, not the safety mechanism.
func (db *DB) ReserveApplication(ctx context.Context, app *models.Application, items []models.SlotItem, ttl time.Duration) ([]int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// 1. Match every requested item to an available slot row.
	queryFind := `SELECT id, price FROM slots
                  WHERE placement = ? AND date(date) = ? AND position = ? AND status = ?`

	slotIDs := make([]int64, 0, len(items))
	snapshots := make(map[int64]int64, len(items))
	var missing []models.SlotItem
	var total int64

	for _, item := range items {
		var id, price int64
		err := tx.QueryRowContext(ctx, queryFind,
			app.Placement, item.Date.Format(models.DateLayout), item.Position, models.SlotAvailable,
		).Scan(&id, &price)
		if errors.Is(err, sql.ErrNoRows) {
			missing = append(missing, item)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to find slot in tx: %w", err)
		}
		slotIDs = append(slotIDs, id)
		snapshots[id] = price
		total += price
	}

	if len(missing) > 0 {
		return nil, &UnavailableSlotsError{Placement: app.Placement, Items: missing}
	}

	// 2. Guarded bulk transition available -> locked.
	now := time.Now()
	expiry := now.Add(ttl)
	queryLock := `UPDATE slots
                  SET status = ?, lock_holder = ?, lock_expiry = ?, updated_at = ?
                  WHERE id IN (` + placeholders(len(slotIDs)) + `) AND status = ?`
	args := append([]any{models.SlotLocked, app.ApplicantID, expiry, now}, int64Args(slotIDs)...)
	args = append(args, models.SlotAvailable)

	result, err := tx.ExecContext(ctx, queryLock, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to lock slots in tx: %w", err)
	}
	locked, _ := result.RowsAffected()
	if locked != int64(len(slotIDs)) {
		// A concurrent reservation won between the read and the write.
		return nil, ErrSlotRaceLost
	}

	// 3. Persist the application and one link per slot with its price
	// snapshot.
	queryApp := `INSERT INTO applications (
                    applicant_id, placement, title, image_url, link_url,
                    total_amount, status, idempotency_key, created_at, updated_at
                ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	appResult, err := tx.ExecContext(ctx, queryApp,
		app.ApplicantID,
		app.Placement,
		app.Title,
		app.ImageURL,
		app.LinkURL,
		total,
		models.StatusPending,
		app.IdempotencyKey,
		now,
		now,
	)
	if err != nil {
		// Единственный уникальный индекс на applications — частичный по
		// idempotency_key: конкурент с тем же ключом успел раньше.
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, ErrDuplicateIdempotencyKey
		}
		return nil, fmt.Errorf("failed to insert application in tx: %w", err)
	}
	appID, err := appResult.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id in tx: %w", err)
	}

	queryLink := `INSERT INTO application_slots (application_id, slot_id, price_snapshot) VALUES (?, ?, ?)`
	for _, slotID := range slotIDs {
		if _, err := tx.ExecContext(ctx, queryLink, appID, slotID, snapshots[slotID]); err != nil {
			return nil, fmt.Errorf("failed to insert application slot in tx: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reservation: %w", err)
	}

	app.ID = appID
	app.TotalAmount = total
	app.Status = models.StatusPending
	app.CreatedAt = now
	app.UpdatedAt = now
	return slotIDs, nil
}

// ReleaseApplication reverts a caller's own pending application: its
// locked slots go back to available and the application is cancelled.
// The application row is kept for audit, only the slot links are removed.
func (db *DB) ReleaseApplication(ctx context.Context, applicationID, callerID int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	app, err := getApplicationTx(ctx, tx, applicationID)
	if err != nil {
		return err
	}
	if app.ApplicantID != callerID {
		return ErrForbidden
	}
	if app.Status != models.StatusPending {
		return ErrInvalidState
	}

	slotIDs, err := getApplicationSlotIDsTx(ctx, tx, applicationID)
	if err != nil {
		return err
	}

	now := time.Now()
	queryRelease := `UPDATE slots
                     SET status = ?, lock_holder = NULL, lock_expiry = NULL, updated_at = ?
                     WHERE id IN (` + placeholders(len(slotIDs)) + `) AND status = ? AND lock_holder = ?`
	args := append([]any{models.SlotAvailable, now}, int64Args(slotIDs)...)
	args = append(args, models.SlotLocked, callerID)

	result, err := tx.ExecContext(ctx, queryRelease, args...)
	if err != nil {
		return fmt.Errorf("failed to release slots in tx: %w", err)
	}
	released, _ := result.RowsAffected()
	if released != int64(len(slotIDs)) {
		// A reclaim got here first, or the lock state is corrupt. Do not
		// proceed with a partial release.
		return ErrInconsistentLockState
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE applications SET status = ?, updated_at = ? WHERE id = ?`,
		models.StatusCancelled, now, applicationID,
	); err != nil {
		return fmt.Errorf("failed to cancel application in tx: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM application_slots WHERE application_id = ?`, applicationID,
	); err != nil {
		return fmt.Errorf("failed to delete application slots in tx: %w", err)
	}

	return tx.Commit()
}

// ReclaimedSlot describes one expired lock reverted to available.
type ReclaimedSlot struct {
	SlotID        int64
	ApplicationID int64
	Placement     string
	Date          time.Time
	Position      int64
}

// ReclaimResult summarizes one reclaim sweep.
type ReclaimResult struct {
	Slots               []ReclaimedSlot
	ExpiredApplications []int64
}

// ReclaimExpiredLocks reverts every lock whose expiry has passed and
// moves the owning pending applications to expired. Each slot transition
// re-checks status and expiry, so concurrent sweeps and in-flight
// commits are harmless: whoever loses the guarded update simply affects
// zero rows.
func (db *DB) ReclaimExpiredLocks(ctx context.Context, now time.Time) (ReclaimResult, error) {
	var res ReclaimResult

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Связи заявок сохраняются после reject и reclaim, поэтому слот,
	// забронированный повторно, несёт устаревшие строки-связи. Владелец —
	// единственная связанная заявка в статусе pending.
	queryExpired := `SELECT s.id, s.placement, date(s.date), s.position, COALESCE(MAX(a.id), 0)
                     FROM slots s
                     LEFT JOIN application_slots l ON l.slot_id = s.id
                     LEFT JOIN applications a ON a.id = l.application_id AND a.status = ?
                     WHERE s.status = ? AND s.lock_expiry < ?
                     GROUP BY s.id`
	rows, err := tx.QueryContext(ctx, queryExpired, models.StatusPending, models.SlotLocked, now)
	if err != nil {
		return res, fmt.Errorf("failed to find expired locks: %w", err)
	}

	var candidates []ReclaimedSlot
	for rows.Next() {
		var (
			c       ReclaimedSlot
			dateStr string
		)
		if err := rows.Scan(&c.SlotID, &c.Placement, &dateStr, &c.Position, &c.ApplicationID); err != nil {
			rows.Close()
			return res, fmt.Errorf("failed to scan expired lock: %w", err)
		}
		c.Date, err = time.Parse(models.DateLayout, dateStr)
		if err != nil {
			rows.Close()
			return res, fmt.Errorf("failed to parse slot date %s: %w", dateStr, err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return res, err
	}
	rows.Close()

	queryReclaim := `UPDATE slots
                     SET status = ?, lock_holder = NULL, lock_expiry = NULL, updated_at = ?
                     WHERE id = ? AND status = ? AND lock_expiry < ?`
	expiredApps := make(map[int64]bool)
	for _, c := range candidates {
		result, err := tx.ExecContext(ctx, queryReclaim,
			models.SlotAvailable, now, c.SlotID, models.SlotLocked, now)
		if err != nil {
			return res, fmt.Errorf("failed to reclaim slot %d: %w", c.SlotID, err)
		}
		affected, _ := result.RowsAffected()
		if affected == 0 {
			continue
		}
		res.Slots = append(res.Slots, c)
		if c.ApplicationID != 0 {
			expiredApps[c.ApplicationID] = true
		}
	}

	for appID := range expiredApps {
		result, err := tx.ExecContext(ctx,
			`UPDATE applications SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			models.StatusExpired, now, appID, models.StatusPending)
		if err != nil {
			return res, fmt.Errorf("failed to expire application %d: %w", appID, err)
		}
		if affected, _ := result.RowsAffected(); affected > 0 {
			res.ExpiredApplications = append(res.ExpiredApplications, appID)
		}
	}

	if err := tx.Commit(); err != nil {
		return ReclaimResult{}, fmt.Errorf("failed to commit reclaim: %w", err)
	}
	return res, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
