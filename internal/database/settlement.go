package database

import (
	"context"
	"fmt"
	"time"

	"adspot/internal/models"
)

// CommitApplication is the commit gate: it turns a pending application's
// locked slots into sold ones and creates one banner per slot. The whole
// settlement succeeds or nothing changes; a slot that is no longer
// locked (reclaimed, already sold) fails the entire commit, which the
// caller routes to manual review rather than retrying.
func (db *DB) CommitApplication(ctx context.Context, applicationID, approverID int64) ([]models.Banner, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	app, err := getApplicationTx(ctx, tx, applicationID)
	if err != nil {
		return nil, err
	}
	// A replayed commit must not double-process an already approved
	// application: payment success and approval are separate signals.
	if app.Status != models.StatusPending {
		return nil, ErrInvalidState
	}

	slotIDs, err := getApplicationSlotIDsTx(ctx, tx, applicationID)
	if err != nil {
		return nil, err
	}
	if len(slotIDs) == 0 {
		return nil, ErrInvalidState
	}

	// 1. Re-read the linked slots and require every one still locked.
	querySlot := `SELECT ` + slotColumns + ` FROM slots WHERE id = ?`
	slots := make([]*models.Slot, 0, len(slotIDs))
	for _, id := range slotIDs {
		slot, err := scanSlot(tx.QueryRowContext(ctx, querySlot, id))
		if err != nil {
			return nil, fmt.Errorf("failed to get slot %d in tx: %w", id, err)
		}
		if slot.Status != models.SlotLocked {
			return nil, ErrInvalidState
		}
		slots = append(slots, slot)
	}

	// 2. Guarded bulk transition locked -> sold.
	now := time.Now()
	querySell := `UPDATE slots SET status = ?, updated_at = ?
                  WHERE id IN (` + placeholders(len(slotIDs)) + `) AND status = ?`
	args := append([]any{models.SlotSold, now}, int64Args(slotIDs)...)
	args = append(args, models.SlotLocked)

	result, err := tx.ExecContext(ctx, querySell, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to sell slots in tx: %w", err)
	}
	sold, _ := result.RowsAffected()
	if sold != int64(len(slotIDs)) {
		return nil, ErrInvalidState
	}

	// 3. One banner per slot, then stamp it back and drop the lease.
	queryBanner := `INSERT INTO banners (
                        application_id, slot_id, placement, date, position,
                        title, image_url, link_url, created_at
                    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	queryStamp := `UPDATE slots SET banner_id = ?, lock_holder = NULL, lock_expiry = NULL, updated_at = ?
                   WHERE id = ?`

	banners := make([]models.Banner, 0, len(slots))
	for _, slot := range slots {
		bannerResult, err := tx.ExecContext(ctx, queryBanner,
			applicationID,
			slot.ID,
			slot.Placement,
			slot.Date.Format(models.DateLayout),
			slot.Position,
			app.Title,
			app.ImageURL,
			app.LinkURL,
			now,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert banner in tx: %w", err)
		}
		bannerID, err := bannerResult.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to get last insert id in tx: %w", err)
		}

		if _, err := tx.ExecContext(ctx, queryStamp, bannerID, now, slot.ID); err != nil {
			return nil, fmt.Errorf("failed to stamp banner on slot in tx: %w", err)
		}

		banners = append(banners, models.Banner{
			ID:            bannerID,
			ApplicationID: applicationID,
			SlotID:        slot.ID,
			Placement:     slot.Placement,
			Date:          slot.Date,
			Position:      slot.Position,
			Title:         app.Title,
			ImageURL:      app.ImageURL,
			LinkURL:       app.LinkURL,
			CreatedAt:     now,
		})
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE applications SET status = ?, approver_id = ?, approved_at = ?, updated_at = ? WHERE id = ?`,
		models.StatusApproved, approverID, now, now, applicationID,
	); err != nil {
		return nil, fmt.Errorf("failed to approve application in tx: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit settlement: %w", err)
	}
	return banners, nil
}

// RejectApplication declines a pending application: its locked slots go
// back to available and the application is marked rejected. Same guarded
// shape as a caller release, but approver-initiated.
func (db *DB) RejectApplication(ctx context.Context, applicationID, approverID int64) error {
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
	args = append(args, models.SlotLocked, app.ApplicantID)

	result, err := tx.ExecContext(ctx, queryRelease, args...)
	if err != nil {
		return fmt.Errorf("failed to release slots in tx: %w", err)
	}
	released, _ := result.RowsAffected()
	if released != int64(len(slotIDs)) {
		return ErrInconsistentLockState
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE applications SET status = ?, approver_id = ?, updated_at = ? WHERE id = ?`,
		models.StatusRejected, approverID, now, applicationID,
	); err != nil {
		return fmt.Errorf("failed to reject application in tx: %w", err)
	}

	return tx.Commit()
}
