package repository // repository for the visitor ban registry

import (
    "context"
    "database/sql"
    "strings"

    "github.com/gatepass/backend/internal/model"
)

// BanRepo provides data access to the visitor_bans table.  A ban is
// a resident-scoped block on a phone number; at most one active ban
// may exist per (user_id, visitor_phone) pair, enforced by a unique
// index over those columns where is_active = 1.  Bans are lifted by
// flipping is_active, never deleted.
type BanRepo struct {
    db *sql.DB
}

// NewBanRepo returns a new BanRepo bound to the given database.
func NewBanRepo(db *sql.DB) *BanRepo { return &BanRepo{db: db} }

// Create inserts a new active ban.  ErrConflict is returned when
// the resident already has an active ban for the phone.
func (r *BanRepo) Create(ctx context.Context, b *model.VisitorBan) error {
    const q = `INSERT INTO visitor_bans
               (user_id, building_id, visitor_phone, severity, reason, is_active, expires_at)
               VALUES (?, ?, ?, ?, ?, 1, ?)`
    var expires interface{}
    if b.ExpiresAt != nil {
        expires = b.ExpiresAt.UTC()
    }
    res, err := r.db.ExecContext(ctx, q, b.UserID, b.BuildingID, b.VisitorPhone, b.Severity, b.Reason, expires)
    if err != nil {
        if strings.Contains(strings.ToLower(err.Error()), "1062") {
            return ErrConflict
        }
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    b.ID = uint64(id)
    b.IsActive = true
    return nil
}

const banColumns = `id, user_id, building_id, visitor_phone, severity, reason, is_active, expires_at, created_at, updated_at`

// scanBan populates a VisitorBan from a row selected with banColumns.
func scanBan(row interface{ Scan(...interface{}) error }, b *model.VisitorBan) error {
    var reason sql.NullString
    var expires sql.NullTime
    if err := row.Scan(&b.ID, &b.UserID, &b.BuildingID, &b.VisitorPhone, &b.Severity,
        &reason, &b.IsActive, &expires, &b.CreatedAt, &b.UpdatedAt); err != nil {
        return err
    }
    if reason.Valid {
        s := reason.String
        b.Reason = &s
    }
    if expires.Valid {
        t := expires.Time
        b.ExpiresAt = &t
    }
    return nil
}

// ActiveByResidentAndPhone returns the resident's active,
// non-expired bans for a phone number.  Expired bans are filtered
// in the query so callers never see them as blocking.
func (r *BanRepo) ActiveByResidentAndPhone(ctx context.Context, residentID uint64, phone string) ([]model.VisitorBan, error) {
    const q = `SELECT ` + banColumns + `
               FROM visitor_bans
               WHERE user_id = ? AND visitor_phone = ? AND is_active = 1
                 AND (expires_at IS NULL OR expires_at > UTC_TIMESTAMP())`
    rows, err := r.db.QueryContext(ctx, q, residentID, phone)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    bans := make([]model.VisitorBan, 0)
    for rows.Next() {
        var b model.VisitorBan
        if err := scanBan(rows, &b); err != nil {
            return nil, err
        }
        bans = append(bans, b)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return bans, nil
}

// ExistsActiveTx reports whether the resident has any active,
// non-expired ban for the phone, evaluated inside the caller's
// transaction.  Visit creation re-checks the registry through this
// method so the check and the insert commit together.
func (r *BanRepo) ExistsActiveTx(ctx context.Context, tx *sql.Tx, residentID uint64, phone string) (bool, error) {
    const q = `SELECT EXISTS(
                   SELECT 1 FROM visitor_bans
                   WHERE user_id = ? AND visitor_phone = ? AND is_active = 1
                     AND (expires_at IS NULL OR expires_at > UTC_TIMESTAMP()))`
    var exists bool
    if err := tx.QueryRowContext(ctx, q, residentID, phone).Scan(&exists); err != nil {
        return false, err
    }
    return exists, nil
}

// CountDistinctResidents returns how many distinct residents of a
// building currently hold an active, non-expired ban on the phone.
// The count is informational; it never blocks on its own.
func (r *BanRepo) CountDistinctResidents(ctx context.Context, buildingID uint64, phone string) (int, error) {
    const q = `SELECT COUNT(DISTINCT user_id)
               FROM visitor_bans
               WHERE building_id = ? AND visitor_phone = ? AND is_active = 1
                 AND (expires_at IS NULL OR expires_at > UTC_TIMESTAMP())`
    var n int
    if err := r.db.QueryRowContext(ctx, q, buildingID, phone).Scan(&n); err != nil {
        return 0, err
    }
    return n, nil
}

// ListByResident returns all bans a resident has issued, active or
// not, newest first.
func (r *BanRepo) ListByResident(ctx context.Context, residentID uint64) ([]model.VisitorBan, error) {
    const q = `SELECT ` + banColumns + `
               FROM visitor_bans WHERE user_id = ? ORDER BY created_at DESC`
    rows, err := r.db.QueryContext(ctx, q, residentID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    bans := make([]model.VisitorBan, 0)
    for rows.Next() {
        var b model.VisitorBan
        if err := scanBan(rows, &b); err != nil {
            return nil, err
        }
        bans = append(bans, b)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return bans, nil
}

// Lift deactivates a ban owned by the given resident.  It returns
// sql.ErrNoRows when the ban does not exist and ErrForbidden when
// it belongs to someone else.
func (r *BanRepo) Lift(ctx context.Context, banID, residentID uint64) error {
    // Ownership is enforced inside the UPDATE itself, so a ban can
    // never be lifted through a stale ownership read.  Zero affected
    // rows is classified afterwards; the classification read only
    // decides which refusal to report.
    res, err := r.db.ExecContext(ctx,
        `UPDATE visitor_bans SET is_active = 0 WHERE id = ? AND user_id = ? AND is_active = 1`,
        banID, residentID)
    if err != nil {
        return err
    }
    if n, err := res.RowsAffected(); err != nil {
        return err
    } else if n > 0 {
        return nil
    }
    var ownerID uint64
    if err := r.db.QueryRowContext(ctx,
        `SELECT user_id FROM visitor_bans WHERE id = ?`, banID).Scan(&ownerID); err != nil {
        return err
    }
    if ownerID != residentID {
        return ErrForbidden
    }
    // Owned but already inactive; lifting twice is not an error.
    return nil
}
