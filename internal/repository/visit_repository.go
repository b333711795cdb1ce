package repository // repository for visit persistence and lifecycle transitions

import (
    "context"
    "database/sql"
    "time"

    "github.com/gatepass/backend/internal/model"
)

// VisitRepo provides data access to the visits and visit_tokens
// tables.  Every lifecycle transition is expressed as a conditional
// UPDATE guarded by the current status and entry/exit flags, so
// that when two callers race on the same visit exactly one wins and
// the loser observes zero affected rows.  There is no general
// field-level update method for status, entry or exit.
type VisitRepo struct {
    db *sql.DB
}

// NewVisitRepo returns a new VisitRepo bound to the given database.
func NewVisitRepo(db *sql.DB) *VisitRepo { return &VisitRepo{db: db} }

const visitColumns = `id, building_id, host_id, title, status, entry, ` + "`exit`" + `, qr_code, qr_expires_at,
       expected_start, expected_end, max_visitors, current_visitors,
       license_consumed, license_released, created_at, updated_at`

// scanVisit populates a Visit from a row selected with visitColumns.
func scanVisit(row interface{ Scan(...interface{}) error }, v *model.Visit) error {
    return row.Scan(
        &v.ID, &v.BuildingID, &v.HostID, &v.Title, &v.Status, &v.Entry, &v.Exit,
        &v.QRCode, &v.QRExpiresAt, &v.ExpectedStart, &v.ExpectedEnd,
        &v.MaxVisitors, &v.CurrentVisitors, &v.LicenseConsumed, &v.LicenseReleased,
        &v.CreatedAt, &v.UpdatedAt,
    )
}

// CreateTx inserts a new visit within the scope of an existing
// transaction and populates the generated ID.  The caller must
// commit or roll back the transaction.
func (r *VisitRepo) CreateTx(ctx context.Context, tx *sql.Tx, v *model.Visit) error {
    const q = `INSERT INTO visits
               (building_id, host_id, title, status, entry, ` + "`exit`" + `, qr_code, qr_expires_at,
                expected_start, expected_end, max_visitors, current_visitors,
                license_consumed, license_released)
               VALUES (?, ?, ?, ?, 0, 0, ?, ?, ?, ?, ?, ?, ?, 0)`
    res, err := tx.ExecContext(ctx, q,
        v.BuildingID, v.HostID, v.Title, v.Status, v.QRCode, v.QRExpiresAt.UTC(),
        v.ExpectedStart.UTC(), v.ExpectedEnd.UTC(), v.MaxVisitors, v.CurrentVisitors,
        v.LicenseConsumed,
    )
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    v.ID = uint64(id)
    return nil
}

// GetByID returns a visit by primary key.  sql.ErrNoRows is
// returned when it does not exist.
func (r *VisitRepo) GetByID(ctx context.Context, id uint64) (*model.Visit, error) {
    var v model.Visit
    err := scanVisit(r.db.QueryRowContext(ctx, `SELECT `+visitColumns+` FROM visits WHERE id = ?`, id), &v)
    if err != nil {
        return nil, err
    }
    return &v, nil
}

// GetByIDTx is GetByID within an existing transaction.
func (r *VisitRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Visit, error) {
    var v model.Visit
    err := scanVisit(tx.QueryRowContext(ctx, `SELECT `+visitColumns+` FROM visits WHERE id = ?`, id), &v)
    if err != nil {
        return nil, err
    }
    return &v, nil
}

// FindByToken resolves a QR token to its visit.  The superseded
// return distinguishes an old token replaced by a re-issue from a
// token that never existed (sql.ErrNoRows); callers surface these
// as different failures.
func (r *VisitRepo) FindByToken(ctx context.Context, token string) (*model.Visit, bool, error) {
    const q = `SELECT t.superseded, ` + `v.id, v.building_id, v.host_id, v.title, v.status, v.entry, v.` + "`exit`" + `,
                      v.qr_code, v.qr_expires_at, v.expected_start, v.expected_end,
                      v.max_visitors, v.current_visitors, v.license_consumed, v.license_released,
                      v.created_at, v.updated_at
               FROM visit_tokens t
               JOIN visits v ON v.id = t.visit_id
               WHERE t.token = ?`
    var v model.Visit
    var superseded bool
    err := r.db.QueryRowContext(ctx, q, token).Scan(
        &superseded,
        &v.ID, &v.BuildingID, &v.HostID, &v.Title, &v.Status, &v.Entry, &v.Exit,
        &v.QRCode, &v.QRExpiresAt, &v.ExpectedStart, &v.ExpectedEnd,
        &v.MaxVisitors, &v.CurrentVisitors, &v.LicenseConsumed, &v.LicenseReleased,
        &v.CreatedAt, &v.UpdatedAt,
    )
    if err != nil {
        return nil, false, err
    }
    return &v, superseded, nil
}

// InsertTokenTx records a freshly issued token for a visit and
// supersedes any prior one.  The visits row mirrors the current
// token so reads do not need the join.  Runs within the provided
// transaction so a re-issue can never leave two live tokens.
func (r *VisitRepo) InsertTokenTx(ctx context.Context, tx *sql.Tx, visitID uint64, token string, expiresAt time.Time) error {
    if _, err := tx.ExecContext(ctx,
        `UPDATE visit_tokens SET superseded = 1 WHERE visit_id = ? AND superseded = 0`,
        visitID,
    ); err != nil {
        return err
    }
    if _, err := tx.ExecContext(ctx,
        `INSERT INTO visit_tokens (visit_id, token, superseded) VALUES (?, ?, 0)`,
        visitID, token,
    ); err != nil {
        return err
    }
    _, err := tx.ExecContext(ctx,
        `UPDATE visits SET qr_code = ?, qr_expires_at = ? WHERE id = ?`,
        token, expiresAt.UTC(), visitID,
    )
    return err
}

// MarkEntryTx applies an entry scan: entry flag set and status
// promoted to ACTIVE, guarded by the current state so that of two
// racing entry scans exactly one succeeds.  Returns false when the
// guard did not match (already entered, terminal, or otherwise not
// eligible).
func (r *VisitRepo) MarkEntryTx(ctx context.Context, tx *sql.Tx, visitID uint64) (bool, error) {
    const q = `UPDATE visits
               SET entry = 1, status = ?
               WHERE id = ? AND entry = 0 AND ` + "`exit`" + ` = 0 AND status IN (?, ?)`
    res, err := tx.ExecContext(ctx, q, model.VisitActive, visitID, model.VisitPending, model.VisitConfirmed)
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n == 1, nil
}

// MarkExitTx applies an exit scan: exit flag set and status promoted
// to COMPLETED.  The guard requires a prior entry (exit=true implies
// entry=true is enforced here, not just by convention) and loses
// cleanly against a concurrent duplicate.
func (r *VisitRepo) MarkExitTx(ctx context.Context, tx *sql.Tx, visitID uint64) (bool, error) {
    const q = `UPDATE visits
               SET ` + "`exit`" + ` = 1, status = ?
               WHERE id = ? AND entry = 1 AND ` + "`exit`" + ` = 0 AND status = ?`
    res, err := tx.ExecContext(ctx, q, model.VisitCompleted, visitID, model.VisitActive)
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n == 1, nil
}

// CancelTx transitions a visit to CANCELLED.  Only pending,
// confirmed and active visits may be cancelled; a false return
// means the visit was already terminal (or missing), which callers
// treat as a conflict rather than a no-op.
func (r *VisitRepo) CancelTx(ctx context.Context, tx *sql.Tx, visitID uint64) (bool, error) {
    const q = `UPDATE visits
               SET status = ?
               WHERE id = ? AND status IN (?, ?, ?)`
    res, err := tx.ExecContext(ctx, q, model.VisitCancelled, visitID,
        model.VisitPending, model.VisitConfirmed, model.VisitActive)
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n == 1, nil
}

// ExpireTx transitions a visit to EXPIRED.  The guard re-checks the
// status and the absence of an entry scan so a scan racing the
// sweep wins exactly one of the two outcomes.
func (r *VisitRepo) ExpireTx(ctx context.Context, tx *sql.Tx, visitID uint64) (bool, error) {
    const q = `UPDATE visits
               SET status = ?
               WHERE id = ? AND entry = 0 AND status IN (?, ?)`
    res, err := tx.ExecContext(ctx, q, model.VisitExpired, visitID,
        model.VisitPending, model.VisitConfirmed)
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n == 1, nil
}

// MarkLicenseReleasedTx flips the per-visit released flag.  The flag
// is the idempotency guard for license release: it can flip at most
// once, so the building decrement that follows it in the same
// transaction runs at most once per visit.
func (r *VisitRepo) MarkLicenseReleasedTx(ctx context.Context, tx *sql.Tx, visitID uint64) (bool, error) {
    const q = `UPDATE visits
               SET license_released = 1
               WHERE id = ? AND license_consumed = 1 AND license_released = 0`
    res, err := tx.ExecContext(ctx, q, visitID)
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n == 1, nil
}

// ListDueForExpiry returns visits eligible for the expiry sweep:
// pending or confirmed, no entry scan, expected_end at or before
// the given instant.  The limit bounds each sweep batch.
func (r *VisitRepo) ListDueForExpiry(ctx context.Context, now time.Time, limit int) ([]model.Visit, error) {
    const q = `SELECT ` + visitColumns + `
               FROM visits
               WHERE entry = 0 AND status IN (?, ?) AND expected_end <= ?
               ORDER BY expected_end
               LIMIT ?`
    rows, err := r.db.QueryContext(ctx, q, model.VisitPending, model.VisitConfirmed, now.UTC(), limit)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var due []model.Visit
    for rows.Next() {
        var v model.Visit
        if err := scanVisit(rows, &v); err != nil {
            return nil, err
        }
        due = append(due, v)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return due, nil
}

// ListByHost returns all visits created by a host, newest first.
func (r *VisitRepo) ListByHost(ctx context.Context, hostID uint64) ([]model.Visit, error) {
    const q = `SELECT ` + visitColumns + ` FROM visits WHERE host_id = ? ORDER BY created_at DESC`
    return r.list(ctx, q, hostID)
}

// ListByBuilding returns all visits for a building, newest first.
func (r *VisitRepo) ListByBuilding(ctx context.Context, buildingID uint64) ([]model.Visit, error) {
    const q = `SELECT ` + visitColumns + ` FROM visits WHERE building_id = ? ORDER BY created_at DESC`
    return r.list(ctx, q, buildingID)
}

func (r *VisitRepo) list(ctx context.Context, q string, args ...interface{}) ([]model.Visit, error) {
    rows, err := r.db.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    visits := make([]model.Visit, 0)
    for rows.Next() {
        var v model.Visit
        if err := scanVisit(rows, &v); err != nil {
            return nil, err
        }
        visits = append(visits, v)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return visits, nil
}
