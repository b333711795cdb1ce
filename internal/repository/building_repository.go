package repository // repository for building persistence and license accounting

import (
    "context"
    "database/sql"

    "github.com/gatepass/backend/internal/model"
)

// BuildingRepo encapsulates database operations for buildings.  The
// license counters are only ever mutated through the conditional
// updates below; there is deliberately no general-purpose update
// method that can touch used_licenses.
type BuildingRepo struct {
    db *sql.DB
}

// NewBuildingRepo constructs a BuildingRepo given a DB handle.
func NewBuildingRepo(db *sql.DB) *BuildingRepo { return &BuildingRepo{db: db} }

// GetByID returns a building by its primary key.  sql.ErrNoRows is
// returned when the building does not exist.
func (r *BuildingRepo) GetByID(ctx context.Context, id uint64) (*model.Building, error) {
    const q = `SELECT id, name, address, total_licenses, used_licenses, created_at, updated_at
               FROM buildings WHERE id = ?`
    var b model.Building
    err := r.db.QueryRowContext(ctx, q, id).Scan(
        &b.ID, &b.Name, &b.Address, &b.TotalLicenses, &b.UsedLicenses, &b.CreatedAt, &b.UpdatedAt,
    )
    if err != nil {
        return nil, err
    }
    return &b, nil
}

// AllocateTx performs the single atomic read-check-increment against
// used_licenses.  The WHERE clause guards the capacity invariant so
// the increment can never push used_licenses past total_licenses,
// no matter how many allocators race on the same building.  It
// returns ok=false when the pool cannot satisfy the request, which
// is a normal outcome and not an error.  The remaining count is
// read back inside the same transaction.
func (r *BuildingRepo) AllocateTx(ctx context.Context, tx *sql.Tx, buildingID uint64, n uint32) (remaining uint32, ok bool, err error) {
    const upd = `UPDATE buildings
                 SET used_licenses = used_licenses + ?
                 WHERE id = ? AND used_licenses + ? <= total_licenses`
    res, err := tx.ExecContext(ctx, upd, n, buildingID, n)
    if err != nil {
        return 0, false, err
    }
    affected, err := res.RowsAffected()
    if err != nil {
        return 0, false, err
    }
    remaining, err = r.remainingTx(ctx, tx, buildingID)
    if err != nil {
        return 0, false, err
    }
    return remaining, affected == 1, nil
}

// ReleaseTx decrements used_licenses by n, clamped at zero.  The
// clamp protects against accounting drift; callers are expected to
// release at most once per allocation via the per-visit released
// flag.
func (r *BuildingRepo) ReleaseTx(ctx context.Context, tx *sql.Tx, buildingID uint64, n uint32) (remaining uint32, err error) {
    const upd = `UPDATE buildings
                 SET used_licenses = IF(used_licenses >= ?, used_licenses - ?, 0)
                 WHERE id = ?`
    if _, err = tx.ExecContext(ctx, upd, n, n, buildingID); err != nil {
        return 0, err
    }
    return r.remainingTx(ctx, tx, buildingID)
}

// remainingTx reads back the free capacity of a building inside the
// given transaction.
func (r *BuildingRepo) remainingTx(ctx context.Context, tx *sql.Tx, buildingID uint64) (uint32, error) {
    const sel = `SELECT total_licenses, used_licenses FROM buildings WHERE id = ?`
    var total, used uint32
    if err := tx.QueryRowContext(ctx, sel, buildingID).Scan(&total, &used); err != nil {
        return 0, err
    }
    if used >= total {
        return 0, nil
    }
    return total - used, nil
}
