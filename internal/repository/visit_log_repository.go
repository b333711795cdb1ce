package repository // repository for the append-only visit audit trail

import (
    "context"
    "database/sql"

    "github.com/gatepass/backend/internal/model"
)

// VisitLogRepo provides append and read access to the visit_logs
// table.  The table is the audit trail of record: rows are inserted
// and read, never updated or deleted, so no mutating methods beyond
// the inserts exist here.
type VisitLogRepo struct {
    db *sql.DB
}

// NewVisitLogRepo returns a new VisitLogRepo bound to the given database.
func NewVisitLogRepo(db *sql.DB) *VisitLogRepo { return &VisitLogRepo{db: db} }

// AppendTx inserts a log row within an existing transaction, so an
// accepted transition and its audit record commit together.
func (r *VisitLogRepo) AppendTx(ctx context.Context, tx *sql.Tx, e *model.VisitLog) error {
    const q = `INSERT INTO visit_logs (visit_id, action, officer_id, gate, location, detail, at)
               VALUES (?, ?, ?, ?, ?, ?, ?)`
    res, err := tx.ExecContext(ctx, q, e.VisitID, e.Action, e.OfficerID, e.Gate, e.Location, e.Detail, e.At.UTC())
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    e.ID = uint64(id)
    return nil
}

// Append inserts a log row outside any transaction.  Used for
// rejected-attempt records, which do not accompany a state change.
func (r *VisitLogRepo) Append(ctx context.Context, e *model.VisitLog) error {
    const q = `INSERT INTO visit_logs (visit_id, action, officer_id, gate, location, detail, at)
               VALUES (?, ?, ?, ?, ?, ?, ?)`
    res, err := r.db.ExecContext(ctx, q, e.VisitID, e.Action, e.OfficerID, e.Gate, e.Location, e.Detail, e.At.UTC())
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    e.ID = uint64(id)
    return nil
}

// ListByVisit returns the audit trail of a visit in insertion order.
func (r *VisitLogRepo) ListByVisit(ctx context.Context, visitID uint64) ([]model.VisitLog, error) {
    const q = `SELECT id, visit_id, action, officer_id, gate, location, detail, at
               FROM visit_logs WHERE visit_id = ? ORDER BY id`
    rows, err := r.db.QueryContext(ctx, q, visitID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    logs := make([]model.VisitLog, 0)
    for rows.Next() {
        var e model.VisitLog
        if err := rows.Scan(&e.ID, &e.VisitID, &e.Action, &e.OfficerID, &e.Gate,
            &e.Location, &e.Detail, &e.At); err != nil {
            return nil, err
        }
        logs = append(logs, e)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return logs, nil
}
