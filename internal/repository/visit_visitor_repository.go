package repository // repository for visit membership rows

import (
    "context"
    "database/sql"
    "time"

    "github.com/gatepass/backend/internal/model"
)

// VisitVisitorRepo provides data access to the visit_visitors join
// table.  Each row links one visitor to one visit; the pair is
// unique.
type VisitVisitorRepo struct {
    db *sql.DB
}

// NewVisitVisitorRepo returns a new VisitVisitorRepo bound to the
// given database.
func NewVisitVisitorRepo(db *sql.DB) *VisitVisitorRepo { return &VisitVisitorRepo{db: db} }

// CreateBulkTx inserts membership rows for a visit in a single
// statement.  All rows start in EXPECTED status.  Passing an empty
// slice has no effect and returns nil.
func (r *VisitVisitorRepo) CreateBulkTx(ctx context.Context, tx *sql.Tx, visitID uint64, visitorIDs []uint64) error {
    if len(visitorIDs) == 0 {
        return nil
    }
    query := `INSERT INTO visit_visitors (visit_id, visitor_id, status) VALUES `
    args := make([]interface{}, 0, len(visitorIDs)*3)
    for i, vid := range visitorIDs {
        if i > 0 {
            query += ","
        }
        query += "(?, ?, ?)"
        args = append(args, visitID, vid, model.VisitorExpected)
    }
    _, err := tx.ExecContext(ctx, query, args...)
    return err
}

// MarkEnteredTx advances every non-terminal member of a visit to
// ENTERED and stamps the arrival time.  Runs as part of an accepted
// entry scan transaction.
func (r *VisitVisitorRepo) MarkEnteredTx(ctx context.Context, tx *sql.Tx, visitID uint64, at time.Time) error {
    const q = `UPDATE visit_visitors
               SET status = ?, arrived_at = ?
               WHERE visit_id = ? AND status IN (?, ?)`
    _, err := tx.ExecContext(ctx, q, model.VisitorEntered, at.UTC(), visitID,
        model.VisitorExpected, model.VisitorArrived)
    return err
}

// MarkExitedTx advances every entered member of a visit to EXITED
// and stamps the departure time.  Runs as part of an accepted exit
// scan transaction.
func (r *VisitVisitorRepo) MarkExitedTx(ctx context.Context, tx *sql.Tx, visitID uint64, at time.Time) error {
    const q = `UPDATE visit_visitors
               SET status = ?, departed_at = ?
               WHERE visit_id = ? AND status = ?`
    _, err := tx.ExecContext(ctx, q, model.VisitorExited, at.UTC(), visitID, model.VisitorEntered)
    return err
}

// CancelOpenTx marks every member that has not already exited or
// been cancelled as CANCELLED.  Used when the visit itself is
// cancelled or expires.
func (r *VisitVisitorRepo) CancelOpenTx(ctx context.Context, tx *sql.Tx, visitID uint64) error {
    const q = `UPDATE visit_visitors
               SET status = ?
               WHERE visit_id = ? AND status NOT IN (?, ?)`
    _, err := tx.ExecContext(ctx, q, model.VisitorCancelled, visitID,
        model.VisitorExited, model.VisitorCancelled)
    return err
}

// ListByVisit returns the membership rows of a visit together with
// each visitor's identity, ordered by insertion.
func (r *VisitVisitorRepo) ListByVisit(ctx context.Context, visitID uint64) ([]VisitMember, error) {
    const q = `SELECT vv.id, vv.visit_id, vv.visitor_id, vv.status, vv.arrived_at, vv.departed_at,
                      vi.phone, vi.name
               FROM visit_visitors vv
               JOIN visitors vi ON vi.id = vv.visitor_id
               WHERE vv.visit_id = ?
               ORDER BY vv.id`
    rows, err := r.db.QueryContext(ctx, q, visitID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    members := make([]VisitMember, 0)
    for rows.Next() {
        var m VisitMember
        var arrived, departed sql.NullTime
        if err := rows.Scan(&m.ID, &m.VisitID, &m.VisitorID, &m.Status, &arrived, &departed,
            &m.Phone, &m.Name); err != nil {
            return nil, err
        }
        if arrived.Valid {
            t := arrived.Time
            m.ArrivedAt = &t
        }
        if departed.Valid {
            t := departed.Time
            m.DepartedAt = &t
        }
        members = append(members, m)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return members, nil
}

// VisitMember is a visit_visitors row joined with the visitor's
// phone and name for display.
type VisitMember struct {
    ID         uint64     `json:"id"`
    VisitID    uint64     `json:"visit_id"`
    VisitorID  uint64     `json:"visitor_id"`
    Status     string     `json:"status"`
    ArrivedAt  *time.Time `json:"arrived_at,omitempty"`
    DepartedAt *time.Time `json:"departed_at,omitempty"`
    Phone      string     `json:"phone"`
    Name       string     `json:"name"`
}
