package repository // repository for global visitor identities

import (
    "context"
    "database/sql"

    "github.com/gatepass/backend/internal/model"
)

// VisitorRepo provides data access to the visitors table.  Visitors
// are keyed by normalized phone number and created lazily on first
// reference; rows are never deleted.
type VisitorRepo struct {
    db *sql.DB
}

// NewVisitorRepo returns a new VisitorRepo bound to the given database.
func NewVisitorRepo(db *sql.DB) *VisitorRepo { return &VisitorRepo{db: db} }

// UpsertByPhoneTx resolves or creates the visitor row for a phone
// number within the provided transaction and returns its ID.  On
// conflict the existing row is refreshed with the latest name,
// email and company supplied by the host.  The LAST_INSERT_ID(id)
// trick makes LastInsertId return the existing primary key when the
// row already existed.
func (r *VisitorRepo) UpsertByPhoneTx(ctx context.Context, tx *sql.Tx, phone, name string, email, company *string) (uint64, error) {
    const q = `INSERT INTO visitors (phone, name, email, company)
               VALUES (?, ?, ?, ?)
               ON DUPLICATE KEY UPDATE
                   id = LAST_INSERT_ID(id),
                   name = VALUES(name),
                   email = COALESCE(VALUES(email), email),
                   company = COALESCE(VALUES(company), company)`
    res, err := tx.ExecContext(ctx, q, phone, name, email, company)
    if err != nil {
        return 0, err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return 0, err
    }
    return uint64(id), nil
}

// GetByPhone fetches a visitor by normalized phone number.
// sql.ErrNoRows is returned when the visitor has never been
// referenced.
func (r *VisitorRepo) GetByPhone(ctx context.Context, phone string) (*model.Visitor, error) {
    const q = `SELECT id, phone, name, email, company, created_at, updated_at
               FROM visitors WHERE phone = ?`
    var v model.Visitor
    var email, company sql.NullString
    err := r.db.QueryRowContext(ctx, q, phone).Scan(
        &v.ID, &v.Phone, &v.Name, &email, &company, &v.CreatedAt, &v.UpdatedAt,
    )
    if err != nil {
        return nil, err
    }
    if email.Valid {
        e := email.String
        v.Email = &e
    }
    if company.Valid {
        c := company.String
        v.Company = &c
    }
    return &v, nil
}

// GetByID fetches a visitor by primary key.
func (r *VisitorRepo) GetByID(ctx context.Context, id uint64) (*model.Visitor, error) {
    const q = `SELECT id, phone, name, email, company, created_at, updated_at
               FROM visitors WHERE id = ?`
    var v model.Visitor
    var email, company sql.NullString
    err := r.db.QueryRowContext(ctx, q, id).Scan(
        &v.ID, &v.Phone, &v.Name, &email, &company, &v.CreatedAt, &v.UpdatedAt,
    )
    if err != nil {
        return nil, err
    }
    if email.Valid {
        e := email.String
        v.Email = &e
    }
    if company.Valid {
        c := company.String
        v.Company = &c
    }
    return &v, nil
}
