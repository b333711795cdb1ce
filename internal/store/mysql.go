package store

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/gatepass/backend/internal/model"
    "github.com/gatepass/backend/internal/repository"
)

// MySQL implements the store interfaces on top of the repository
// layer.  Composite operations open a single transaction and roll
// back on any failure, so a license can never be held without its
// visit and an accepted transition always commits together with its
// audit entry.
type MySQL struct {
    db        *sql.DB
    buildings *repository.BuildingRepo
    visitors  *repository.VisitorRepo
    visits    *repository.VisitRepo
    members   *repository.VisitVisitorRepo
    bans      *repository.BanRepo
    logs      *repository.VisitLogRepo
}

// NewMySQL wires a MySQL store from a database handle.
func NewMySQL(db *sql.DB) *MySQL {
    return &MySQL{
        db:        db,
        buildings: repository.NewBuildingRepo(db),
        visitors:  repository.NewVisitorRepo(db),
        visits:    repository.NewVisitRepo(db),
        members:   repository.NewVisitVisitorRepo(db),
        bans:      repository.NewBanRepo(db),
        logs:      repository.NewVisitLogRepo(db),
    }
}

// notFound translates sql.ErrNoRows into the store sentinel so the
// services stay independent of database/sql.
func notFound(err error) error {
    if errors.Is(err, sql.ErrNoRows) {
        return ErrNotFound
    }
    return err
}

// ----- LicenseStore -----

func (s *MySQL) Allocate(ctx context.Context, buildingID uint64, n uint32) (uint32, bool, error) {
    tx, err := s.db.BeginTx(ctx, nil)
    if err != nil {
        return 0, false, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    remaining, ok, err := s.buildings.AllocateTx(ctx, tx, buildingID, n)
    if err != nil {
        return 0, false, notFound(err)
    }
    if err := tx.Commit(); err != nil {
        return 0, false, err
    }
    committed = true
    return remaining, ok, nil
}

func (s *MySQL) Release(ctx context.Context, buildingID uint64, n uint32) (uint32, error) {
    tx, err := s.db.BeginTx(ctx, nil)
    if err != nil {
        return 0, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    remaining, err := s.buildings.ReleaseTx(ctx, tx, buildingID, n)
    if err != nil {
        return 0, notFound(err)
    }
    if err := tx.Commit(); err != nil {
        return 0, err
    }
    committed = true
    return remaining, nil
}

func (s *MySQL) ReleaseVisitLicense(ctx context.Context, visitID uint64) (bool, error) {
    tx, err := s.db.BeginTx(ctx, nil)
    if err != nil {
        return false, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    // The flag flip is the idempotency guard: it succeeds at most
    // once per visit, so the decrement below runs at most once.
    flipped, err := s.visits.MarkLicenseReleasedTx(ctx, tx, visitID)
    if err != nil {
        return false, err
    }
    if !flipped {
        _ = tx.Rollback()
        return false, nil
    }
    v, err := s.visits.GetByIDTx(ctx, tx, visitID)
    if err != nil {
        return false, notFound(err)
    }
    if _, err := s.buildings.ReleaseTx(ctx, tx, v.BuildingID, 1); err != nil {
        return false, err
    }
    if err := tx.Commit(); err != nil {
        return false, err
    }
    committed = true
    return true, nil
}

func (s *MySQL) Building(ctx context.Context, id uint64) (*model.Building, error) {
    b, err := s.buildings.GetByID(ctx, id)
    if err != nil {
        return nil, notFound(err)
    }
    return b, nil
}

// ----- BanStore -----

func (s *MySQL) ActiveBans(ctx context.Context, residentID uint64, phone string) ([]model.VisitorBan, error) {
    return s.bans.ActiveByResidentAndPhone(ctx, residentID, phone)
}

func (s *MySQL) DistinctBanningResidents(ctx context.Context, buildingID uint64, phone string) (int, error) {
    return s.bans.CountDistinctResidents(ctx, buildingID, phone)
}

// ----- VisitStore -----

func (s *MySQL) CreateVisit(ctx context.Context, in CreateVisitInput) (*model.Visit, error) {
    tx, err := s.db.BeginTx(ctx, nil)
    if err != nil {
        return nil, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    // Resolve or create visitor identities, re-checking the ban
    // registry for each phone inside this transaction.
    visitorIDs := make([]uint64, 0, len(in.Visitors))
    for _, vi := range in.Visitors {
        banned, err := s.bans.ExistsActiveTx(ctx, tx, in.HostID, vi.Phone)
        if err != nil {
            return nil, err
        }
        if banned {
            return nil, &BannedError{Phone: vi.Phone}
        }
        id, err := s.visitors.UpsertByPhoneTx(ctx, tx, vi.Phone, vi.Name, vi.Email, vi.Company)
        if err != nil {
            return nil, err
        }
        visitorIDs = append(visitorIDs, id)
    }

    if in.ConsumeLicense {
        _, ok, err := s.buildings.AllocateTx(ctx, tx, in.BuildingID, 1)
        if err != nil {
            return nil, notFound(err)
        }
        if !ok {
            return nil, ErrNoCapacity
        }
    }

    v := &model.Visit{
        BuildingID:      in.BuildingID,
        HostID:          in.HostID,
        Title:           in.Title,
        Status:          in.Status,
        QRCode:          in.QRCode,
        QRExpiresAt:     in.QRExpiresAt,
        ExpectedStart:   in.ExpectedStart,
        ExpectedEnd:     in.ExpectedEnd,
        MaxVisitors:     in.MaxVisitors,
        CurrentVisitors: uint32(len(in.Visitors)),
        LicenseConsumed: in.ConsumeLicense,
    }
    if err := s.visits.CreateTx(ctx, tx, v); err != nil {
        return nil, err
    }
    if err := s.members.CreateBulkTx(ctx, tx, v.ID, visitorIDs); err != nil {
        return nil, err
    }
    if err := s.visits.InsertTokenTx(ctx, tx, v.ID, in.QRCode, in.QRExpiresAt); err != nil {
        return nil, err
    }
    if err := s.logs.AppendTx(ctx, tx, &model.VisitLog{
        VisitID:   v.ID,
        Action:    model.LogActionCreated,
        OfficerID: in.HostID,
        At:        time.Now().UTC(),
    }); err != nil {
        return nil, err
    }

    if err := tx.Commit(); err != nil {
        return nil, err
    }
    committed = true
    return v, nil
}

func (s *MySQL) Visit(ctx context.Context, id uint64) (*model.Visit, error) {
    v, err := s.visits.GetByID(ctx, id)
    if err != nil {
        return nil, notFound(err)
    }
    return v, nil
}

func (s *MySQL) VisitByToken(ctx context.Context, token string) (*model.Visit, TokenState, error) {
    v, superseded, err := s.visits.FindByToken(ctx, token)
    if err != nil {
        return nil, TokenCurrent, notFound(err)
    }
    state := TokenCurrent
    if superseded {
        state = TokenSuperseded
    }
    return v, state, nil
}

func (s *MySQL) ReplaceToken(ctx context.Context, visitID uint64, token string, expiresAt time.Time) error {
    tx, err := s.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    if err := s.visits.InsertTokenTx(ctx, tx, visitID, token, expiresAt); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// transition runs a conditional visit update plus its side effects
// inside one transaction.  The apply callback reports whether the
// guard matched; when it did not, the transaction is rolled back and
// the conflict is reported to the caller without error.
func (s *MySQL) transition(ctx context.Context, apply func(tx *sql.Tx) (bool, error)) (bool, error) {
    tx, err := s.db.BeginTx(ctx, nil)
    if err != nil {
        return false, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    ok, err := apply(tx)
    if err != nil {
        return false, err
    }
    if !ok {
        return false, nil
    }
    if err := tx.Commit(); err != nil {
        return false, err
    }
    committed = true
    return true, nil
}

func (s *MySQL) ApplyEntry(ctx context.Context, visitID uint64, entry model.VisitLog) (bool, error) {
    return s.transition(ctx, func(tx *sql.Tx) (bool, error) {
        ok, err := s.visits.MarkEntryTx(ctx, tx, visitID)
        if err != nil || !ok {
            return false, err
        }
        if err := s.members.MarkEnteredTx(ctx, tx, visitID, entry.At); err != nil {
            return false, err
        }
        return true, s.logs.AppendTx(ctx, tx, &entry)
    })
}

func (s *MySQL) ApplyExit(ctx context.Context, visitID uint64, entry model.VisitLog) (bool, error) {
    return s.transition(ctx, func(tx *sql.Tx) (bool, error) {
        ok, err := s.visits.MarkExitTx(ctx, tx, visitID)
        if err != nil || !ok {
            return false, err
        }
        if err := s.members.MarkExitedTx(ctx, tx, visitID, entry.At); err != nil {
            return false, err
        }
        return true, s.logs.AppendTx(ctx, tx, &entry)
    })
}

func (s *MySQL) CancelVisit(ctx context.Context, visitID uint64, entry model.VisitLog) (bool, error) {
    return s.transition(ctx, func(tx *sql.Tx) (bool, error) {
        ok, err := s.visits.CancelTx(ctx, tx, visitID)
        if err != nil || !ok {
            return false, err
        }
        if err := s.members.CancelOpenTx(ctx, tx, visitID); err != nil {
            return false, err
        }
        return true, s.logs.AppendTx(ctx, tx, &entry)
    })
}

func (s *MySQL) ExpireVisit(ctx context.Context, visitID uint64, entry model.VisitLog) (bool, error) {
    return s.transition(ctx, func(tx *sql.Tx) (bool, error) {
        ok, err := s.visits.ExpireTx(ctx, tx, visitID)
        if err != nil || !ok {
            return false, err
        }
        if err := s.members.CancelOpenTx(ctx, tx, visitID); err != nil {
            return false, err
        }
        return true, s.logs.AppendTx(ctx, tx, &entry)
    })
}

func (s *MySQL) DueForExpiry(ctx context.Context, now time.Time, limit int) ([]model.Visit, error) {
    return s.visits.ListDueForExpiry(ctx, now, limit)
}

func (s *MySQL) VisitsByHost(ctx context.Context, hostID uint64) ([]model.Visit, error) {
    return s.visits.ListByHost(ctx, hostID)
}

func (s *MySQL) VisitsByBuilding(ctx context.Context, buildingID uint64) ([]model.Visit, error) {
    return s.visits.ListByBuilding(ctx, buildingID)
}

func (s *MySQL) Members(ctx context.Context, visitID uint64) ([]repository.VisitMember, error) {
    return s.members.ListByVisit(ctx, visitID)
}

func (s *MySQL) AppendRejection(ctx context.Context, entry model.VisitLog) error {
    return s.logs.Append(ctx, &entry)
}

func (s *MySQL) LogsByVisit(ctx context.Context, visitID uint64) ([]model.VisitLog, error) {
    return s.logs.ListByVisit(ctx, visitID)
}
