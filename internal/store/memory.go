package store

import (
    "context"
    "sync"
    "time"

    "github.com/gatepass/backend/internal/model"
    "github.com/gatepass/backend/internal/repository"
)

// Memory is an in-memory store implementing the same interfaces and
// the same conditional-update semantics as the MySQL store: every
// guard is evaluated and applied under one mutex, so of two racing
// callers exactly one observes the guard as satisfied.  It backs the
// service test suites and local development without a database.
type Memory struct {
    mu sync.Mutex

    nextBuildingID uint64
    nextVisitorID  uint64
    nextVisitID    uint64
    nextMemberID   uint64
    nextBanID      uint64
    nextLogID      uint64

    buildings       map[uint64]*model.Building
    visitorsByPhone map[string]*model.Visitor
    visitors        map[uint64]*model.Visitor
    visits          map[uint64]*model.Visit
    members         map[uint64][]*model.VisitVisitor
    tokens          map[string]*memToken
    bans            []*model.VisitorBan
    logs            map[uint64][]model.VisitLog
}

type memToken struct {
    visitID    uint64
    superseded bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
    return &Memory{
        buildings:       make(map[uint64]*model.Building),
        visitorsByPhone: make(map[string]*model.Visitor),
        visitors:        make(map[uint64]*model.Visitor),
        visits:          make(map[uint64]*model.Visit),
        members:         make(map[uint64][]*model.VisitVisitor),
        tokens:          make(map[string]*memToken),
        logs:            make(map[uint64][]model.VisitLog),
    }
}

// AddBuilding seeds a building with the given license capacity and
// returns it.
func (m *Memory) AddBuilding(name string, totalLicenses uint32) *model.Building {
    m.mu.Lock()
    defer m.mu.Unlock()
    m.nextBuildingID++
    b := &model.Building{
        ID:            m.nextBuildingID,
        Name:          name,
        TotalLicenses: totalLicenses,
        CreatedAt:     time.Now().UTC(),
    }
    m.buildings[b.ID] = b
    return b
}

// AddBan seeds a ban row and returns it with its ID populated.
func (m *Memory) AddBan(b model.VisitorBan) *model.VisitorBan {
    m.mu.Lock()
    defer m.mu.Unlock()
    m.nextBanID++
    b.ID = m.nextBanID
    b.CreatedAt = time.Now().UTC()
    stored := b
    m.bans = append(m.bans, &stored)
    return &stored
}

// ----- LicenseStore -----

func (m *Memory) Allocate(ctx context.Context, buildingID uint64, n uint32) (uint32, bool, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    b, ok := m.buildings[buildingID]
    if !ok {
        return 0, false, ErrNotFound
    }
    if b.UsedLicenses+n > b.TotalLicenses {
        return b.RemainingLicenses(), false, nil
    }
    b.UsedLicenses += n
    return b.RemainingLicenses(), true, nil
}

func (m *Memory) Release(ctx context.Context, buildingID uint64, n uint32) (uint32, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    b, ok := m.buildings[buildingID]
    if !ok {
        return 0, ErrNotFound
    }
    if b.UsedLicenses >= n {
        b.UsedLicenses -= n
    } else {
        b.UsedLicenses = 0
    }
    return b.RemainingLicenses(), nil
}

func (m *Memory) ReleaseVisitLicense(ctx context.Context, visitID uint64) (bool, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    v, ok := m.visits[visitID]
    if !ok {
        return false, ErrNotFound
    }
    if !v.LicenseConsumed || v.LicenseReleased {
        return false, nil
    }
    v.LicenseReleased = true
    if b, ok := m.buildings[v.BuildingID]; ok {
        if b.UsedLicenses > 0 {
            b.UsedLicenses--
        }
    }
    return true, nil
}

func (m *Memory) Building(ctx context.Context, id uint64) (*model.Building, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    b, ok := m.buildings[id]
    if !ok {
        return nil, ErrNotFound
    }
    cp := *b
    return &cp, nil
}

// ----- BanStore -----

func (m *Memory) ActiveBans(ctx context.Context, residentID uint64, phone string) ([]model.VisitorBan, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    now := time.Now().UTC()
    out := make([]model.VisitorBan, 0)
    for _, b := range m.bans {
        if b.UserID == residentID && b.VisitorPhone == phone && b.InForce(now) {
            out = append(out, *b)
        }
    }
    return out, nil
}

func (m *Memory) DistinctBanningResidents(ctx context.Context, buildingID uint64, phone string) (int, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    now := time.Now().UTC()
    seen := make(map[uint64]struct{})
    for _, b := range m.bans {
        if b.BuildingID == buildingID && b.VisitorPhone == phone && b.InForce(now) {
            seen[b.UserID] = struct{}{}
        }
    }
    return len(seen), nil
}

// ----- VisitStore -----

func (m *Memory) CreateVisit(ctx context.Context, in CreateVisitInput) (*model.Visit, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    now := time.Now().UTC()

    // All guards run before any mutation so a rejected creation
    // leaves no partial state, mirroring the SQL rollback.
    for _, vi := range in.Visitors {
        for _, b := range m.bans {
            if b.UserID == in.HostID && b.VisitorPhone == vi.Phone && b.InForce(now) {
                return nil, &BannedError{Phone: vi.Phone}
            }
        }
    }
    var building *model.Building
    if in.ConsumeLicense {
        b, ok := m.buildings[in.BuildingID]
        if !ok {
            return nil, ErrNotFound
        }
        if b.UsedLicenses+1 > b.TotalLicenses {
            return nil, ErrNoCapacity
        }
        building = b
    }

    visitorIDs := make([]uint64, 0, len(in.Visitors))
    for _, vi := range in.Visitors {
        v, ok := m.visitorsByPhone[vi.Phone]
        if !ok {
            m.nextVisitorID++
            v = &model.Visitor{
                ID:        m.nextVisitorID,
                Phone:     vi.Phone,
                CreatedAt: now,
            }
            m.visitorsByPhone[vi.Phone] = v
            m.visitors[v.ID] = v
        }
        v.Name = vi.Name
        if vi.Email != nil {
            v.Email = vi.Email
        }
        if vi.Company != nil {
            v.Company = vi.Company
        }
        visitorIDs = append(visitorIDs, v.ID)
    }

    if building != nil {
        building.UsedLicenses++
    }

    m.nextVisitID++
    v := &model.Visit{
        ID:              m.nextVisitID,
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
        CreatedAt:       now,
    }
    m.visits[v.ID] = v
    for _, vid := range visitorIDs {
        m.nextMemberID++
        m.members[v.ID] = append(m.members[v.ID], &model.VisitVisitor{
            ID:        m.nextMemberID,
            VisitID:   v.ID,
            VisitorID: vid,
            Status:    model.VisitorExpected,
            CreatedAt: now,
        })
    }
    m.tokens[in.QRCode] = &memToken{visitID: v.ID}
    m.appendLogLocked(model.VisitLog{
        VisitID:   v.ID,
        Action:    model.LogActionCreated,
        OfficerID: in.HostID,
        At:        now,
    })
    cp := *v
    return &cp, nil
}

func (m *Memory) Visit(ctx context.Context, id uint64) (*model.Visit, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    v, ok := m.visits[id]
    if !ok {
        return nil, ErrNotFound
    }
    cp := *v
    return &cp, nil
}

func (m *Memory) VisitByToken(ctx context.Context, token string) (*model.Visit, TokenState, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    t, ok := m.tokens[token]
    if !ok {
        return nil, TokenCurrent, ErrNotFound
    }
    v, ok := m.visits[t.visitID]
    if !ok {
        return nil, TokenCurrent, ErrNotFound
    }
    state := TokenCurrent
    if t.superseded {
        state = TokenSuperseded
    }
    cp := *v
    return &cp, state, nil
}

func (m *Memory) ReplaceToken(ctx context.Context, visitID uint64, token string, expiresAt time.Time) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    v, ok := m.visits[visitID]
    if !ok {
        return ErrNotFound
    }
    for _, t := range m.tokens {
        if t.visitID == visitID {
            t.superseded = true
        }
    }
    m.tokens[token] = &memToken{visitID: visitID}
    v.QRCode = token
    v.QRExpiresAt = expiresAt
    return nil
}

func (m *Memory) ApplyEntry(ctx context.Context, visitID uint64, entry model.VisitLog) (bool, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    v, ok := m.visits[visitID]
    if !ok {
        return false, ErrNotFound
    }
    if v.Entry || v.Exit || (v.Status != model.VisitPending && v.Status != model.VisitConfirmed) {
        return false, nil
    }
    v.Entry = true
    v.Status = model.VisitActive
    for _, mm := range m.members[visitID] {
        if mm.Status == model.VisitorExpected || mm.Status == model.VisitorArrived {
            mm.Status = model.VisitorEntered
            at := entry.At
            mm.ArrivedAt = &at
        }
    }
    m.appendLogLocked(entry)
    return true, nil
}

func (m *Memory) ApplyExit(ctx context.Context, visitID uint64, entry model.VisitLog) (bool, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    v, ok := m.visits[visitID]
    if !ok {
        return false, ErrNotFound
    }
    if !v.Entry || v.Exit || v.Status != model.VisitActive {
        return false, nil
    }
    v.Exit = true
    v.Status = model.VisitCompleted
    for _, mm := range m.members[visitID] {
        if mm.Status == model.VisitorEntered {
            mm.Status = model.VisitorExited
            at := entry.At
            mm.DepartedAt = &at
        }
    }
    m.appendLogLocked(entry)
    return true, nil
}

func (m *Memory) CancelVisit(ctx context.Context, visitID uint64, entry model.VisitLog) (bool, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    v, ok := m.visits[visitID]
    if !ok {
        return false, ErrNotFound
    }
    switch v.Status {
    case model.VisitPending, model.VisitConfirmed, model.VisitActive:
    default:
        return false, nil
    }
    v.Status = model.VisitCancelled
    m.cancelOpenMembersLocked(visitID)
    m.appendLogLocked(entry)
    return true, nil
}

func (m *Memory) ExpireVisit(ctx context.Context, visitID uint64, entry model.VisitLog) (bool, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    v, ok := m.visits[visitID]
    if !ok {
        return false, ErrNotFound
    }
    if v.Entry || (v.Status != model.VisitPending && v.Status != model.VisitConfirmed) {
        return false, nil
    }
    v.Status = model.VisitExpired
    m.cancelOpenMembersLocked(visitID)
    m.appendLogLocked(entry)
    return true, nil
}

func (m *Memory) DueForExpiry(ctx context.Context, now time.Time, limit int) ([]model.Visit, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    out := make([]model.Visit, 0)
    for _, v := range m.visits {
        if len(out) >= limit {
            break
        }
        if !v.Entry && (v.Status == model.VisitPending || v.Status == model.VisitConfirmed) &&
            !v.ExpectedEnd.After(now) {
            out = append(out, *v)
        }
    }
    return out, nil
}

func (m *Memory) VisitsByHost(ctx context.Context, hostID uint64) ([]model.Visit, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    out := make([]model.Visit, 0)
    for _, v := range m.visits {
        if v.HostID == hostID {
            out = append(out, *v)
        }
    }
    return out, nil
}

func (m *Memory) VisitsByBuilding(ctx context.Context, buildingID uint64) ([]model.Visit, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    out := make([]model.Visit, 0)
    for _, v := range m.visits {
        if v.BuildingID == buildingID {
            out = append(out, *v)
        }
    }
    return out, nil
}

func (m *Memory) Members(ctx context.Context, visitID uint64) ([]repository.VisitMember, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    out := make([]repository.VisitMember, 0, len(m.members[visitID]))
    for _, mm := range m.members[visitID] {
        member := repository.VisitMember{
            ID:         mm.ID,
            VisitID:    mm.VisitID,
            VisitorID:  mm.VisitorID,
            Status:     mm.Status,
            ArrivedAt:  mm.ArrivedAt,
            DepartedAt: mm.DepartedAt,
        }
        if vi, ok := m.visitors[mm.VisitorID]; ok {
            member.Phone = vi.Phone
            member.Name = vi.Name
        }
        out = append(out, member)
    }
    return out, nil
}

func (m *Memory) AppendRejection(ctx context.Context, entry model.VisitLog) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    m.appendLogLocked(entry)
    return nil
}

func (m *Memory) LogsByVisit(ctx context.Context, visitID uint64) ([]model.VisitLog, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    out := make([]model.VisitLog, len(m.logs[visitID]))
    copy(out, m.logs[visitID])
    return out, nil
}

func (m *Memory) appendLogLocked(entry model.VisitLog) {
    m.nextLogID++
    entry.ID = m.nextLogID
    m.logs[entry.VisitID] = append(m.logs[entry.VisitID], entry)
}

func (m *Memory) cancelOpenMembersLocked(visitID uint64) {
    for _, mm := range m.members[visitID] {
        if mm.Status != model.VisitorExited && mm.Status != model.VisitorCancelled {
            mm.Status = model.VisitorCancelled
        }
    }
}
