package service

import (
    "context"
    "errors"
    "fmt"
    "log"
    "time"

    "github.com/gatepass/backend/internal/model"
    "github.com/gatepass/backend/internal/queue"
    "github.com/gatepass/backend/internal/repository"
    "github.com/gatepass/backend/internal/store"
    "github.com/gatepass/backend/internal/utils"
)

// VisitorInfo is one invited visitor as submitted by the host.  The
// phone may arrive in any formatting; it is normalized before use.
type VisitorInfo struct {
    Phone   string  `json:"phone"`
    Name    string  `json:"name"`
    Email   *string `json:"email,omitempty"`
    Company *string `json:"company,omitempty"`
}

// CreateVisitRequest carries a host's request to book a visit.
type CreateVisitRequest struct {
    BuildingID    uint64        `json:"building_id"`
    Title         string        `json:"title"`
    ExpectedStart time.Time     `json:"expected_start"`
    ExpectedEnd   time.Time     `json:"expected_end"`
    MaxVisitors   uint32        `json:"max_visitors"`
    Confirmed     bool          `json:"confirmed"`
    Visitors      []VisitorInfo `json:"visitors"`
}

// VisitLifecycle owns visit creation, cancellation and expiry.  The
// gate scan transitions live in ScanProcessor; both converge on the
// same conditional updates in the store, so the split is purely an
// API boundary, not a correctness one.
type VisitLifecycle struct {
    visits   store.VisitStore
    gate     *BanGate
    ledger   *LicenseLedger
    qr       *QRCodec
    notifier Notifier

    maxVisitors uint32
    clock       func() time.Time
}

// NewVisitLifecycle constructs the lifecycle service.  maxVisitors
// caps how many visitors a single visit may invite; notifier may be
// nil (events are then dropped).
func NewVisitLifecycle(visits store.VisitStore, gate *BanGate, ledger *LicenseLedger, qr *QRCodec, notifier Notifier, maxVisitors uint32) *VisitLifecycle {
    return &VisitLifecycle{
        visits:      visits,
        gate:        gate,
        ledger:      ledger,
        qr:          qr,
        notifier:    notifier,
        maxVisitors: maxVisitors,
        clock:       func() time.Time { return time.Now().UTC() },
    }
}

// Create books a visit for the actor.  The sequence is: validate and
// normalize input, consult the ban gate for every visitor phone,
// issue a QR token, then hand the whole composite (license
// allocation included) to the store as one transaction.  A blocked
// visitor rejects the entire visit; partial bookings are never
// created.
func (s *VisitLifecycle) Create(ctx context.Context, actor Actor, req CreateVisitRequest) (*model.Visit, error) {
    if !actor.sameBuilding(req.BuildingID) {
        return nil, ErrUnauthorized
    }
    visitors, err := s.normalizeVisitors(req)
    if err != nil {
        return nil, err
    }

    // Pre-check the ban registry per phone so the caller gets ban
    // details on rejection.  The store re-checks inside the creation
    // transaction, so a ban landing between here and the commit
    // still blocks.
    for _, v := range visitors {
        dec := s.gate.Check(ctx, req.BuildingID, actor.ID, v.Phone)
        if dec.Blocked {
            return nil, &BlockedVisitorError{Phone: v.Phone, Bans: dec.Bans, Unverified: dec.Unverified}
        }
        if dec.Unverified {
            log.Printf("visit-create: ban check unverified for phone=%s, proceeding (fail-open)", v.Phone)
        }
    }

    token, expiresAt, err := s.qr.Issue(req.ExpectedEnd)
    if err != nil {
        return nil, err
    }

    status := model.VisitPending
    if req.Confirmed {
        status = model.VisitConfirmed
    }
    visit, err := s.visits.CreateVisit(ctx, store.CreateVisitInput{
        BuildingID:     req.BuildingID,
        HostID:         actor.ID,
        Title:          req.Title,
        Status:         status,
        ExpectedStart:  req.ExpectedStart.UTC(),
        ExpectedEnd:    req.ExpectedEnd.UTC(),
        MaxVisitors:    req.MaxVisitors,
        Visitors:       visitors,
        ConsumeLicense: actor.Role.ConsumesLicense(),
        QRCode:         token,
        QRExpiresAt:    expiresAt,
    })
    if err != nil {
        var banned *store.BannedError
        switch {
        case errors.As(err, &banned):
            return nil, &BlockedVisitorError{Phone: banned.Phone}
        case errors.Is(err, store.ErrNoCapacity):
            return nil, ErrCapacityExceeded
        case errors.Is(err, store.ErrNotFound):
            return nil, ErrNotFound
        }
        return nil, err
    }

    notify(s.notifier, s.event(queue.EventVisitCreated, visit, actor.ID, "", "", visitors))
    return visit, nil
}

// normalizeVisitors validates the request and returns the visitor
// list with canonical, de-duplicated phones.
func (s *VisitLifecycle) normalizeVisitors(req CreateVisitRequest) ([]store.VisitorInput, error) {
    if req.BuildingID == 0 {
        return nil, fmt.Errorf("%w: building_id is required", ErrValidation)
    }
    if len(req.Visitors) == 0 {
        return nil, fmt.Errorf("%w: at least one visitor is required", ErrValidation)
    }
    if req.MaxVisitors == 0 {
        req.MaxVisitors = uint32(len(req.Visitors))
    }
    if uint32(len(req.Visitors)) > req.MaxVisitors {
        return nil, fmt.Errorf("%w: %d visitors exceed the visit limit of %d", ErrValidation, len(req.Visitors), req.MaxVisitors)
    }
    if s.maxVisitors > 0 && uint32(len(req.Visitors)) > s.maxVisitors {
        return nil, fmt.Errorf("%w: at most %d visitors per visit", ErrValidation, s.maxVisitors)
    }
    if !req.ExpectedEnd.After(req.ExpectedStart) {
        return nil, fmt.Errorf("%w: expected_end must be after expected_start", ErrValidation)
    }
    if req.ExpectedEnd.Before(s.clock()) {
        return nil, fmt.Errorf("%w: expected_end is in the past", ErrValidation)
    }

    seen := make(map[string]bool, len(req.Visitors))
    out := make([]store.VisitorInput, 0, len(req.Visitors))
    for _, v := range req.Visitors {
        phone := utils.NormalizePhone(v.Phone)
        if phone == "" {
            return nil, fmt.Errorf("%w: visitor phone %q is not a valid number", ErrValidation, v.Phone)
        }
        if seen[phone] {
            continue // same visitor listed twice
        }
        seen[phone] = true
        out = append(out, store.VisitorInput{
            Phone:   phone,
            Name:    v.Name,
            Email:   v.Email,
            Company: v.Company,
        })
    }
    return out, nil
}

// Cancel transitions a visit to CANCELLED and returns its license
// allocation, if any, to the pool.  Only the host or a
// building-scoped manager may cancel.
func (s *VisitLifecycle) Cancel(ctx context.Context, actor Actor, visitID uint64) (*model.Visit, error) {
    visit, err := s.Get(ctx, actor, visitID)
    if err != nil {
        return nil, err
    }
    if visit.HostID != actor.ID && !actor.Role.CanManageBuilding() {
        return nil, ErrUnauthorized
    }
    if visit.IsTerminal() {
        return nil, ErrAlreadyTerminal
    }

    ok, err := s.visits.CancelVisit(ctx, visitID, model.VisitLog{
        VisitID:   visitID,
        Action:    model.LogActionCancelled,
        OfficerID: actor.ID,
        At:        s.clock(),
    })
    if err != nil {
        return nil, err
    }
    if !ok {
        // Lost a race against a scan or another cancel.
        return nil, ErrAlreadyTerminal
    }

    if err := s.ledger.ReleaseForVisit(ctx, visitID); err != nil {
        // The visit is cancelled either way; the released flag keeps
        // a retry safe.
        log.Printf("visit-cancel: license release failed for visit=%d: %v", visitID, err)
    }

    visit, err = s.visits.Visit(ctx, visitID)
    if err != nil {
        return nil, err
    }
    notify(s.notifier, s.event(queue.EventVisitCancelled, visit, actor.ID, "", "", nil))
    return visit, nil
}

// ExpireDue sweeps visits whose expected end has passed without an
// entry scan, transitioning each to EXPIRED and returning its
// license.  Returns how many visits this sweep expired.  A visit
// that receives an entry scan mid-sweep is skipped by the
// conditional update, not double-transitioned.
func (s *VisitLifecycle) ExpireDue(ctx context.Context, batch int) (int, error) {
    now := s.clock()
    due, err := s.visits.DueForExpiry(ctx, now, batch)
    if err != nil {
        return 0, err
    }

    expired := 0
    for _, v := range due {
        ok, err := s.visits.ExpireVisit(ctx, v.ID, model.VisitLog{
            VisitID: v.ID,
            Action:  model.LogActionExpired,
            Detail:  "expected end passed without entry",
            At:      now,
        })
        if err != nil {
            log.Printf("expiry-sweep: expire failed for visit=%d: %v", v.ID, err)
            continue
        }
        if !ok {
            continue // entered or cancelled since the listing
        }
        expired++
        if err := s.ledger.ReleaseForVisit(ctx, v.ID); err != nil {
            log.Printf("expiry-sweep: license release failed for visit=%d: %v", v.ID, err)
        }
        ev := v
        ev.Status = model.VisitExpired
        notify(s.notifier, s.event(queue.EventVisitExpired, &ev, 0, "", "", nil))
    }
    return expired, nil
}

// Get fetches a visit the actor is allowed to see: its host, or any
// manager or security officer scoped to its building.
func (s *VisitLifecycle) Get(ctx context.Context, actor Actor, visitID uint64) (*model.Visit, error) {
    var visit *model.Visit
    err := retryRead(ctx, func() error {
        var e error
        visit, e = s.visits.Visit(ctx, visitID)
        return e
    })
    if err != nil {
        if errors.Is(err, store.ErrNotFound) {
            return nil, ErrNotFound
        }
        return nil, err
    }
    if visit.HostID != actor.ID && !s.buildingReader(actor, visit.BuildingID) {
        return nil, ErrUnauthorized
    }
    return visit, nil
}

// buildingReader reports whether the actor may read visits of the
// building it did not host.
func (s *VisitLifecycle) buildingReader(actor Actor, buildingID uint64) bool {
    if !actor.sameBuilding(buildingID) {
        return false
    }
    return actor.Role.CanManageBuilding() || actor.Role.CanScan()
}

// VisitsForHost lists the actor's own visits, newest first.
func (s *VisitLifecycle) VisitsForHost(ctx context.Context, actor Actor) ([]model.Visit, error) {
    var visits []model.Visit
    err := retryRead(ctx, func() error {
        var e error
        visits, e = s.visits.VisitsByHost(ctx, actor.ID)
        return e
    })
    return visits, err
}

// VisitsForBuilding lists a building's visits for managers and
// security officers.
func (s *VisitLifecycle) VisitsForBuilding(ctx context.Context, actor Actor, buildingID uint64) ([]model.Visit, error) {
    if !s.buildingReader(actor, buildingID) {
        return nil, ErrUnauthorized
    }
    var visits []model.Visit
    err := retryRead(ctx, func() error {
        var e error
        visits, e = s.visits.VisitsByBuilding(ctx, buildingID)
        return e
    })
    return visits, err
}

// Members lists the visitors attached to a visit.
func (s *VisitLifecycle) Members(ctx context.Context, actor Actor, visitID uint64) ([]repository.VisitMember, error) {
    if _, err := s.Get(ctx, actor, visitID); err != nil {
        return nil, err
    }
    var members []repository.VisitMember
    err := retryRead(ctx, func() error {
        var e error
        members, e = s.visits.Members(ctx, visitID)
        return e
    })
    return members, err
}

// Logs returns a visit's audit trail in order of occurrence.
func (s *VisitLifecycle) Logs(ctx context.Context, actor Actor, visitID uint64) ([]model.VisitLog, error) {
    if _, err := s.Get(ctx, actor, visitID); err != nil {
        return nil, err
    }
    var logs []model.VisitLog
    err := retryRead(ctx, func() error {
        var e error
        logs, e = s.visits.LogsByVisit(ctx, visitID)
        return e
    })
    return logs, err
}

// ReissueQR replaces the visit's QR token, invalidating the previous
// one.  Only the host or a building manager may re-issue, and never
// on a terminal visit.
func (s *VisitLifecycle) ReissueQR(ctx context.Context, actor Actor, visitID uint64) (string, time.Time, error) {
    visit, err := s.Get(ctx, actor, visitID)
    if err != nil {
        return "", time.Time{}, err
    }
    if visit.HostID != actor.ID && !actor.Role.CanManageBuilding() {
        return "", time.Time{}, ErrUnauthorized
    }
    return s.qr.Reissue(ctx, visit)
}

// event assembles the broker payload for a lifecycle transition.
func (s *VisitLifecycle) event(eventType string, visit *model.Visit, officerID uint64, gate, location string, visitors []store.VisitorInput) queue.VisitEvent {
    phones := make([]string, 0, len(visitors))
    for _, v := range visitors {
        phones = append(phones, v.Phone)
    }
    return queue.VisitEvent{
        Type:          eventType,
        VisitID:       visit.ID,
        BuildingID:    visit.BuildingID,
        HostID:        visit.HostID,
        OfficerID:     officerID,
        Title:         visit.Title,
        Gate:          gate,
        Location:      location,
        VisitorPhones: phones,
        OccurredAt:    s.clock().Format(time.RFC3339),
    }
}
