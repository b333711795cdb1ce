package service

import (
    "context"
    "errors"
    "log"
    "time"

    "github.com/gatepass/backend/internal/model"
    "github.com/gatepass/backend/internal/queue"
    "github.com/gatepass/backend/internal/store"
)

// Scan actions as reported back to the gate terminal.
const (
    ScanActionEntry = "ENTRY"
    ScanActionExit  = "EXIT"
)

// ScanRequest is one QR presentation at a gate terminal.
type ScanRequest struct {
    Token    string `json:"qr_code"`
    Gate     string `json:"gate,omitempty"`
    Location string `json:"location,omitempty"`
}

// ScanResult reports an accepted scan: which transition it caused
// and the visit as observed after it.
type ScanResult struct {
    Action string       `json:"action"`
    Visit  *model.Visit `json:"visit"`
}

// ScanProcessor turns QR presentations into entry and exit
// transitions.  The scan itself carries no intent; the processor
// infers it from the visit's flags (no entry yet means entry, entry
// without exit means exit).  Concurrent duplicate scans are resolved
// by the store's conditional updates: exactly one scanner wins each
// flag, every loser gets a conflict error, and every refusal is
// recorded in the audit trail.
type ScanProcessor struct {
    visits   store.VisitStore
    qr       *QRCodec
    ledger   *LicenseLedger
    notifier Notifier

    clock func() time.Time
}

// NewScanProcessor constructs the processor.  notifier may be nil.
func NewScanProcessor(visits store.VisitStore, qr *QRCodec, ledger *LicenseLedger, notifier Notifier) *ScanProcessor {
    return &ScanProcessor{
        visits:   visits,
        qr:       qr,
        ledger:   ledger,
        notifier: notifier,
        clock:    func() time.Time { return time.Now().UTC() },
    }
}

// Scan processes one presentation.  The actor must hold a scanning
// role; the capability check precedes even token resolution so an
// unauthorized caller learns nothing about the token.
func (s *ScanProcessor) Scan(ctx context.Context, actor Actor, req ScanRequest) (*ScanResult, error) {
    if !actor.Role.CanScan() {
        return nil, ErrUnauthorized
    }

    visit, err := s.qr.Validate(ctx, req.Token)
    if err != nil {
        // Superseded and expired tokens still resolve to a visit;
        // record the refusal against it.
        if visit != nil {
            s.reject(ctx, visit.ID, actor, req, err.Error())
        }
        return nil, err
    }
    if !actor.sameBuilding(visit.BuildingID) {
        s.reject(ctx, visit.ID, actor, req, "officer not scoped to building")
        return nil, ErrUnauthorized
    }

    switch {
    case !visit.Entry:
        return s.applyEntry(ctx, actor, visit, req)
    case !visit.Exit:
        return s.applyExit(ctx, actor, visit, req)
    default:
        s.reject(ctx, visit.ID, actor, req, "visit already completed")
        return nil, ErrAlreadyCompleted
    }
}

func (s *ScanProcessor) applyEntry(ctx context.Context, actor Actor, visit *model.Visit, req ScanRequest) (*ScanResult, error) {
    ok, err := s.visits.ApplyEntry(ctx, visit.ID, s.logEntry(visit.ID, model.LogActionEntry, actor, req, ""))
    if err != nil {
        return nil, err
    }
    if !ok {
        return nil, s.conflict(ctx, actor, visit.ID, req)
    }

    updated, err := s.visits.Visit(ctx, visit.ID)
    if err != nil {
        return nil, err
    }
    notify(s.notifier, s.scanEvent(queue.EventVisitEntry, updated, actor.ID, req))
    return &ScanResult{Action: ScanActionEntry, Visit: updated}, nil
}

func (s *ScanProcessor) applyExit(ctx context.Context, actor Actor, visit *model.Visit, req ScanRequest) (*ScanResult, error) {
    ok, err := s.visits.ApplyExit(ctx, visit.ID, s.logEntry(visit.ID, model.LogActionExit, actor, req, ""))
    if err != nil {
        return nil, err
    }
    if !ok {
        return nil, s.conflict(ctx, actor, visit.ID, req)
    }

    // Exit completes the visit; hand its license back.  The released
    // flag makes a duplicate release attempt a no-op.
    if err := s.ledger.ReleaseForVisit(ctx, visit.ID); err != nil {
        log.Printf("scan-exit: license release failed for visit=%d: %v", visit.ID, err)
    }

    updated, err := s.visits.Visit(ctx, visit.ID)
    if err != nil {
        return nil, err
    }
    notify(s.notifier, s.scanEvent(queue.EventVisitExit, updated, actor.ID, req))
    return &ScanResult{Action: ScanActionExit, Visit: updated}, nil
}

// conflict classifies a lost conditional update by re-reading the
// visit, records the refusal, and returns the sentinel the terminal
// should display.  A cancelled or expired visit reports terminal;
// everything else (a racing scanner won the flag) reports already
// scanned.
func (s *ScanProcessor) conflict(ctx context.Context, actor Actor, visitID uint64, req ScanRequest) error {
    current, err := s.visits.Visit(ctx, visitID)
    if err != nil {
        if errors.Is(err, store.ErrNotFound) {
            return ErrNotFound
        }
        return err
    }

    cause := ErrAlreadyCompleted
    if current.IsTerminal() && current.Status != model.VisitCompleted {
        cause = ErrAlreadyTerminal
    }
    s.reject(ctx, visitID, actor, req, cause.Error())
    return cause
}

// reject appends a REJECTED audit entry.  Rejections are best
// effort; a failure to record one never changes the scan outcome.
func (s *ScanProcessor) reject(ctx context.Context, visitID uint64, actor Actor, req ScanRequest, detail string) {
    entry := s.logEntry(visitID, model.LogActionRejected, actor, req, detail)
    if err := s.visits.AppendRejection(ctx, entry); err != nil {
        log.Printf("scan-reject: audit append failed for visit=%d: %v", visitID, err)
    }
}

func (s *ScanProcessor) logEntry(visitID uint64, action string, actor Actor, req ScanRequest, detail string) model.VisitLog {
    return model.VisitLog{
        VisitID:   visitID,
        Action:    action,
        OfficerID: actor.ID,
        Gate:      req.Gate,
        Location:  req.Location,
        Detail:    detail,
        At:        s.clock(),
    }
}

func (s *ScanProcessor) scanEvent(eventType string, visit *model.Visit, officerID uint64, req ScanRequest) queue.VisitEvent {
    return queue.VisitEvent{
        Type:       eventType,
        VisitID:    visit.ID,
        BuildingID: visit.BuildingID,
        HostID:     visit.HostID,
        OfficerID:  officerID,
        Title:      visit.Title,
        Gate:       req.Gate,
        Location:   req.Location,
        OccurredAt: s.clock().Format(time.RFC3339),
    }
}
