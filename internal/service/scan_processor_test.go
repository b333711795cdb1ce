package service

import (
    "context"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/require"
    "github.com/stretchr/testify/suite"

    "github.com/gatepass/backend/internal/model"
    "github.com/gatepass/backend/internal/store"
)

type ScanProcessorSuite struct {
    suite.Suite
    ctx       context.Context
    mem       *store.Memory
    lifecycle *VisitLifecycle
    scans     *ScanProcessor
    ledger    *LicenseLedger
    qr        *QRCodec
}

func TestScanProcessorSuite(t *testing.T) {
    suite.Run(t, new(ScanProcessorSuite))
}

func (s *ScanProcessorSuite) SetupTest() {
    s.ctx = context.Background()
    s.mem, s.lifecycle, s.scans, s.ledger, s.qr = newTestStack(false)
    s.mem.AddBuilding("North Tower", 5)
}

func (s *ScanProcessorSuite) createVisit() *model.Visit {
    resident, _, _ := testActors()
    visit, err := s.lifecycle.Create(s.ctx, resident, testVisitRequest("+15550001"))
    s.Require().NoError(err)
    return visit
}

func (s *ScanProcessorSuite) rejections(visitID uint64) []model.VisitLog {
    _, admin, _ := testActors()
    logs, err := s.lifecycle.Logs(s.ctx, admin, visitID)
    s.Require().NoError(err)
    out := make([]model.VisitLog, 0)
    for _, l := range logs {
        if l.Action == model.LogActionRejected {
            out = append(out, l)
        }
    }
    return out
}

func (s *ScanProcessorSuite) TestRoleGate() {
    resident, admin, _ := testActors()
    visit := s.createVisit()

    _, err := s.scans.Scan(s.ctx, resident, ScanRequest{Token: visit.QRCode})
    s.ErrorIs(err, ErrUnauthorized)
    _, err = s.scans.Scan(s.ctx, admin, ScanRequest{Token: visit.QRCode})
    s.ErrorIs(err, ErrUnauthorized, "admins manage visits but do not operate gates")
}

func (s *ScanProcessorSuite) TestEntryThenExit() {
    _, admin, security := testActors()
    visit := s.createVisit()

    res, err := s.scans.Scan(s.ctx, security, ScanRequest{Token: visit.QRCode, Gate: "main", Location: "lobby"})
    s.Require().NoError(err)
    s.Equal(ScanActionEntry, res.Action)
    s.Equal(model.VisitActive, res.Visit.Status)
    s.True(res.Visit.Entry)

    res, err = s.scans.Scan(s.ctx, security, ScanRequest{Token: visit.QRCode, Gate: "main"})
    s.Require().NoError(err)
    s.Equal(ScanActionExit, res.Action)
    s.Equal(model.VisitCompleted, res.Visit.Status)
    s.True(res.Visit.Exit)

    // Exit completed the visit and returned its license.
    b, err := s.ledger.Pool(s.ctx, 1)
    s.Require().NoError(err)
    s.Equal(uint32(0), b.UsedLicenses)

    logs, err := s.lifecycle.Logs(s.ctx, admin, visit.ID)
    s.Require().NoError(err)
    actions := make([]string, 0, len(logs))
    for _, l := range logs {
        actions = append(actions, l.Action)
    }
    s.Equal([]string{model.LogActionCreated, model.LogActionEntry, model.LogActionExit}, actions)
}

func (s *ScanProcessorSuite) TestThirdScanRejected() {
    _, _, security := testActors()
    visit := s.createVisit()

    _, err := s.scans.Scan(s.ctx, security, ScanRequest{Token: visit.QRCode})
    s.Require().NoError(err)
    _, err = s.scans.Scan(s.ctx, security, ScanRequest{Token: visit.QRCode})
    s.Require().NoError(err)

    _, err = s.scans.Scan(s.ctx, security, ScanRequest{Token: visit.QRCode})
    s.ErrorIs(err, ErrAlreadyCompleted)
    s.Len(s.rejections(visit.ID), 1)
}

func (s *ScanProcessorSuite) TestScanCancelledVisit() {
    resident, _, security := testActors()
    visit := s.createVisit()
    _, err := s.lifecycle.Cancel(s.ctx, resident, visit.ID)
    s.Require().NoError(err)

    _, err = s.scans.Scan(s.ctx, security, ScanRequest{Token: visit.QRCode})
    s.ErrorIs(err, ErrAlreadyTerminal)
    s.Len(s.rejections(visit.ID), 1)
}

func (s *ScanProcessorSuite) TestSupersededTokenRejected() {
    resident, _, security := testActors()
    visit := s.createVisit()

    _, _, err := s.lifecycle.ReissueQR(s.ctx, resident, visit.ID)
    s.Require().NoError(err)

    _, err = s.scans.Scan(s.ctx, security, ScanRequest{Token: visit.QRCode})
    s.ErrorIs(err, ErrTokenSuperseded)
    s.Len(s.rejections(visit.ID), 1)
}

func (s *ScanProcessorSuite) TestLateScanRejected() {
    _, _, security := testActors()
    visit := s.createVisit()

    // The token was issued with a one hour validity window.  Two
    // hours later a gate scan must fail as expired, and the refusal
    // must land in the visit's audit log.
    s.qr.clock = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }

    _, err := s.scans.Scan(s.ctx, security, ScanRequest{Token: visit.QRCode, Gate: "main"})
    s.ErrorIs(err, ErrTokenExpired)
    s.Len(s.rejections(visit.ID), 1)

    got, err := s.mem.Visit(s.ctx, visit.ID)
    s.Require().NoError(err)
    s.False(got.Entry, "an expired token must not open the gate")
}

func (s *ScanProcessorSuite) TestOfficerBuildingScope() {
    visit := s.createVisit()

    otherBuildingOfficer := Actor{ID: 33, Role: RoleSecurity, BuildingID: 2}
    _, err := s.scans.Scan(s.ctx, otherBuildingOfficer, ScanRequest{Token: visit.QRCode})
    s.ErrorIs(err, ErrUnauthorized)
    s.Len(s.rejections(visit.ID), 1)
}

// Two officers scanning the same QR at the same moment: exactly one
// entry is recorded, the loser is told the visit was already
// scanned.
func TestConcurrentEntryScansSingleWinner(t *testing.T) {
    mem, lifecycle, scans, _, _ := newTestStack(false)
    mem.AddBuilding("North Tower", 5)
    resident, _, security := testActors()

    visit, err := lifecycle.Create(context.Background(), resident, testVisitRequest("+15550001"))
    require.NoError(t, err)

    const scanners = 8
    var wg sync.WaitGroup
    results := make(chan error, scanners)
    for i := 0; i < scanners; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            _, err := scans.Scan(context.Background(), security, ScanRequest{Token: visit.QRCode})
            results <- err
        }()
    }
    wg.Wait()
    close(results)

    // The first winner records entry; a second winner may record the
    // exit.  Everyone else must be rejected with a conflict.
    accepted := 0
    for err := range results {
        if err == nil {
            accepted++
            continue
        }
        require.ErrorIs(t, err, ErrAlreadyCompleted)
    }
    require.LessOrEqual(t, accepted, 2)
    require.GreaterOrEqual(t, accepted, 1)

    got, err := lifecycle.Get(context.Background(), resident, visit.ID)
    require.NoError(t, err)
    require.True(t, got.Entry)
}
