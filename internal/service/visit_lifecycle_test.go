package service

import (
    "context"
    "testing"
    "time"

    "github.com/stretchr/testify/suite"

    "github.com/gatepass/backend/internal/model"
    "github.com/gatepass/backend/internal/store"
)

type VisitLifecycleSuite struct {
    suite.Suite
    ctx       context.Context
    mem       *store.Memory
    lifecycle *VisitLifecycle
    scans     *ScanProcessor
    ledger    *LicenseLedger
}

func TestVisitLifecycleSuite(t *testing.T) {
    suite.Run(t, new(VisitLifecycleSuite))
}

func (s *VisitLifecycleSuite) SetupTest() {
    s.ctx = context.Background()
    s.mem, s.lifecycle, s.scans, s.ledger, _ = newTestStack(false)
    s.mem.AddBuilding("North Tower", 2)
}

func (s *VisitLifecycleSuite) pool() *model.Building {
    b, err := s.ledger.Pool(s.ctx, 1)
    s.Require().NoError(err)
    return b
}

func (s *VisitLifecycleSuite) TestCreateHappyPath() {
    resident, _, _ := testActors()
    visit, err := s.lifecycle.Create(s.ctx, resident, testVisitRequest("+1 555-000-1", "+1 555 000 2"))
    s.Require().NoError(err)

    s.Equal(model.VisitConfirmed, visit.Status)
    s.NotEmpty(visit.QRCode)
    s.True(visit.LicenseConsumed)
    s.Equal(uint32(2), visit.CurrentVisitors)
    s.Equal(uint32(1), s.pool().UsedLicenses)

    members, err := s.lifecycle.Members(s.ctx, resident, visit.ID)
    s.Require().NoError(err)
    s.Len(members, 2)
    s.Equal("+15550001", members[0].Phone, "phones are stored normalized")

    logs, err := s.lifecycle.Logs(s.ctx, resident, visit.ID)
    s.Require().NoError(err)
    s.Require().Len(logs, 1)
    s.Equal(model.LogActionCreated, logs[0].Action)
}

func (s *VisitLifecycleSuite) TestCreateDeduplicatesPhones() {
    resident, _, _ := testActors()
    visit, err := s.lifecycle.Create(s.ctx, resident, testVisitRequest("+15550001", "001 555 0001"))
    s.Require().NoError(err)
    s.Equal(uint32(1), visit.CurrentVisitors, "same number in two formats is one visitor")
}

func (s *VisitLifecycleSuite) TestCreateValidation() {
    resident, _, _ := testActors()

    req := testVisitRequest()
    _, err := s.lifecycle.Create(s.ctx, resident, req)
    s.ErrorIs(err, ErrValidation)

    req = testVisitRequest("+15550001")
    req.ExpectedEnd = req.ExpectedStart.Add(-time.Hour)
    _, err = s.lifecycle.Create(s.ctx, resident, req)
    s.ErrorIs(err, ErrValidation)

    req = testVisitRequest("no digits here")
    _, err = s.lifecycle.Create(s.ctx, resident, req)
    s.ErrorIs(err, ErrValidation)

    req = testVisitRequest("+15550001", "+15550002")
    req.MaxVisitors = 1
    _, err = s.lifecycle.Create(s.ctx, resident, req)
    s.ErrorIs(err, ErrValidation)
}

func (s *VisitLifecycleSuite) TestCreateBuildingScope() {
    resident, _, _ := testActors()
    req := testVisitRequest("+15550001")
    req.BuildingID = 2
    _, err := s.lifecycle.Create(s.ctx, resident, req)
    s.ErrorIs(err, ErrUnauthorized)
}

func (s *VisitLifecycleSuite) TestCreateBlockedByBan() {
    resident, _, _ := testActors()
    s.mem.AddBan(model.VisitorBan{
        UserID: resident.ID, BuildingID: 1, VisitorPhone: "+15550001",
        Severity: model.BanSeverityHigh, IsActive: true,
    })

    _, err := s.lifecycle.Create(s.ctx, resident, testVisitRequest("+15550001"))
    s.ErrorIs(err, ErrBlockedVisitor)

    var blocked *BlockedVisitorError
    s.Require().ErrorAs(err, &blocked)
    s.Equal("+15550001", blocked.Phone)
    s.Len(blocked.Bans, 1)
    s.False(blocked.Unverified, "a real ban match is a verified block")

    // Nothing was allocated for the rejected visit.
    s.Equal(uint32(0), s.pool().UsedLicenses)
}

func (s *VisitLifecycleSuite) TestCreateRegistryOutageFailClosed() {
    resident, _, _ := testActors()

    // Same store for visits and licenses, but the ban registry is
    // down and the fail-closed policy is in force.
    gate := NewBanGate(failingBanStore{}, true)
    qr := NewQRCodec(s.mem, time.Hour)
    lifecycle := NewVisitLifecycle(s.mem, gate, s.ledger, qr, nil, 20)

    _, err := lifecycle.Create(s.ctx, resident, testVisitRequest("+15550001"))
    s.ErrorIs(err, ErrBlockedVisitor)

    var blocked *BlockedVisitorError
    s.Require().ErrorAs(err, &blocked)
    s.True(blocked.Unverified, "an outage refusal must not read as a ban match")
    s.Empty(blocked.Bans)
    s.Equal(uint32(0), s.pool().UsedLicenses)
}

func (s *VisitLifecycleSuite) TestCreateCapacityExhausted() {
    resident, _, _ := testActors()

    _, err := s.lifecycle.Create(s.ctx, resident, testVisitRequest("+15550001"))
    s.Require().NoError(err)
    _, err = s.lifecycle.Create(s.ctx, resident, testVisitRequest("+15550002"))
    s.Require().NoError(err)

    _, err = s.lifecycle.Create(s.ctx, resident, testVisitRequest("+15550003"))
    s.ErrorIs(err, ErrCapacityExceeded)
    s.Equal(uint32(2), s.pool().UsedLicenses)
}

func (s *VisitLifecycleSuite) TestSecurityVisitsSkipLicensePool() {
    _, _, security := testActors()
    visit, err := s.lifecycle.Create(s.ctx, security, testVisitRequest("+15550001"))
    s.Require().NoError(err)
    s.False(visit.LicenseConsumed)
    s.Equal(uint32(0), s.pool().UsedLicenses)
}

func (s *VisitLifecycleSuite) TestCancelReleasesLicense() {
    resident, _, _ := testActors()
    visit, err := s.lifecycle.Create(s.ctx, resident, testVisitRequest("+15550001"))
    s.Require().NoError(err)
    s.Equal(uint32(1), s.pool().UsedLicenses)

    cancelled, err := s.lifecycle.Cancel(s.ctx, resident, visit.ID)
    s.Require().NoError(err)
    s.Equal(model.VisitCancelled, cancelled.Status)
    s.Equal(uint32(0), s.pool().UsedLicenses)

    _, err = s.lifecycle.Cancel(s.ctx, resident, visit.ID)
    s.ErrorIs(err, ErrAlreadyTerminal)
    s.Equal(uint32(0), s.pool().UsedLicenses, "double cancel never double releases")
}

func (s *VisitLifecycleSuite) TestCancelFreesCapacityForNextHost() {
    // Single-license building: the second host is refused until the
    // first host cancels, then succeeds with the returned license.
    mem, lifecycle, _, ledger, _ := newTestStack(false)
    mem.AddBuilding("Annex", 1)
    hostA := Actor{ID: 11, Role: RoleResident, BuildingID: 1}
    hostB := Actor{ID: 12, Role: RoleResident, BuildingID: 1}

    first, err := lifecycle.Create(s.ctx, hostA, testVisitRequest("+15550001"))
    s.Require().NoError(err)

    _, err = lifecycle.Create(s.ctx, hostB, testVisitRequest("+15550002"))
    s.ErrorIs(err, ErrCapacityExceeded)

    _, err = lifecycle.Cancel(s.ctx, hostA, first.ID)
    s.Require().NoError(err)

    second, err := lifecycle.Create(s.ctx, hostB, testVisitRequest("+15550002"))
    s.Require().NoError(err)
    s.Equal(model.VisitConfirmed, second.Status)

    pool, err := ledger.Pool(s.ctx, 1)
    s.Require().NoError(err)
    s.Equal(uint32(1), pool.UsedLicenses)
}

func (s *VisitLifecycleSuite) TestCancelAuthorization() {
    resident, admin, security := testActors()
    visit, err := s.lifecycle.Create(s.ctx, resident, testVisitRequest("+15550001"))
    s.Require().NoError(err)

    _, err = s.lifecycle.Cancel(s.ctx, security, visit.ID)
    s.ErrorIs(err, ErrUnauthorized, "security may read but not cancel someone else's visit")

    _, err = s.lifecycle.Cancel(s.ctx, admin, visit.ID)
    s.NoError(err, "building admins may cancel any visit in their building")
}

func (s *VisitLifecycleSuite) TestGetScoping() {
    resident, _, security := testActors()
    visit, err := s.lifecycle.Create(s.ctx, resident, testVisitRequest("+15550001"))
    s.Require().NoError(err)

    _, err = s.lifecycle.Get(s.ctx, security, visit.ID)
    s.NoError(err)

    otherResident := Actor{ID: 7, Role: RoleResident, BuildingID: 1}
    _, err = s.lifecycle.Get(s.ctx, otherResident, visit.ID)
    s.ErrorIs(err, ErrUnauthorized)

    otherBuildingAdmin := Actor{ID: 8, Role: RoleAdmin, BuildingID: 2}
    _, err = s.lifecycle.Get(s.ctx, otherBuildingAdmin, visit.ID)
    s.ErrorIs(err, ErrUnauthorized)

    superadmin := Actor{ID: 99, Role: RoleSuperAdmin}
    _, err = s.lifecycle.Get(s.ctx, superadmin, visit.ID)
    s.NoError(err)
}

func (s *VisitLifecycleSuite) TestExpireDue() {
    resident, _, _ := testActors()

    // One visit already past its window, one still open.
    pastReq := testVisitRequest("+15550001")
    pastReq.ExpectedStart = time.Now().UTC().Add(time.Minute)
    pastReq.ExpectedEnd = time.Now().UTC().Add(2 * time.Minute)
    stale, err := s.lifecycle.Create(s.ctx, resident, pastReq)
    s.Require().NoError(err)

    fresh, err := s.lifecycle.Create(s.ctx, resident, testVisitRequest("+15550002"))
    s.Require().NoError(err)

    // Age the stale visit past its expected end.
    s.lifecycle.clock = func() time.Time { return time.Now().UTC().Add(10 * time.Minute) }

    n, err := s.lifecycle.ExpireDue(s.ctx, 100)
    s.Require().NoError(err)
    s.Equal(1, n)

    got, err := s.lifecycle.Get(s.ctx, resident, stale.ID)
    s.Require().NoError(err)
    s.Equal(model.VisitExpired, got.Status)
    s.Equal(uint32(1), s.pool().UsedLicenses, "expired visit returned its license")

    got, err = s.lifecycle.Get(s.ctx, resident, fresh.ID)
    s.Require().NoError(err)
    s.Equal(model.VisitConfirmed, got.Status)

    // Idempotent: a second sweep finds nothing.
    n, err = s.lifecycle.ExpireDue(s.ctx, 100)
    s.Require().NoError(err)
    s.Equal(0, n)
}

func (s *VisitLifecycleSuite) TestEnteredVisitIsNotExpired() {
    resident, _, security := testActors()

    req := testVisitRequest("+15550001")
    req.ExpectedStart = time.Now().UTC().Add(time.Minute)
    req.ExpectedEnd = time.Now().UTC().Add(2 * time.Minute)
    visit, err := s.lifecycle.Create(s.ctx, resident, req)
    s.Require().NoError(err)

    _, err = s.scans.Scan(s.ctx, security, ScanRequest{Token: visit.QRCode, Gate: "main"})
    s.Require().NoError(err)

    s.lifecycle.clock = func() time.Time { return time.Now().UTC().Add(10 * time.Minute) }
    n, err := s.lifecycle.ExpireDue(s.ctx, 100)
    s.Require().NoError(err)
    s.Equal(0, n, "a visit with an entry scan never expires")

    got, err := s.lifecycle.Get(s.ctx, resident, visit.ID)
    s.Require().NoError(err)
    s.Equal(model.VisitActive, got.Status)
}

func (s *VisitLifecycleSuite) TestReissueAuthorization() {
    resident, _, security := testActors()
    visit, err := s.lifecycle.Create(s.ctx, resident, testVisitRequest("+15550001"))
    s.Require().NoError(err)

    _, _, err = s.lifecycle.ReissueQR(s.ctx, security, visit.ID)
    s.ErrorIs(err, ErrUnauthorized)

    token, _, err := s.lifecycle.ReissueQR(s.ctx, resident, visit.ID)
    s.Require().NoError(err)
    s.NotEqual(visit.QRCode, token)
}
