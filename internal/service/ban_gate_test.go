package service

import (
    "context"
    "errors"
    "testing"
    "time"

    "github.com/stretchr/testify/suite"

    "github.com/gatepass/backend/internal/model"
    "github.com/gatepass/backend/internal/store"
)

type BanGateSuite struct {
    suite.Suite
    ctx context.Context
    mem *store.Memory
}

func TestBanGateSuite(t *testing.T) {
    suite.Run(t, new(BanGateSuite))
}

func (s *BanGateSuite) SetupTest() {
    s.ctx = context.Background()
    s.mem = store.NewMemory()
    s.mem.AddBuilding("North Tower", 5)
}

func (s *BanGateSuite) TestNoBan() {
    gate := NewBanGate(s.mem, false)
    dec := gate.Check(s.ctx, 1, 1, "+15550001")
    s.False(dec.Blocked)
    s.False(dec.Unverified)
    s.Empty(dec.Bans)
}

func (s *BanGateSuite) TestActiveBanBlocks() {
    s.mem.AddBan(model.VisitorBan{
        UserID: 1, BuildingID: 1, VisitorPhone: "+15550001",
        Severity: model.BanSeverityHigh, IsActive: true,
    })
    gate := NewBanGate(s.mem, false)
    dec := gate.Check(s.ctx, 1, 1, "+15550001")
    s.True(dec.Blocked)
    s.Len(dec.Bans, 1)
    s.Equal(1, dec.BuildingBanCount)
}

func (s *BanGateSuite) TestBanScopedToResident() {
    s.mem.AddBan(model.VisitorBan{
        UserID: 2, BuildingID: 1, VisitorPhone: "+15550001",
        Severity: model.BanSeverityHigh, IsActive: true,
    })
    gate := NewBanGate(s.mem, false)
    dec := gate.Check(s.ctx, 1, 1, "+15550001")
    s.False(dec.Blocked, "another resident's ban must not block")
    s.Equal(1, dec.BuildingBanCount, "but it counts toward the building aggregate")
}

func (s *BanGateSuite) TestExpiredBanDoesNotBlock() {
    past := time.Now().UTC().Add(-time.Hour)
    s.mem.AddBan(model.VisitorBan{
        UserID: 1, BuildingID: 1, VisitorPhone: "+15550001",
        Severity: model.BanSeverityLow, IsActive: true, ExpiresAt: &past,
    })
    gate := NewBanGate(s.mem, false)
    dec := gate.Check(s.ctx, 1, 1, "+15550001")
    s.False(dec.Blocked)
    s.Empty(dec.Bans)
}

func (s *BanGateSuite) TestLiftedBanDoesNotBlock() {
    s.mem.AddBan(model.VisitorBan{
        UserID: 1, BuildingID: 1, VisitorPhone: "+15550001",
        Severity: model.BanSeverityMedium, IsActive: false,
    })
    gate := NewBanGate(s.mem, false)
    dec := gate.Check(s.ctx, 1, 1, "+15550001")
    s.False(dec.Blocked)
}

// failingBanStore always errors, simulating a registry outage.
type failingBanStore struct{}

func (failingBanStore) ActiveBans(context.Context, uint64, string) ([]model.VisitorBan, error) {
    return nil, errors.New("registry unavailable")
}

func (failingBanStore) DistinctBanningResidents(context.Context, uint64, string) (int, error) {
    return 0, errors.New("registry unavailable")
}

func (s *BanGateSuite) TestOutageFailOpen() {
    gate := NewBanGate(failingBanStore{}, false)
    dec := gate.Check(s.ctx, 1, 1, "+15550001")
    s.False(dec.Blocked)
    s.True(dec.Unverified)
}

func (s *BanGateSuite) TestOutageFailClosed() {
    gate := NewBanGate(failingBanStore{}, true)
    dec := gate.Check(s.ctx, 1, 1, "+15550001")
    s.True(dec.Blocked)
    s.True(dec.Unverified)
}
