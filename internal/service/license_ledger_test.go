package service

import (
    "context"
    "sync"
    "testing"

    "github.com/stretchr/testify/require"
    "github.com/stretchr/testify/suite"
)

type LicenseLedgerSuite struct {
    suite.Suite
    ctx context.Context
}

func TestLicenseLedgerSuite(t *testing.T) {
    suite.Run(t, new(LicenseLedgerSuite))
}

func (s *LicenseLedgerSuite) SetupTest() {
    s.ctx = context.Background()
}

func (s *LicenseLedgerSuite) TestAllocateAndRelease() {
    mem, _, _, ledger, _ := newTestStack(false)
    mem.AddBuilding("North Tower", 3)

    alloc, err := ledger.Allocate(s.ctx, 1, 2)
    s.Require().NoError(err)
    s.True(alloc.OK)
    s.Equal(uint32(1), alloc.Remaining)

    alloc, err = ledger.Allocate(s.ctx, 1, 2)
    s.Require().NoError(err)
    s.False(alloc.OK, "pool of 3 cannot hold 2+2")
    s.Equal(uint32(1), alloc.Remaining)

    remaining, err := ledger.Release(s.ctx, 1, 1)
    s.Require().NoError(err)
    s.Equal(uint32(2), remaining)
}

func (s *LicenseLedgerSuite) TestReleaseClampsAtZero() {
    mem, _, _, ledger, _ := newTestStack(false)
    mem.AddBuilding("North Tower", 3)

    remaining, err := ledger.Release(s.ctx, 1, 5)
    s.Require().NoError(err)
    s.Equal(uint32(3), remaining, "releasing from an empty pool must not underflow")
}

func (s *LicenseLedgerSuite) TestUnknownBuilding() {
    _, _, _, ledger, _ := newTestStack(false)
    _, err := ledger.Allocate(s.ctx, 42, 1)
    s.ErrorIs(err, ErrNotFound)
}

// Ten concurrent allocators against a pool of three: exactly three
// may win, no matter the interleaving.
func TestLicenseLedgerConcurrentAllocation(t *testing.T) {
    mem, _, _, ledger, _ := newTestStack(false)
    mem.AddBuilding("North Tower", 3)

    const attempts = 10
    var wg sync.WaitGroup
    wins := make(chan bool, attempts)
    errs := make(chan error, attempts)
    for i := 0; i < attempts; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            alloc, err := ledger.Allocate(context.Background(), 1, 1)
            if err != nil {
                errs <- err
                return
            }
            wins <- alloc.OK
        }()
    }
    wg.Wait()
    close(wins)
    close(errs)

    for err := range errs {
        require.NoError(t, err)
    }
    won := 0
    for ok := range wins {
        if ok {
            won++
        }
    }
    require.Equal(t, 3, won)

    b, err := ledger.Pool(context.Background(), 1)
    require.NoError(t, err)
    require.Equal(t, uint32(3), b.UsedLicenses)
    require.Equal(t, uint32(0), b.RemainingLicenses())
}

func (s *LicenseLedgerSuite) TestReleaseForVisitExactlyOnce() {
    mem, lifecycle, _, ledger, _ := newTestStack(false)
    mem.AddBuilding("North Tower", 3)
    resident, _, _ := testActors()

    visit, err := lifecycle.Create(s.ctx, resident, testVisitRequest("+15550001"))
    s.Require().NoError(err)

    b, err := ledger.Pool(s.ctx, 1)
    s.Require().NoError(err)
    s.Equal(uint32(1), b.UsedLicenses)

    // Every terminal path may call this; only the first release
    // performs the decrement.
    s.Require().NoError(ledger.ReleaseForVisit(s.ctx, visit.ID))
    s.Require().NoError(ledger.ReleaseForVisit(s.ctx, visit.ID))
    s.Require().NoError(ledger.ReleaseForVisit(s.ctx, visit.ID))

    b, err = ledger.Pool(s.ctx, 1)
    s.Require().NoError(err)
    s.Equal(uint32(0), b.UsedLicenses)
}
