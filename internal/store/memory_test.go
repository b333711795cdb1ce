package store

import (
    "context"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/require"

    "github.com/gatepass/backend/internal/model"
)

func seedVisit(t *testing.T, m *Memory, token string) *model.Visit {
    t.Helper()
    now := time.Now().UTC()
    v, err := m.CreateVisit(context.Background(), CreateVisitInput{
        BuildingID:     1,
        HostID:         1,
        Title:          "Delivery",
        Status:         model.VisitConfirmed,
        ExpectedStart:  now,
        ExpectedEnd:    now.Add(2 * time.Hour),
        MaxVisitors:    1,
        Visitors:       []VisitorInput{{Phone: "+15550001", Name: "Courier"}},
        ConsumeLicense: true,
        QRCode:         token,
        QRExpiresAt:    now.Add(2 * time.Hour),
    })
    require.NoError(t, err)
    return v
}

func TestMemoryAllocateRespectsCapacityUnderContention(t *testing.T) {
    m := NewMemory()
    m.AddBuilding("North Tower", 4)

    const attempts = 32
    var wg sync.WaitGroup
    wins := make(chan bool, attempts)
    errs := make(chan error, attempts)
    for i := 0; i < attempts; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            _, ok, err := m.Allocate(context.Background(), 1, 1)
            if err != nil {
                errs <- err
                return
            }
            wins <- ok
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
    require.Equal(t, 4, won)

    b, err := m.Building(context.Background(), 1)
    require.NoError(t, err)
    require.Equal(t, uint32(4), b.UsedLicenses)
}

func TestMemoryApplyEntrySingleWinner(t *testing.T) {
    m := NewMemory()
    m.AddBuilding("North Tower", 4)
    v := seedVisit(t, m, "tok-entry")

    const racers = 16
    var wg sync.WaitGroup
    wins := make(chan bool, racers)
    errs := make(chan error, racers)
    for i := 0; i < racers; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            ok, err := m.ApplyEntry(context.Background(), v.ID, model.VisitLog{
                VisitID: v.ID, Action: model.LogActionEntry, At: time.Now().UTC(),
            })
            if err != nil {
                errs <- err
                return
            }
            wins <- ok
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
    require.Equal(t, 1, won)

    got, err := m.Visit(context.Background(), v.ID)
    require.NoError(t, err)
    require.True(t, got.Entry)
    require.Equal(t, model.VisitActive, got.Status)

    logs, err := m.LogsByVisit(context.Background(), v.ID)
    require.NoError(t, err)
    entries := 0
    for _, l := range logs {
        if l.Action == model.LogActionEntry {
            entries++
        }
    }
    require.Equal(t, 1, entries, "losers must not append audit entries")
}

func TestMemoryExitRequiresEntry(t *testing.T) {
    m := NewMemory()
    m.AddBuilding("North Tower", 4)
    v := seedVisit(t, m, "tok-exit")

    ok, err := m.ApplyExit(context.Background(), v.ID, model.VisitLog{VisitID: v.ID, Action: model.LogActionExit})
    require.NoError(t, err)
    require.False(t, ok, "exit before entry must not apply")
}

func TestMemoryExpireGuardedAgainstEntry(t *testing.T) {
    m := NewMemory()
    m.AddBuilding("North Tower", 4)
    v := seedVisit(t, m, "tok-expire")

    ok, err := m.ApplyEntry(context.Background(), v.ID, model.VisitLog{VisitID: v.ID, Action: model.LogActionEntry})
    require.NoError(t, err)
    require.True(t, ok)

    ok, err = m.ExpireVisit(context.Background(), v.ID, model.VisitLog{VisitID: v.ID, Action: model.LogActionExpired})
    require.NoError(t, err)
    require.False(t, ok, "an entered visit is never expired")
}

func TestMemoryCreateVisitRejectsBannedPhoneAtomically(t *testing.T) {
    m := NewMemory()
    m.AddBuilding("North Tower", 4)
    m.AddBan(model.VisitorBan{
        UserID: 1, BuildingID: 1, VisitorPhone: "+15550001",
        Severity: model.BanSeverityHigh, IsActive: true,
    })

    now := time.Now().UTC()
    _, err := m.CreateVisit(context.Background(), CreateVisitInput{
        BuildingID:     1,
        HostID:         1,
        Status:         model.VisitPending,
        ExpectedStart:  now,
        ExpectedEnd:    now.Add(time.Hour),
        MaxVisitors:    2,
        Visitors:       []VisitorInput{{Phone: "+15550002"}, {Phone: "+15550001"}},
        ConsumeLicense: true,
        QRCode:         "tok-banned",
        QRExpiresAt:    now.Add(time.Hour),
    })
    var banned *BannedError
    require.ErrorAs(t, err, &banned)
    require.Equal(t, "+15550001", banned.Phone)

    // The rejection left nothing behind: no license draw, no token.
    b, berr := m.Building(context.Background(), 1)
    require.NoError(t, berr)
    require.Equal(t, uint32(0), b.UsedLicenses)
    _, _, verr := m.VisitByToken(context.Background(), "tok-banned")
    require.ErrorIs(t, verr, ErrNotFound)
}

func TestMemoryTokenSupersede(t *testing.T) {
    m := NewMemory()
    m.AddBuilding("North Tower", 4)
    v := seedVisit(t, m, "tok-old")

    require.NoError(t, m.ReplaceToken(context.Background(), v.ID, "tok-new", time.Now().UTC().Add(time.Hour)))

    _, state, err := m.VisitByToken(context.Background(), "tok-old")
    require.NoError(t, err)
    require.Equal(t, TokenSuperseded, state)

    got, state, err := m.VisitByToken(context.Background(), "tok-new")
    require.NoError(t, err)
    require.Equal(t, TokenCurrent, state)
    require.Equal(t, v.ID, got.ID)
}

func TestMemoryReleaseVisitLicenseIdempotent(t *testing.T) {
    m := NewMemory()
    m.AddBuilding("North Tower", 4)
    v := seedVisit(t, m, "tok-release")

    released, err := m.ReleaseVisitLicense(context.Background(), v.ID)
    require.NoError(t, err)
    require.True(t, released)

    released, err = m.ReleaseVisitLicense(context.Background(), v.ID)
    require.NoError(t, err)
    require.False(t, released)

    b, err := m.Building(context.Background(), 1)
    require.NoError(t, err)
    require.Equal(t, uint32(0), b.UsedLicenses)
}
