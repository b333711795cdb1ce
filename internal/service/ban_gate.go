package service

import (
    "context"
    "log"

    "github.com/gatepass/backend/internal/model"
    "github.com/gatepass/backend/internal/store"
)

// BanDecision is the outcome of a ban check.  Unverified is set when
// the registry could not be read; Blocked then reflects the
// configured fail policy rather than an actual match, and callers
// should surface that distinction.
type BanDecision struct {
    Blocked          bool
    Unverified       bool
    Bans             []model.VisitorBan
    BuildingBanCount int
}

// BanGate answers whether a visitor phone is blocked for a resident
// before a visit may be created.  It is read-only; expired bans
// never block.  When the data layer fails, the lookup is logged and
// resolved by the fail policy instead of failing the caller: a ban
// outage must not take visit booking down, but with failClosed set
// it must not weaken the registry either.
type BanGate struct {
    store      store.BanStore
    failClosed bool
}

// NewBanGate constructs a BanGate.  failClosed selects the policy
// applied when the registry cannot be read: true blocks creation,
// false lets it proceed unverified.
func NewBanGate(st store.BanStore, failClosed bool) *BanGate {
    return &BanGate{store: st, failClosed: failClosed}
}

// Check looks up the resident's active bans for the phone plus the
// informational count of distinct residents in the building who
// banned the same number.  The read is retried once on failure.
func (g *BanGate) Check(ctx context.Context, buildingID, residentID uint64, phone string) BanDecision {
    var bans []model.VisitorBan
    err := retryRead(ctx, func() error {
        var e error
        bans, e = g.store.ActiveBans(ctx, residentID, phone)
        return e
    })
    if err != nil {
        log.Printf("ban-gate: lookup failed for resident=%d phone=%s: %v (fail_closed=%t)",
            residentID, phone, err, g.failClosed)
        return BanDecision{Blocked: g.failClosed, Unverified: true}
    }

    dec := BanDecision{Blocked: len(bans) > 0, Bans: bans}
    // The building-wide aggregate is informational only; a failure
    // here never changes the decision.
    if n, err := g.store.DistinctBanningResidents(ctx, buildingID, phone); err == nil {
        dec.BuildingBanCount = n
    } else {
        log.Printf("ban-gate: building ban count failed for building=%d phone=%s: %v", buildingID, phone, err)
    }
    return dec
}
