package service

import (
    "context"
    "errors"

    "github.com/gatepass/backend/internal/model"
    "github.com/gatepass/backend/internal/store"
)

// Allocation reports the result of a license allocation attempt.
// OK=false means the pool could not satisfy the request; that is a
// normal outcome the caller converts into a capacity rejection.
type Allocation struct {
    OK        bool
    Remaining uint32
}

// LicenseLedger is the only mutation path for a building's license
// counters.  The atomicity lives in the store's conditional update;
// the ledger adds the per-visit exactly-once release discipline on
// top.  No in-process lock is involved: once more than one process
// runs, the storage-level conditional update is the synchronization
// primitive.
type LicenseLedger struct {
    store store.LicenseStore
}

// NewLicenseLedger constructs a ledger over the given store.
func NewLicenseLedger(st store.LicenseStore) *LicenseLedger {
    return &LicenseLedger{store: st}
}

// Allocate attempts to draw n licenses from the building's pool.
func (l *LicenseLedger) Allocate(ctx context.Context, buildingID uint64, n uint32) (Allocation, error) {
    remaining, ok, err := l.store.Allocate(ctx, buildingID, n)
    if err != nil {
        if errors.Is(err, store.ErrNotFound) {
            return Allocation{}, ErrNotFound
        }
        return Allocation{}, err
    }
    return Allocation{OK: ok, Remaining: remaining}, nil
}

// Release returns n licenses to the pool, clamped at zero.
func (l *LicenseLedger) Release(ctx context.Context, buildingID uint64, n uint32) (uint32, error) {
    remaining, err := l.store.Release(ctx, buildingID, n)
    if err != nil {
        if errors.Is(err, store.ErrNotFound) {
            return 0, ErrNotFound
        }
        return 0, err
    }
    return remaining, nil
}

// ReleaseForVisit returns a visit's allocation exactly once.  Safe
// to call from every terminal path (exit scan, cancellation, expiry
// sweep); only the first caller performs the decrement, keyed on the
// visit's released flag in the store.
func (l *LicenseLedger) ReleaseForVisit(ctx context.Context, visitID uint64) error {
    _, err := l.store.ReleaseVisitLicense(ctx, visitID)
    if err != nil && errors.Is(err, store.ErrNotFound) {
        return ErrNotFound
    }
    return err
}

// Pool reads the building's current license counters.
func (l *LicenseLedger) Pool(ctx context.Context, buildingID uint64) (*model.Building, error) {
    var b *model.Building
    err := retryRead(ctx, func() error {
        var e error
        b, e = l.store.Building(ctx, buildingID)
        return e
    })
    if err != nil {
        if errors.Is(err, store.ErrNotFound) {
            return nil, ErrNotFound
        }
        return nil, err
    }
    return b, nil
}
