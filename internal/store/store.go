// Package store defines the persistence boundary consumed by the core
// services.  Two implementations exist: MySQL (production) composing
// the repository layer inside explicit transactions, and Memory, a
// mutex-guarded implementation with identical conditional-update
// semantics used by the service test suites.
package store

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/gatepass/backend/internal/model"
    "github.com/gatepass/backend/internal/repository"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// ErrNoCapacity is returned by CreateVisit when the building's
// license pool cannot satisfy the allocation.  It is an expected
// outcome under load, not a system fault.
var ErrNoCapacity = errors.New("license capacity exhausted")

// BannedError is returned by CreateVisit when the in-transaction
// ban re-check matches an active ban for one of the visitor phones.
// The registry is consulted again inside the creation transaction so
// a ban landing between the caller's pre-check and the commit still
// blocks the visit.
type BannedError struct {
    Phone string
}

func (e *BannedError) Error() string {
    return fmt.Sprintf("visitor %s is banned", e.Phone)
}

// TokenState classifies a QR token lookup.
type TokenState int

const (
    // TokenCurrent is the live token of the visit.
    TokenCurrent TokenState = iota
    // TokenSuperseded is an old token invalidated by a re-issue.
    TokenSuperseded
)

// VisitorInput identifies one invited visitor.  Phone must already
// be normalized.
type VisitorInput struct {
    Phone   string
    Name    string
    Email   *string
    Company *string
}

// CreateVisitInput carries everything the composite visit creation
// needs so the whole of it (visitor upserts, ban re-check, license
// allocation, visit + membership rows, token) commits or rolls back
// as one unit.
type CreateVisitInput struct {
    BuildingID     uint64
    HostID         uint64
    Title          string
    Status         string // PENDING or CONFIRMED
    ExpectedStart  time.Time
    ExpectedEnd    time.Time
    MaxVisitors    uint32
    Visitors       []VisitorInput
    ConsumeLicense bool
    QRCode         string
    QRExpiresAt    time.Time
}

// LicenseStore is the license pool surface consumed by the ledger.
type LicenseStore interface {
    // Allocate atomically increments used_licenses by n unless that
    // would exceed total_licenses.  ok=false means the pool is full.
    Allocate(ctx context.Context, buildingID uint64, n uint32) (remaining uint32, ok bool, err error)
    // Release decrements used_licenses by n, clamped at zero.
    Release(ctx context.Context, buildingID uint64, n uint32) (remaining uint32, err error)
    // ReleaseVisitLicense returns a visit's allocation to the pool at
    // most once, keyed on the per-visit released flag.  released
    // reports whether this call performed the release.
    ReleaseVisitLicense(ctx context.Context, visitID uint64) (released bool, err error)
    // Building reads the current pool counters.
    Building(ctx context.Context, id uint64) (*model.Building, error)
}

// BanStore is the read-only ban registry surface consumed by the
// ban gate.
type BanStore interface {
    ActiveBans(ctx context.Context, residentID uint64, phone string) ([]model.VisitorBan, error)
    DistinctBanningResidents(ctx context.Context, buildingID uint64, phone string) (int, error)
}

// VisitStore is the visit lifecycle surface.  Every transition is a
// conditional update: the bool result reports whether this caller
// won the transition, and a false return always means the visit was
// observed in a state that forbids it.
type VisitStore interface {
    CreateVisit(ctx context.Context, in CreateVisitInput) (*model.Visit, error)
    Visit(ctx context.Context, id uint64) (*model.Visit, error)
    VisitByToken(ctx context.Context, token string) (*model.Visit, TokenState, error)
    // ReplaceToken supersedes the visit's current token and installs
    // the new one atomically.
    ReplaceToken(ctx context.Context, visitID uint64, token string, expiresAt time.Time) error
    // ApplyEntry flips entry and promotes the visit to ACTIVE,
    // advancing member rows and appending the audit entry in the same
    // transaction.
    ApplyEntry(ctx context.Context, visitID uint64, entry model.VisitLog) (bool, error)
    // ApplyExit flips exit and promotes the visit to COMPLETED.
    ApplyExit(ctx context.Context, visitID uint64, entry model.VisitLog) (bool, error)
    // CancelVisit transitions to CANCELLED and cancels open members.
    CancelVisit(ctx context.Context, visitID uint64, entry model.VisitLog) (bool, error)
    // ExpireVisit transitions to EXPIRED, guarded against a racing
    // entry scan.
    ExpireVisit(ctx context.Context, visitID uint64, entry model.VisitLog) (bool, error)
    DueForExpiry(ctx context.Context, now time.Time, limit int) ([]model.Visit, error)
    VisitsByHost(ctx context.Context, hostID uint64) ([]model.Visit, error)
    VisitsByBuilding(ctx context.Context, buildingID uint64) ([]model.Visit, error)
    Members(ctx context.Context, visitID uint64) ([]repository.VisitMember, error)
    // AppendRejection records a refused scan attempt.  Rejections are
    // audit-only and never accompany a state change.
    AppendRejection(ctx context.Context, entry model.VisitLog) error
    LogsByVisit(ctx context.Context, visitID uint64) ([]model.VisitLog, error)
}
