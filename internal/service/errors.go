// Package service implements the visit access lifecycle: the ban
// gate, the license ledger, QR token issue/validation, the visit
// state machine and the gate scan processor.  Business rejections
// (blocked visitor, capacity exhausted, scan conflicts) are returned
// as typed sentinel errors, not panics or opaque failures, because
// callers must branch on them.
package service

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/gatepass/backend/internal/model"
    "github.com/gatepass/backend/internal/store"
)

// ErrValidation marks malformed input caught before any side effect.
var ErrValidation = errors.New("validation failed")

// ErrBlockedVisitor marks a creation rejected by the ban registry.
// The concrete error is a *BlockedVisitorError naming the phone.
var ErrBlockedVisitor = errors.New("visitor is blocked")

// ErrCapacityExceeded marks a creation rejected because the
// building's license pool is full.  Expected under load.
var ErrCapacityExceeded = errors.New("license capacity exceeded")

// ErrUnauthorized marks an actor whose role lacks the capability for
// the attempted operation.
var ErrUnauthorized = errors.New("unauthorized")

// ErrTokenInvalid marks a QR token that resolves to nothing.
var ErrTokenInvalid = errors.New("qr token invalid")

// ErrTokenExpired marks a QR token past its validity window.
var ErrTokenExpired = errors.New("qr token expired")

// ErrTokenSuperseded marks an old QR token invalidated by a
// re-issue; kept distinct from ErrTokenInvalid for diagnostics.
var ErrTokenSuperseded = errors.New("qr token superseded")

// ErrAlreadyCompleted marks a scan that lost a race or arrived after
// both entry and exit were recorded.
var ErrAlreadyCompleted = errors.New("visit already scanned")

// ErrAlreadyTerminal marks an operation against a visit that has
// reached COMPLETED, CANCELLED or EXPIRED.
var ErrAlreadyTerminal = errors.New("visit already terminal")

// ErrNotFound marks a missing visit, building or ban.
var ErrNotFound = errors.New("not found")

// BlockedVisitorError reports which visitor a rejected creation was
// blocked on, with the matching bans for display.  Unverified is set
// when the registry could not be read and the fail-closed policy
// blocked the creation; Bans is then empty and the caller must say
// the check could not be completed rather than claim a ban exists.
type BlockedVisitorError struct {
    Phone      string
    Bans       []model.VisitorBan
    Unverified bool
}

func (e *BlockedVisitorError) Error() string {
    if e.Unverified {
        return fmt.Sprintf("ban check for visitor %s could not be completed", e.Phone)
    }
    return fmt.Sprintf("visitor %s is blocked by an active ban", e.Phone)
}

func (e *BlockedVisitorError) Unwrap() error { return ErrBlockedVisitor }

// retryRead runs a read-only operation and retries it once after a
// short backoff on failure.  A definitive not-found is not retried.
// Writes are never routed through this helper; retrying a write
// could double-allocate.
func retryRead(ctx context.Context, fn func() error) error {
    err := fn()
    if err == nil || errors.Is(err, store.ErrNotFound) {
        return err
    }
    select {
    case <-ctx.Done():
        return err
    case <-time.After(100 * time.Millisecond):
    }
    return fn()
}
