package service

import (
    "context"
    "crypto/rand"
    "encoding/hex"
    "errors"
    "time"

    "github.com/gatepass/backend/internal/model"
    "github.com/gatepass/backend/internal/store"
)

// QRCodec issues and validates the opaque tokens presented at gate
// terminals.  A token carries no visit metadata: it is 32 bytes of
// crypto/rand encoded as hex, bound server-side to the visit and a
// validity window.  Re-issuing supersedes the prior token, and a
// superseded token reports as such instead of "not found".
type QRCodec struct {
    store store.VisitStore
    ttl   time.Duration
    clock func() time.Time
}

// NewQRCodec constructs a codec.  ttl caps the validity window; the
// effective expiry of a token is the sooner of issue+ttl and the
// visit's expected end.
func NewQRCodec(st store.VisitStore, ttl time.Duration) *QRCodec {
    return &QRCodec{store: st, ttl: ttl, clock: func() time.Time { return time.Now().UTC() }}
}

// Issue generates a fresh token and its expiry for a visit ending at
// expectedEnd.  The caller persists the pair (creation does so in
// the same transaction as the visit row).
func (c *QRCodec) Issue(expectedEnd time.Time) (string, time.Time, error) {
    token, err := randomToken(32)
    if err != nil {
        return "", time.Time{}, err
    }
    expires := c.clock().Add(c.ttl)
    if expectedEnd.Before(expires) {
        expires = expectedEnd
    }
    return token, expires.UTC(), nil
}

// Validate resolves a presented token to its visit.  Failures are
// distinct: ErrTokenInvalid for a token that never existed,
// ErrTokenSuperseded for one replaced by a re-issue, ErrTokenExpired
// for one past its window.  For the latter two the visit is still
// returned alongside the error so the caller can audit the refusal
// against the right visit.
func (c *QRCodec) Validate(ctx context.Context, token string) (*model.Visit, error) {
    var (
        visit *model.Visit
        state store.TokenState
    )
    err := retryRead(ctx, func() error {
        var e error
        visit, state, e = c.store.VisitByToken(ctx, token)
        return e
    })
    if err != nil {
        if errors.Is(err, store.ErrNotFound) {
            return nil, ErrTokenInvalid
        }
        return nil, err
    }
    if state == store.TokenSuperseded {
        return visit, ErrTokenSuperseded
    }
    if c.clock().After(visit.QRExpiresAt) {
        return visit, ErrTokenExpired
    }
    return visit, nil
}

// Reissue replaces a visit's token, invalidating the old one.  Not
// permitted once the visit is terminal.
func (c *QRCodec) Reissue(ctx context.Context, visit *model.Visit) (string, time.Time, error) {
    if visit.IsTerminal() {
        return "", time.Time{}, ErrAlreadyTerminal
    }
    token, expires, err := c.Issue(visit.ExpectedEnd)
    if err != nil {
        return "", time.Time{}, err
    }
    if err := c.store.ReplaceToken(ctx, visit.ID, token, expires); err != nil {
        if errors.Is(err, store.ErrNotFound) {
            return "", time.Time{}, ErrNotFound
        }
        return "", time.Time{}, err
    }
    return token, expires, nil
}

// randomToken returns n bytes of cryptographically secure random
// data encoded as hex (2n characters).
func randomToken(n int) (string, error) {
    b := make([]byte, n)
    if _, err := rand.Read(b); err != nil {
        return "", err
    }
    return hex.EncodeToString(b), nil
}
