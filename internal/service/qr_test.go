package service

import (
    "context"
    "testing"
    "time"

    "github.com/stretchr/testify/suite"
)

type QRCodecSuite struct {
    suite.Suite
    ctx context.Context
}

func TestQRCodecSuite(t *testing.T) {
    suite.Run(t, new(QRCodecSuite))
}

func (s *QRCodecSuite) SetupTest() {
    s.ctx = context.Background()
}

func (s *QRCodecSuite) TestIssueCapsExpiryAtVisitEnd() {
    _, _, _, _, qr := newTestStack(false)

    end := time.Now().UTC().Add(10 * time.Minute) // sooner than the 1h TTL
    token, expires, err := qr.Issue(end)
    s.Require().NoError(err)
    s.Len(token, 64, "32 random bytes hex encoded")
    s.WithinDuration(end, expires, time.Second)

    farEnd := time.Now().UTC().Add(48 * time.Hour)
    _, expires, err = qr.Issue(farEnd)
    s.Require().NoError(err)
    s.WithinDuration(time.Now().UTC().Add(time.Hour), expires, 2*time.Second)
}

func (s *QRCodecSuite) TestValidateRoundTrip() {
    mem, lifecycle, _, _, qr := newTestStack(false)
    mem.AddBuilding("North Tower", 5)
    resident, _, _ := testActors()

    visit, err := lifecycle.Create(s.ctx, resident, testVisitRequest("+15550001"))
    s.Require().NoError(err)

    got, err := qr.Validate(s.ctx, visit.QRCode)
    s.Require().NoError(err)
    s.Equal(visit.ID, got.ID)
}

func (s *QRCodecSuite) TestValidateUnknownToken() {
    _, _, _, _, qr := newTestStack(false)
    _, err := qr.Validate(s.ctx, "deadbeef")
    s.ErrorIs(err, ErrTokenInvalid)
}

func (s *QRCodecSuite) TestReissueSupersedesOldToken() {
    mem, lifecycle, _, _, qr := newTestStack(false)
    mem.AddBuilding("North Tower", 5)
    resident, _, _ := testActors()

    visit, err := lifecycle.Create(s.ctx, resident, testVisitRequest("+15550001"))
    s.Require().NoError(err)
    oldToken := visit.QRCode

    newToken, _, err := qr.Reissue(s.ctx, visit)
    s.Require().NoError(err)
    s.NotEqual(oldToken, newToken)

    got, err := qr.Validate(s.ctx, newToken)
    s.Require().NoError(err)
    s.Equal(visit.ID, got.ID)

    got, err = qr.Validate(s.ctx, oldToken)
    s.ErrorIs(err, ErrTokenSuperseded)
    s.Require().NotNil(got, "superseded tokens still resolve for auditing")
    s.Equal(visit.ID, got.ID)
}

func (s *QRCodecSuite) TestValidateExpiredToken() {
    mem, lifecycle, _, _, qr := newTestStack(false)
    mem.AddBuilding("North Tower", 5)
    resident, _, _ := testActors()

    visit, err := lifecycle.Create(s.ctx, resident, testVisitRequest("+15550001"))
    s.Require().NoError(err)

    // Move the codec's clock past the visit's expected end; the
    // token expiry is capped there at issue time.
    qr.clock = func() time.Time { return time.Now().UTC().Add(5 * time.Hour) }
    got, err := qr.Validate(s.ctx, visit.QRCode)
    s.ErrorIs(err, ErrTokenExpired)
    s.NotNil(got)
}

func (s *QRCodecSuite) TestReissueRejectedOnTerminalVisit() {
    mem, lifecycle, _, _, qr := newTestStack(false)
    mem.AddBuilding("North Tower", 5)
    resident, _, _ := testActors()

    visit, err := lifecycle.Create(s.ctx, resident, testVisitRequest("+15550001"))
    s.Require().NoError(err)
    _, err = lifecycle.Cancel(s.ctx, resident, visit.ID)
    s.Require().NoError(err)

    cancelled, err := lifecycle.Get(s.ctx, resident, visit.ID)
    s.Require().NoError(err)
    _, _, err = qr.Reissue(s.ctx, cancelled)
    s.ErrorIs(err, ErrAlreadyTerminal)
}
