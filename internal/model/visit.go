package model

import "time"

// Visit statuses.  A visit moves through the state machine
//
//   PENDING --(confirm)--> CONFIRMED
//   PENDING|CONFIRMED --(cancel)--> CANCELLED
//   PENDING|CONFIRMED --(expected_end passes, no entry)--> EXPIRED
//   CONFIRMED --(entry scan)--> ACTIVE
//   ACTIVE --(exit scan)--> COMPLETED
//
// COMPLETED, CANCELLED and EXPIRED are terminal: once reached, no
// further scan may mutate the entry/exit flags.
const (
    VisitPending   = "PENDING"
    VisitConfirmed = "CONFIRMED"
    VisitActive    = "ACTIVE"
    VisitCompleted = "COMPLETED"
    VisitCancelled = "CANCELLED"
    VisitExpired   = "EXPIRED"
)

// Visit records a host's invitation for one or more visitors to a
// building within an expected time window.  The Entry and Exit flags
// are flipped exactly once each by gate scans; Exit implies Entry.
// The QR code is unique per visit, immutable once issued, and
// replaced (never edited) on re-issue.
//
// Fields:
//  ID              – primary key identifier.
//  BuildingID      – building being visited.
//  HostID          – user who created the invitation.
//  Title           – short purpose/title of the visit.
//  Status          – one of the Visit* constants above.
//  Entry           – whether an entry scan has been accepted.
//  Exit            – whether an exit scan has been accepted.
//  QRCode          – current opaque token presented at the gate.
//  QRExpiresAt     – validity window end for the token.
//  ExpectedStart   – expected arrival time.
//  ExpectedEnd     – expected departure time; expiry sweep deadline.
//  MaxVisitors     – cap on visitors attached to this visit.
//  CurrentVisitors – visitors currently attached.
//  LicenseConsumed – whether creation allocated a building license.
//  LicenseReleased – whether that allocation has been returned.
//  CreatedAt       – creation timestamp.
//  UpdatedAt       – last update timestamp.
type Visit struct {
    ID              uint64    // visits.id
    BuildingID      uint64    // visits.building_id
    HostID          uint64    // visits.host_id
    Title           string    // visits.title
    Status          string    // visits.status
    Entry           bool      // visits.entry
    Exit            bool      // visits.exit
    QRCode          string    // visits.qr_code (unique)
    QRExpiresAt     time.Time // visits.qr_expires_at
    ExpectedStart   time.Time // visits.expected_start
    ExpectedEnd     time.Time // visits.expected_end
    MaxVisitors     uint32    // visits.max_visitors
    CurrentVisitors uint32    // visits.current_visitors
    LicenseConsumed bool      // visits.license_consumed
    LicenseReleased bool      // visits.license_released
    CreatedAt       time.Time // visits.created_at
    UpdatedAt       time.Time // visits.updated_at
}

// IsTerminal reports whether the visit has reached a state from
// which no further transition is permitted.
func (v Visit) IsTerminal() bool {
    switch v.Status {
    case VisitCompleted, VisitCancelled, VisitExpired:
        return true
    }
    return false
}
