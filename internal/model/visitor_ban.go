package model

import "time"

// Ban severities.  Severity is informational; any active ban blocks
// regardless of severity.
const (
    BanSeverityLow    = "LOW"
    BanSeverityMedium = "MEDIUM"
    BanSeverityHigh   = "HIGH"
)

// VisitorBan is a resident-scoped block on a visitor phone number.
// At most one active ban may exist per (UserID, VisitorPhone) pair.
// A ban with ExpiresAt in the past is treated as inactive and must
// not block visit creation.  Lifting a ban flips IsActive to false;
// ban rows are never deleted.
//
// Fields:
//  ID           – primary key identifier.
//  UserID       – resident who issued the ban.
//  BuildingID   – building the issuing resident belongs to.
//  VisitorPhone – normalized phone number being blocked.
//  Severity     – one of the BanSeverity* constants.
//  Reason       – optional free-text reason.
//  IsActive     – whether the ban is currently in force.
//  ExpiresAt    – optional automatic expiry (null = indefinite).
//  CreatedAt    – creation timestamp.
//  UpdatedAt    – last update timestamp.
type VisitorBan struct {
    ID           uint64     // visitor_bans.id
    UserID       uint64     // visitor_bans.user_id
    BuildingID   uint64     // visitor_bans.building_id
    VisitorPhone string     // visitor_bans.visitor_phone
    Severity     string     // visitor_bans.severity
    Reason       *string    // visitor_bans.reason (nullable)
    IsActive     bool       // visitor_bans.is_active
    ExpiresAt    *time.Time // visitor_bans.expires_at (nullable)
    CreatedAt    time.Time  // visitor_bans.created_at
    UpdatedAt    time.Time  // visitor_bans.updated_at
}

// InForce reports whether the ban blocks at the given instant: it
// must be active and not past its expiry.
func (b VisitorBan) InForce(now time.Time) bool {
    if !b.IsActive {
        return false
    }
    if b.ExpiresAt != nil && !b.ExpiresAt.After(now) {
        return false
    }
    return true
}
