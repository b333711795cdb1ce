package model

import "time"

// Visitor is a global identity keyed by normalized phone number.
// Visitor rows are created lazily the first time a phone number is
// referenced by a visit and are never deleted afterwards; bans and
// visit membership rows reference them by phone or ID.
//
// Fields:
//  ID        – primary key identifier.
//  Phone     – normalized phone number, unique across the system.
//  Name      – visitor display name as supplied by the inviting host.
//  Email     – optional contact email.
//  Company   – optional company affiliation.
//  CreatedAt – timestamp of first reference.
//  UpdatedAt – timestamp of last update.
type Visitor struct {
    ID        uint64    // visitors.id
    Phone     string    // visitors.phone (unique, normalized)
    Name      string    // visitors.name
    Email     *string   // visitors.email (nullable)
    Company   *string   // visitors.company (nullable)
    CreatedAt time.Time // visitors.created_at
    UpdatedAt time.Time // visitors.updated_at
}
