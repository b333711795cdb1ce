package service

import "strings"

// Role is the capability tag carried by every authenticated actor.
// Capability checks live on this type and nowhere else, so a
// handler can never re-invent the gate check with a stray string
// comparison.
type Role string

const (
    RoleResident   Role = "RESIDENT"
    RoleAdmin      Role = "ADMIN"
    RoleSecurity   Role = "SECURITY"
    RoleSuperAdmin Role = "SUPERADMIN"
)

// ParseRole maps a stored or claimed role string to a Role.  The
// second return is false for anything unknown.
func ParseRole(s string) (Role, bool) {
    switch Role(strings.ToUpper(strings.TrimSpace(s))) {
    case RoleResident:
        return RoleResident, true
    case RoleAdmin:
        return RoleAdmin, true
    case RoleSecurity:
        return RoleSecurity, true
    case RoleSuperAdmin:
        return RoleSuperAdmin, true
    }
    return "", false
}

// CanScan reports whether the role may operate a gate terminal.
func (r Role) CanScan() bool {
    return r == RoleSecurity || r == RoleSuperAdmin
}

// ConsumesLicense reports whether visits hosted by this role draw
// from the building's license pool.
func (r Role) ConsumesLicense() bool {
    return r == RoleResident || r == RoleAdmin
}

// CanManageBuilding reports whether the role may act on visits and
// pools it does not own.
func (r Role) CanManageBuilding() bool {
    return r == RoleAdmin || r == RoleSuperAdmin
}

// Actor identifies the authenticated caller of an operation: who
// they are, what they may do, and which building they belong to.
// SUPERADMIN actors have BuildingID 0 and span buildings.
type Actor struct {
    ID         uint64
    Role       Role
    BuildingID uint64
}

// sameBuilding reports whether the actor is scoped to the building,
// treating SUPERADMIN as global.
func (a Actor) sameBuilding(buildingID uint64) bool {
    return a.Role == RoleSuperAdmin || a.BuildingID == buildingID
}
