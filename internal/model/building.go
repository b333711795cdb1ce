package model

import "time"

// Building represents a managed building with a finite pool of
// visitor licenses.  The license counters are the single most
// contended pair of columns in the schema: TotalLicenses is the
// capacity purchased for the building and UsedLicenses is the
// number currently consumed by open visits.  UsedLicenses must
// only ever be mutated through the conditional updates in
// BuildingRepo, never through a general update path.
//
// Fields:
//  ID            – primary key identifier.
//  Name          – display name of the building.
//  Address       – postal address (informational).
//  TotalLicenses – capacity of the visitor license pool.
//  UsedLicenses  – licenses currently allocated (0 ≤ used ≤ total).
//  CreatedAt     – timestamp of creation.
//  UpdatedAt     – timestamp of last update.
type Building struct {
    ID            uint64    // buildings.id
    Name          string    // buildings.name
    Address       string    // buildings.address
    TotalLicenses uint32    // buildings.total_licenses
    UsedLicenses  uint32    // buildings.used_licenses
    CreatedAt     time.Time // buildings.created_at
    UpdatedAt     time.Time // buildings.updated_at
}

// RemainingLicenses returns how many licenses are still available
// in the pool.  It never returns a negative value.
func (b Building) RemainingLicenses() uint32 {
    if b.UsedLicenses >= b.TotalLicenses {
        return 0
    }
    return b.TotalLicenses - b.UsedLicenses
}
