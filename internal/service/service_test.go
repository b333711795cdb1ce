package service

import (
    "time"

    "github.com/gatepass/backend/internal/store"
)

// newTestStack wires the services over a fresh in-memory store with
// a one-hour QR TTL and no notifier.
func newTestStack(failClosed bool) (*store.Memory, *VisitLifecycle, *ScanProcessor, *LicenseLedger, *QRCodec) {
    mem := store.NewMemory()
    gate := NewBanGate(mem, failClosed)
    ledger := NewLicenseLedger(mem)
    qr := NewQRCodec(mem, time.Hour)
    lifecycle := NewVisitLifecycle(mem, gate, ledger, qr, nil, 20)
    scans := NewScanProcessor(mem, qr, ledger, nil)
    return mem, lifecycle, scans, ledger, qr
}

func testActors() (resident, admin, security Actor) {
    resident = Actor{ID: 1, Role: RoleResident, BuildingID: 1}
    admin = Actor{ID: 2, Role: RoleAdmin, BuildingID: 1}
    security = Actor{ID: 9, Role: RoleSecurity, BuildingID: 1}
    return
}

func testVisitRequest(phones ...string) CreateVisitRequest {
    visitors := make([]VisitorInfo, 0, len(phones))
    for i, p := range phones {
        visitors = append(visitors, VisitorInfo{Phone: p, Name: "Visitor " + string(rune('A'+i))})
    }
    now := time.Now().UTC()
    return CreateVisitRequest{
        BuildingID:    1,
        Title:         "Maintenance",
        ExpectedStart: now.Add(30 * time.Minute),
        ExpectedEnd:   now.Add(4 * time.Hour),
        Confirmed:     true,
        Visitors:      visitors,
    }
}
