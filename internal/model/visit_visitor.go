package model

import "time"

// Per-visitor statuses within a visit.  These track the individual
// visitor while the visit-level Entry/Exit flags track the party as
// a whole.
const (
    VisitorExpected  = "EXPECTED"
    VisitorArrived   = "ARRIVED"
    VisitorEntered   = "ENTERED"
    VisitorExited    = "EXITED"
    VisitorCancelled = "CANCELLED"
)

// VisitVisitor joins a visit to one of its visitors.  The
// (VisitID, VisitorID) pair is unique; a visitor may appear at most
// once per visit.
//
// Fields:
//  ID         – primary key identifier.
//  VisitID    – visit this membership belongs to.
//  VisitorID  – global visitor identity.
//  Status     – one of the Visitor* constants above.
//  ArrivedAt  – when the visitor entered (null until entry).
//  DepartedAt – when the visitor exited (null until exit).
//  CreatedAt  – creation timestamp.
type VisitVisitor struct {
    ID         uint64     // visit_visitors.id
    VisitID    uint64     // visit_visitors.visit_id
    VisitorID  uint64     // visit_visitors.visitor_id
    Status     string     // visit_visitors.status
    ArrivedAt  *time.Time // visit_visitors.arrived_at (nullable)
    DepartedAt *time.Time // visit_visitors.departed_at (nullable)
    CreatedAt  time.Time  // visit_visitors.created_at
}
