package model

import "time"

// Log actions recorded against a visit.  ENTRY and EXIT are written
// only for accepted scans; REJECTED records a scan attempt that was
// refused (wrong role, bad token, or a state conflict).
const (
    LogActionCreated   = "CREATED"
    LogActionEntry     = "ENTRY"
    LogActionExit      = "EXIT"
    LogActionCancelled = "CANCELLED"
    LogActionExpired   = "EXPIRED"
    LogActionRejected  = "REJECTED"
)

// VisitLog is one row of the append-only audit trail.  Rows are
// never updated or deleted.
//
// Fields:
//  ID        – primary key identifier.
//  VisitID   – visit the entry belongs to.
//  Action    – one of the LogAction* constants.
//  OfficerID – user who triggered the action (0 for system sweeps).
//  Gate      – gate terminal identifier, if any.
//  Location  – free-text location of the terminal, if any.
//  Detail    – optional extra context (e.g. rejection reason).
//  At        – when the action occurred.
type VisitLog struct {
    ID        uint64    // visit_logs.id
    VisitID   uint64    // visit_logs.visit_id
    Action    string    // visit_logs.action
    OfficerID uint64    // visit_logs.officer_id
    Gate      string    // visit_logs.gate
    Location  string    // visit_logs.location
    Detail    string    // visit_logs.detail
    At        time.Time // visit_logs.at
}
