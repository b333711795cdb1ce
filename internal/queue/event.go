// Package queue defines message payloads exchanged over the message broker.
package queue

// Visit event types published on the visit.events queue after each
// accepted lifecycle transition.
const (
    EventVisitCreated   = "visit.created"
    EventVisitEntry     = "visit.entry"
    EventVisitExit      = "visit.exit"
    EventVisitCancelled = "visit.cancelled"
    EventVisitExpired   = "visit.expired"
)

// VisitEvent is published after an accepted lifecycle transition.
// It contains enough information for downstream consumers (push
// notifications, dashboards) to act without querying the primary
// database.  Delivery is fire-and-forget: a publish failure never
// rolls back the transition it describes.
type VisitEvent struct {
    Type          string   `json:"type"`
    VisitID       uint64   `json:"visit_id"`
    BuildingID    uint64   `json:"building_id"`
    HostID        uint64   `json:"host_id"`
    OfficerID     uint64   `json:"officer_id,omitempty"`
    Title         string   `json:"title,omitempty"`
    Gate          string   `json:"gate,omitempty"`
    Location      string   `json:"location,omitempty"`
    VisitorPhones []string `json:"visitor_phones,omitempty"`
    OccurredAt    string   `json:"occurred_at"`
}
