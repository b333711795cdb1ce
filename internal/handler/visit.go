package handler

import (
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/gatepass/backend/internal/model"
    "github.com/gatepass/backend/internal/service"
)

// VisitHandler exposes visit booking and lifecycle endpoints.
type VisitHandler struct {
    Lifecycle *service.VisitLifecycle
}

func NewVisitHandler(l *service.VisitLifecycle) *VisitHandler {
    return &VisitHandler{Lifecycle: l}
}

// ----- response DTOs -----

// visitView is the JSON shape of a visit.  The QR code is included
// only for the host (gate officers scan, they never need to read the
// token back).
type visitView struct {
    ID              uint64     `json:"id"`
    BuildingID      uint64     `json:"building_id"`
    HostID          uint64     `json:"host_id"`
    Title           string     `json:"title"`
    Status          string     `json:"status"`
    Entry           bool       `json:"entry"`
    Exit            bool       `json:"exit"`
    QRCode          string     `json:"qr_code,omitempty"`
    QRExpiresAt     *time.Time `json:"qr_expires_at,omitempty"`
    ExpectedStart   time.Time  `json:"expected_start"`
    ExpectedEnd     time.Time  `json:"expected_end"`
    MaxVisitors     uint32     `json:"max_visitors"`
    CurrentVisitors uint32     `json:"current_visitors"`
    CreatedAt       time.Time  `json:"created_at"`
}

func viewOf(v *model.Visit, includeQR bool) visitView {
    out := visitView{
        ID:              v.ID,
        BuildingID:      v.BuildingID,
        HostID:          v.HostID,
        Title:           v.Title,
        Status:          v.Status,
        Entry:           v.Entry,
        Exit:            v.Exit,
        ExpectedStart:   v.ExpectedStart,
        ExpectedEnd:     v.ExpectedEnd,
        MaxVisitors:     v.MaxVisitors,
        CurrentVisitors: v.CurrentVisitors,
        CreatedAt:       v.CreatedAt,
    }
    if includeQR {
        out.QRCode = v.QRCode
        exp := v.QRExpiresAt
        out.QRExpiresAt = &exp
    }
    return out
}

func viewsOf(vs []model.Visit, includeQR func(model.Visit) bool) []visitView {
    out := make([]visitView, 0, len(vs))
    for i := range vs {
        out = append(out, viewOf(&vs[i], includeQR(vs[i])))
    }
    return out
}

type logView struct {
    ID        uint64    `json:"id"`
    Action    string    `json:"action"`
    OfficerID uint64    `json:"officer_id,omitempty"`
    Gate      string    `json:"gate,omitempty"`
    Location  string    `json:"location,omitempty"`
    Detail    string    `json:"detail,omitempty"`
    At        time.Time `json:"at"`
}

// Create books a new visit for the authenticated host.
// POST /v1/visits
func (h *VisitHandler) Create(c echo.Context) error {
    actor, ok := actorFrom(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var req service.CreateVisitRequest
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    if req.BuildingID == 0 {
        req.BuildingID = actor.BuildingID
    }
    visit, err := h.Lifecycle.Create(c.Request().Context(), actor, req)
    if err != nil {
        return serviceError(c, err)
    }
    return c.JSON(http.StatusCreated, viewOf(visit, true))
}

// Get returns one visit.
// GET /v1/visits/:id
func (h *VisitHandler) Get(c echo.Context) error {
    actor, ok := actorFrom(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    id, err := pathID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    visit, err := h.Lifecycle.Get(c.Request().Context(), actor, id)
    if err != nil {
        return serviceError(c, err)
    }
    return c.JSON(http.StatusOK, viewOf(visit, visit.HostID == actor.ID))
}

// ListMine returns the visits hosted by the caller, newest first.
// GET /v1/visits
func (h *VisitHandler) ListMine(c echo.Context) error {
    actor, ok := actorFrom(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    visits, err := h.Lifecycle.VisitsForHost(c.Request().Context(), actor)
    if err != nil {
        return serviceError(c, err)
    }
    return c.JSON(http.StatusOK, viewsOf(visits, func(model.Visit) bool { return true }))
}

// ListBuilding returns a building's visits for managers and security.
// GET /v1/buildings/:id/visits
func (h *VisitHandler) ListBuilding(c echo.Context) error {
    actor, ok := actorFrom(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    buildingID, err := pathID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    visits, err := h.Lifecycle.VisitsForBuilding(c.Request().Context(), actor, buildingID)
    if err != nil {
        return serviceError(c, err)
    }
    return c.JSON(http.StatusOK, viewsOf(visits, func(model.Visit) bool { return false }))
}

// Cancel cancels a visit and returns its license to the pool.
// DELETE /v1/visits/:id
func (h *VisitHandler) Cancel(c echo.Context) error {
    actor, ok := actorFrom(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    id, err := pathID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    visit, err := h.Lifecycle.Cancel(c.Request().Context(), actor, id)
    if err != nil {
        return serviceError(c, err)
    }
    return c.JSON(http.StatusOK, viewOf(visit, false))
}

// Reissue replaces the visit's QR token and returns the new one.
// POST /v1/visits/:id/qr
func (h *VisitHandler) Reissue(c echo.Context) error {
    actor, ok := actorFrom(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    id, err := pathID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    token, expires, err := h.Lifecycle.ReissueQR(c.Request().Context(), actor, id)
    if err != nil {
        return serviceError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"qr_code": token, "qr_expires_at": expires})
}

// Members lists the visitors attached to a visit.
// GET /v1/visits/:id/visitors
func (h *VisitHandler) MembersOf(c echo.Context) error {
    actor, ok := actorFrom(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    id, err := pathID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    members, err := h.Lifecycle.Members(c.Request().Context(), actor, id)
    if err != nil {
        return serviceError(c, err)
    }
    return c.JSON(http.StatusOK, members)
}

// Logs returns the audit trail of a visit.
// GET /v1/visits/:id/logs
func (h *VisitHandler) Logs(c echo.Context) error {
    actor, ok := actorFrom(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    id, err := pathID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    logs, err := h.Lifecycle.Logs(c.Request().Context(), actor, id)
    if err != nil {
        return serviceError(c, err)
    }
    views := make([]logView, 0, len(logs))
    for _, l := range logs {
        views = append(views, logView{
            ID:        l.ID,
            Action:    l.Action,
            OfficerID: l.OfficerID,
            Gate:      l.Gate,
            Location:  l.Location,
            Detail:    l.Detail,
            At:        l.At,
        })
    }
    return c.JSON(http.StatusOK, views)
}
