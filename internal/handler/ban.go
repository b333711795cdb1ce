package handler

import (
    "context"
    "database/sql"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/gatepass/backend/internal/model"
    "github.com/gatepass/backend/internal/repository"
    "github.com/gatepass/backend/internal/service"
    "github.com/gatepass/backend/internal/utils"
)

// BanHandler exposes the resident-facing ban registry endpoints.
// Bans are resident-scoped: a resident blocks a phone number for
// their own visits only, and only the issuing resident may lift the
// ban.  The registry is consulted by visit creation through the ban
// gate; these endpoints manage the entries themselves.
type BanHandler struct {
    Bans *repository.BanRepo
    Gate *service.BanGate
}

func NewBanHandler(bans *repository.BanRepo, gate *service.BanGate) *BanHandler {
    return &BanHandler{Bans: bans, Gate: gate}
}

// ----- DTOs -----

type createBanReq struct {
    Phone    string     `json:"phone"`
    Severity string     `json:"severity"`
    Reason   *string    `json:"reason,omitempty"`
    HoursTTL int        `json:"hours_ttl,omitempty"`
    ExpireAt *time.Time `json:"expires_at,omitempty"`
}

type banView struct {
    ID        uint64     `json:"id"`
    Phone     string     `json:"phone"`
    Severity  string     `json:"severity"`
    Reason    *string    `json:"reason,omitempty"`
    IsActive  bool       `json:"is_active"`
    ExpiresAt *time.Time `json:"expires_at,omitempty"`
    CreatedAt time.Time  `json:"created_at"`
}

func banViews(bans []model.VisitorBan) []banView {
    out := make([]banView, 0, len(bans))
    for _, b := range bans {
        out = append(out, banView{
            ID:        b.ID,
            Phone:     b.VisitorPhone,
            Severity:  b.Severity,
            Reason:    b.Reason,
            IsActive:  b.IsActive,
            ExpiresAt: b.ExpiresAt,
            CreatedAt: b.CreatedAt,
        })
    }
    return out
}

// Create issues a new ban on a phone number.
// POST /v1/bans
func (h *BanHandler) Create(c echo.Context) error {
    actor, ok := actorFrom(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var req createBanReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    phone := utils.NormalizePhone(req.Phone)
    if phone == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "phone required"})
    }
    severity := strings.ToUpper(strings.TrimSpace(req.Severity))
    switch severity {
    case model.BanSeverityLow, model.BanSeverityMedium, model.BanSeverityHigh:
    case "":
        severity = model.BanSeverityMedium
    default:
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown severity"})
    }
    expires := req.ExpireAt
    if expires == nil && req.HoursTTL > 0 {
        t := time.Now().UTC().Add(time.Duration(req.HoursTTL) * time.Hour)
        expires = &t
    }

    ban := &model.VisitorBan{
        UserID:       actor.ID,
        BuildingID:   actor.BuildingID,
        VisitorPhone: phone,
        Severity:     severity,
        Reason:       req.Reason,
        ExpiresAt:    expires,
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    if err := h.Bans.Create(ctx, ban); err != nil {
        if err == repository.ErrConflict {
            return c.JSON(http.StatusConflict, echo.Map{"error": "active ban already exists for this phone"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create ban failed"})
    }
    return c.JSON(http.StatusCreated, banViews([]model.VisitorBan{*ban})[0])
}

// List returns all bans the caller has issued, active or lifted.
// GET /v1/bans
func (h *BanHandler) List(c echo.Context) error {
    actor, ok := actorFrom(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    bans, err := h.Bans.ListByResident(ctx, actor.ID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list bans failed"})
    }
    return c.JSON(http.StatusOK, banViews(bans))
}

// Lift deactivates one of the caller's bans.
// DELETE /v1/bans/:id
func (h *BanHandler) Lift(c echo.Context) error {
    actor, ok := actorFrom(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    id, err := pathID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    if err := h.Bans.Lift(ctx, id, actor.ID); err != nil {
        switch err {
        case sql.ErrNoRows:
            return c.JSON(http.StatusNotFound, echo.Map{"error": "ban not found"})
        case repository.ErrForbidden:
            return c.JSON(http.StatusForbidden, echo.Map{"error": "not your ban"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lift ban failed"})
    }
    return c.NoContent(http.StatusNoContent)
}

// CheckPhone previews the gate decision for a phone before booking.
// GET /v1/bans/check?phone=...
func (h *BanHandler) CheckPhone(c echo.Context) error {
    actor, ok := actorFrom(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    phone := utils.NormalizePhone(c.QueryParam("phone"))
    if phone == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "phone required"})
    }
    dec := h.Gate.Check(c.Request().Context(), actor.BuildingID, actor.ID, phone)
    return c.JSON(http.StatusOK, echo.Map{
        "blocked":            dec.Blocked,
        "unverified":         dec.Unverified,
        "bans":               banViews(dec.Bans),
        "building_ban_count": dec.BuildingBanCount,
    })
}
