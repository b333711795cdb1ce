package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/gatepass/backend/internal/model"
    "github.com/gatepass/backend/internal/service"
)

// BuildingHandler exposes the license pool read endpoint.  Building
// provisioning itself is owned by an external administration system,
// so there is no create or update surface here.
type BuildingHandler struct {
    Ledger *service.LicenseLedger
}

func NewBuildingHandler(l *service.LicenseLedger) *BuildingHandler {
    return &BuildingHandler{Ledger: l}
}

type buildingView struct {
    ID            uint64 `json:"id"`
    Name          string `json:"name"`
    Address       string `json:"address"`
    TotalLicenses uint32 `json:"total_licenses"`
    UsedLicenses  uint32 `json:"used_licenses"`
    Remaining     uint32 `json:"remaining_licenses"`
}

func buildingViewOf(b *model.Building) buildingView {
    return buildingView{
        ID:            b.ID,
        Name:          b.Name,
        Address:       b.Address,
        TotalLicenses: b.TotalLicenses,
        UsedLicenses:  b.UsedLicenses,
        Remaining:     b.RemainingLicenses(),
    }
}

// Licenses returns the building's license pool counters.  The view
// is the same for every authorized reader, which makes the route a
// good fit for the short-TTL response cache.
// GET /v1/buildings/:id/licenses
func (h *BuildingHandler) Licenses(c echo.Context) error {
    actor, ok := actorFrom(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    id, err := pathID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    if actor.Role != service.RoleSuperAdmin && actor.BuildingID != id {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
    }
    b, err := h.Ledger.Pool(c.Request().Context(), id)
    if err != nil {
        return serviceError(c, err)
    }
    return c.JSON(http.StatusOK, buildingViewOf(b))
}
