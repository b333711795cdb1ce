package handler // shared helpers for the HTTP handler layer

import (
    "errors"
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/gatepass/backend/internal/service"
)

// actorFrom reconstructs the authenticated actor from the claims the
// JWT middleware stored in the context.  JWT numeric claims decode
// as float64; string forms are tolerated for robustness.  The bool
// result is false when the claims are missing or malformed, which
// should only happen on routes mistakenly left outside the JWT
// middleware.
func actorFrom(c echo.Context) (service.Actor, bool) {
    id, ok := claimUint(c.Get("user_id"))
    if !ok || id == 0 {
        return service.Actor{}, false
    }
    roleStr, _ := c.Get("role").(string)
    role, ok := service.ParseRole(roleStr)
    if !ok {
        return service.Actor{}, false
    }
    buildingID, _ := claimUint(c.Get("building_id"))
    return service.Actor{ID: id, Role: role, BuildingID: buildingID}, true
}

// claimUint converts a JWT claim value to uint64.
func claimUint(v interface{}) (uint64, bool) {
    switch t := v.(type) {
    case float64:
        if t < 0 {
            return 0, false
        }
        return uint64(t), true
    case string:
        n, err := strconv.ParseUint(t, 10, 64)
        if err != nil {
            return 0, false
        }
        return n, true
    case uint64:
        return t, true
    case int64:
        if t < 0 {
            return 0, false
        }
        return uint64(t), true
    }
    return 0, false
}

// pathID parses a numeric path parameter.
func pathID(c echo.Context, name string) (uint64, error) {
    return strconv.ParseUint(c.Param(name), 10, 64)
}

// serviceError maps service sentinels to HTTP responses.  Anything
// unrecognized is a 500 with a generic message; the real cause has
// already been logged closer to where it happened.
func serviceError(c echo.Context, err error) error {
    var blocked *service.BlockedVisitorError
    if errors.As(err, &blocked) {
        // An unverified block means the registry was unreachable and
        // the fail-closed policy refused the creation.  The body must
        // not claim an active ban exists in that case.
        code := "visitor_blocked"
        if blocked.Unverified {
            code = "ban_check_unverified"
        }
        return c.JSON(http.StatusUnprocessableEntity, echo.Map{
            "error":      code,
            "phone":      blocked.Phone,
            "bans":       banViews(blocked.Bans),
            "unverified": blocked.Unverified,
        })
    }
    switch {
    case errors.Is(err, service.ErrValidation):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    case errors.Is(err, service.ErrUnauthorized):
        return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
    case errors.Is(err, service.ErrNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
    case errors.Is(err, service.ErrCapacityExceeded):
        return c.JSON(http.StatusConflict, echo.Map{"error": "license_capacity_exceeded"})
    case errors.Is(err, service.ErrTokenInvalid):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "qr_invalid"})
    case errors.Is(err, service.ErrTokenSuperseded):
        return c.JSON(http.StatusGone, echo.Map{"error": "qr_superseded"})
    case errors.Is(err, service.ErrTokenExpired):
        return c.JSON(http.StatusGone, echo.Map{"error": "qr_expired"})
    case errors.Is(err, service.ErrAlreadyCompleted):
        return c.JSON(http.StatusConflict, echo.Map{"error": "already_scanned"})
    case errors.Is(err, service.ErrAlreadyTerminal):
        return c.JSON(http.StatusConflict, echo.Map{"error": "visit_terminal"})
    }
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
