package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/gatepass/backend/internal/service"
)

// ScanHandler exposes the gate terminal endpoint.
type ScanHandler struct {
    Scans *service.ScanProcessor
}

func NewScanHandler(s *service.ScanProcessor) *ScanHandler {
    return &ScanHandler{Scans: s}
}

// Scan processes one QR presentation.  The transition (entry or
// exit) is inferred server-side; the terminal only reports what it
// saw and where.
// POST /v1/scan
func (h *ScanHandler) Scan(c echo.Context) error {
    actor, ok := actorFrom(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var req service.ScanRequest
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    if req.Token == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "qr_code required"})
    }
    result, err := h.Scans.Scan(c.Request().Context(), actor, req)
    if err != nil {
        return serviceError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "action": result.Action,
        "visit":  viewOf(result.Visit, false),
    })
}
