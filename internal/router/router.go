package router // package router defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4" // import the Echo web framework to handle routing
    "github.com/redis/go-redis/v9"

    "github.com/gatepass/backend/internal/config"     // cache and rate limit configuration
    "github.com/gatepass/backend/internal/handler"    // import the handlers that implement business logic
    "github.com/gatepass/backend/internal/middleware" // import middleware for JWT authentication and role enforcement
    "github.com/gatepass/backend/internal/service"
)

// Handlers groups everything the route registration needs.
type Handlers struct {
    Auth      *handler.AuthHandler
    Visits    *handler.VisitHandler
    Scans     *handler.ScanHandler
    Bans      *handler.BanHandler
    Buildings *handler.BuildingHandler
}

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
    // Map the GET request at path "/healthz" to the Health handler.  This
    // endpoint can be used by load balancers or monitoring systems to verify
    // that the service is up and running.
    e.GET("/healthz", handler.Health)
}

// RegisterAPI registers the full API surface: the unauthenticated
// auth endpoints under /v1/auth and the protected endpoints under
// /v1.  The protected group is wrapped in JWT validation and the
// Redis token bucket rate limiter; rdb may be nil, which disables
// rate limiting and caching.
func RegisterAPI(e *echo.Echo, h Handlers, jwtSecret string, rdb *redis.Client) {
    // Unauthenticated session endpoints.
    g := e.Group("/v1/auth")
    g.POST("/register", h.Auth.Register)
    g.POST("/login", h.Auth.Login)
    // Rotates the refresh token.
    g.POST("/refresh", h.Auth.Refresh)
    // Issues a new access token without rotating the refresh token.
    g.POST("/refresh-access", h.Auth.RefreshAccess)
    // Logout revokes the refresh token sent in the body, so it does
    // not require JWT authentication.
    g.POST("/logout", h.Auth.Logout)

    // Everything below requires a valid access token.
    auth := e.Group("/v1")
    auth.Use(middleware.JWTAuth(jwtSecret))
    auth.Use(middleware.RequireRole(
        string(service.RoleResident),
        string(service.RoleAdmin),
        string(service.RoleSecurity),
        string(service.RoleSuperAdmin),
    ))
    auth.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

    auth.GET("/me", h.Auth.Me)
    auth.POST("/logout-all", h.Auth.LogoutAll)

    // Visit lifecycle.
    auth.POST("/visits", h.Visits.Create)
    auth.GET("/visits", h.Visits.ListMine)
    auth.GET("/visits/:id", h.Visits.Get)
    auth.DELETE("/visits/:id", h.Visits.Cancel)
    auth.POST("/visits/:id/qr", h.Visits.Reissue)
    auth.GET("/visits/:id/visitors", h.Visits.MembersOf)
    auth.GET("/visits/:id/logs", h.Visits.Logs)

    // Gate terminal.  The scan processor enforces the scanning role
    // itself; the route-level restriction keeps residents from even
    // reaching it.
    auth.POST("/scan", h.Scans.Scan,
        middleware.RequireRole(string(service.RoleSecurity), string(service.RoleSuperAdmin)))

    // Ban registry.
    auth.POST("/bans", h.Bans.Create)
    auth.GET("/bans", h.Bans.List)
    auth.GET("/bans/check", h.Bans.CheckPhone)
    auth.DELETE("/bans/:id", h.Bans.Lift)

    // Buildings.  The license pool view is identical for every
    // authorized reader, so it goes through the short-TTL response
    // cache.
    auth.GET("/buildings/:id/licenses", h.Buildings.Licenses,
        middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
    auth.GET("/buildings/:id/visits", h.Visits.ListBuilding,
        middleware.RequireRole(
            string(service.RoleAdmin),
            string(service.RoleSecurity),
            string(service.RoleSuperAdmin)))
}
