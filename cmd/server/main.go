package main // Entry point package

import (
    "context"
    "log"
    "time"

    "github.com/joho/godotenv"
    "github.com/labstack/echo/v4"

    "github.com/gatepass/backend/internal/config"
    "github.com/gatepass/backend/internal/database"
    "github.com/gatepass/backend/internal/handler"
    "github.com/gatepass/backend/internal/queue"
    "github.com/gatepass/backend/internal/repository"
    "github.com/gatepass/backend/internal/router"
    "github.com/gatepass/backend/internal/service"
    "github.com/gatepass/backend/internal/store"
)

func main() {
    // .env is optional; real deployments set the environment directly.
    _ = godotenv.Load()
    cfg := config.Load()

    db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
    if err != nil {
        log.Fatalf("database connect failed: %v", err)
    }
    defer db.Close()

    // Redis is optional: a nil client disables rate limiting and the
    // response cache but never blocks startup.
    rdb := config.NewRedisClient()
    if rdb == nil {
        log.Println("redis unavailable; rate limiting and caching disabled")
    }

    // Repositories.
    users := repository.NewUserRepo(db)
    tokens := repository.NewTokenRepo(db)
    bans := repository.NewBanRepo(db)

    // Store and services.
    st := store.NewMySQL(db)
    notifier := service.NewQueueNotifier()
    gate := service.NewBanGate(st, cfg.BanFailClosed)
    ledger := service.NewLicenseLedger(st)
    qr := service.NewQRCodec(st, time.Duration(cfg.QRTTLHours)*time.Hour)
    lifecycle := service.NewVisitLifecycle(st, gate, ledger, qr, notifier, uint32(cfg.MaxVisitors))
    scans := service.NewScanProcessor(st, qr, ledger, notifier)

    // HTTP layer.
    e := echo.New()
    router.RegisterRoutes(e)
    router.RegisterAPI(e, router.Handlers{
        Auth:      handler.NewAuthHandler(cfg, users, tokens),
        Visits:    handler.NewVisitHandler(lifecycle),
        Scans:     handler.NewScanHandler(scans),
        Bans:      handler.NewBanHandler(bans, gate),
        Buildings: handler.NewBuildingHandler(ledger),
    }, cfg.JWTSecret, rdb)

    // Background workers.
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    go service.RunExpirySweeper(ctx, lifecycle, time.Duration(cfg.SweepIntervalSec)*time.Second)
    go func() {
        if err := queue.StartVisitConsumer(); err != nil {
            log.Printf("visit consumer stopped: %v", err)
        }
    }()

    addr := ":" + cfg.Port
    log.Printf("listening on %s (env=%s)", addr, cfg.Env)
    if err := e.Start(addr); err != nil {
        log.Fatal(err)
    }
}
