package service

import (
    "context"
    "log"
    "time"
)

// sweepBatch caps how many due visits one sweep pass processes.
const sweepBatch = 200

// RunExpirySweeper periodically expires visits whose expected end
// passed without an entry scan, returning their licenses to the
// pool.  The sweep relies on the store's conditional update, so
// running several replicas concurrently is safe: each due visit is
// expired by at most one of them.  Blocks until ctx is cancelled;
// run it in its own goroutine.
func RunExpirySweeper(ctx context.Context, lifecycle *VisitLifecycle, interval time.Duration) {
    if interval <= 0 {
        interval = time.Minute
    }
    ticker := time.NewTicker(interval)
    defer ticker.Stop()

    log.Printf("expiry-sweeper: started, interval=%s", interval)
    for {
        select {
        case <-ctx.Done():
            log.Printf("expiry-sweeper: stopped: %v", ctx.Err())
            return
        case <-ticker.C:
            n, err := lifecycle.ExpireDue(ctx, sweepBatch)
            if err != nil {
                log.Printf("expiry-sweeper: sweep failed: %v", err)
                continue
            }
            if n > 0 {
                log.Printf("expiry-sweeper: expired %d visit(s)", n)
            }
        }
    }
}
