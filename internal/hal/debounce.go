package hal

import (
	"context"
	"time"
)

const (
	edgePollWindow  = 200 * time.Millisecond
	debounceSampleT = 5 * time.Millisecond
)

// debouncer turns an edge source into a press detector: after an edge the
// input must stay asserted for the whole debounce window, then the settle
// delay is applied so one press cannot trigger twice.
type debouncer struct {
	waitEdge func(timeout time.Duration) bool
	asserted func() bool
	debounce time.Duration
	settle   time.Duration
}

func (d debouncer) wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.waitEdge(edgePollWindow) {
			continue
		}
		if !d.stable(ctx) {
			continue
		}
		return sleepCtx(ctx, d.settle)
	}
}

func (d debouncer) stable(ctx context.Context) bool {
	deadline := time.Now().Add(d.debounce)
	for {
		if !d.asserted() {
			return false
		}
		if !time.Now().Before(deadline) {
			return true
		}
		if sleepCtx(ctx, debounceSampleT) != nil {
			return false
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
