package queue

import (
	"context"
	"log/slog"
)

// Drain resubmits every queued item in order, deleting the ones that get
// through. It never fails: a delivery error leaves the item in place for a
// later sweep, and the counts tell the caller what happened.
func Drain(ctx context.Context, store Store, submitFn func(ctx context.Context, payload []byte) error, logger *slog.Logger) (delivered, remaining int) {
	if logger == nil {
		logger = slog.Default()
	}

	items, err := store.List(ctx)
	if err != nil {
		logger.Warn("queue drain: list failed", "error", err)
		return 0, 0
	}

	for _, item := range items {
		if ctx.Err() != nil {
			remaining++
			continue
		}
		if err := submitFn(ctx, item.Payload); err != nil {
			logger.Warn("queue drain: delivery failed, keeping item",
				"item", item.Name, "error", err)
			remaining++
			continue
		}
		if err := store.Delete(ctx, item.Name); err != nil {
			logger.Warn("queue drain: delivered but delete failed",
				"item", item.Name, "error", err)
		}
		delivered++
	}
	return delivered, remaining
}
