package repository

import (
	"context"
	"time"

	"license-activation-service/internal/domain/model"
)

// RateWindowStore keeps fixed-window counters in a shared key-value store.
// Hit must compare and increment atomically: when the stored count is already
// at or above max it returns allowed=false without incrementing.
type RateWindowStore interface {
	Hit(ctx context.Context, key string, max int, window time.Duration) (allowed bool, w model.RateWindow, err error)
}
