package domain

import (
	"context"
	"time"
)

// BookCache mirrors the latest book snapshot and mid price into an external
// cache so out-of-process readers (dashboards, exporters) never touch the hot
// in-memory book. The in-process store remains the source of truth.
type BookCache interface {
	SetSnapshot(ctx context.Context, symbol string, snap BookSnapshot) error
	GetSnapshot(ctx context.Context, symbol string) (BookSnapshot, error)
	SetMidPrice(ctx context.Context, symbol string, mid float64, ts time.Time) error
	GetMidPrice(ctx context.Context, symbol string) (float64, time.Time, error)
}

// SignalBus is a lightweight pub/sub channel between the engine and any
// attached presentation processes.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// SampleStore persists predictor training samples so models can warm-start
// after a restart. Optional; the engine runs fine without one.
type SampleStore interface {
	InsertBatch(ctx context.Context, samples []TrainingSample) error
	ListRecent(ctx context.Context, model string, limit int) ([]TrainingSample, error)
}
