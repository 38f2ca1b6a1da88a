package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/quantera/tradesim/internal/domain"
	"github.com/quantera/tradesim/internal/server/ws"
)

// tickChannel is the signal bus channel carrying per-snapshot tick payloads.
const tickChannel = "ticks"

// tickPublisher fans each applied snapshot out to the peripheral consumers:
// the in-process WebSocket hub, and (when configured) the Redis book cache
// and signal bus. Failures are logged and dropped; the in-memory book has
// already been updated and stays authoritative.
type tickPublisher struct {
	cache  domain.BookCache // may be nil
	bus    domain.SignalBus // may be nil
	hub    *ws.Hub
	symbol string
	logger *slog.Logger
}

// PublishTick implements feed.Publisher.
func (p *tickPublisher) PublishTick(ctx context.Context, snap domain.BookSnapshot, stats domain.BookStats) {
	payload, err := json.Marshal(stats)
	if err != nil {
		p.logger.Warn("encode tick failed", slog.String("error", err.Error()))
		return
	}

	p.hub.Broadcast(payload)

	if p.cache != nil {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := p.cache.SetSnapshot(cctx, p.symbol, snap); err != nil {
			p.logger.Warn("cache snapshot failed", slog.String("error", err.Error()))
		}
		if stats.MidPrice > 0 {
			if err := p.cache.SetMidPrice(cctx, p.symbol, stats.MidPrice, snap.Timestamp); err != nil {
				p.logger.Warn("cache mid failed", slog.String("error", err.Error()))
			}
		}
	}

	if p.bus != nil {
		if err := p.bus.Publish(ctx, tickChannel, payload); err != nil {
			p.logger.Warn("publish tick failed", slog.String("error", err.Error()))
		}
	}
}
