package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/quantera/tradesim/internal/book"
	"github.com/quantera/tradesim/internal/cache/redis"
	"github.com/quantera/tradesim/internal/config"
	"github.com/quantera/tradesim/internal/domain"
	"github.com/quantera/tradesim/internal/feed"
	"github.com/quantera/tradesim/internal/metrics"
	"github.com/quantera/tradesim/internal/model"
	"github.com/quantera/tradesim/internal/server"
	"github.com/quantera/tradesim/internal/server/handler"
	"github.com/quantera/tradesim/internal/server/ws"
	"github.com/quantera/tradesim/internal/sim"
	"github.com/quantera/tradesim/internal/store/postgres"
)

// Dependencies bundles everything the application lifecycle needs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Store     *book.Store
	Manager   *feed.Manager
	Estimator *sim.Estimator
	Hub       *ws.Hub
	Server    *server.Server

	// Optional infrastructure; nil when disabled in config.
	BookCache domain.BookCache
	SignalBus domain.SignalBus
	Samples   domain.SampleStore
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Core engine ---
	deps.Store = book.NewStore(cfg.Feed.Exchange, cfg.Feed.Symbol)

	slippage := model.NewSlippagePredictor(cfg.Predictor.MaxSamples)
	makerTaker := model.NewMakerTakerPredictor(cfg.Predictor.MaxSamples)
	impact := model.NewImpactModel(model.ImpactConfig{
		MarketImpactFactor: cfg.Impact.MarketImpactFactor,
		VolatilityFactor:   cfg.Impact.VolatilityFactor,
		RiskAversion:       cfg.Impact.RiskAversion,
	})

	// --- Redis (optional) ---
	if cfg.Redis.Enabled {
		rdb, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = rdb.Close() })

		deps.BookCache = redis.NewBookCache(rdb, cfg.Redis.SnapshotTTL.Duration)
		bus := redis.NewSignalBus(rdb)
		closers = append(closers, func() { _ = bus.Close() })
		deps.SignalBus = bus
	}

	// --- Postgres (optional) ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.ConnString(),
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, func() { _ = pgClient.Close() })

		if err := pgClient.EnsureSchema(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres schema: %w", err)
		}
		deps.Samples = postgres.NewSampleStore(pgClient.Pool())
	}

	// --- Estimator ---
	feeTiers := make(map[string]domain.FeeTier, len(cfg.FeeTiers))
	for name, tier := range cfg.FeeTiers {
		feeTiers[name] = domain.FeeTier{Maker: tier.Maker, Taker: tier.Taker}
	}
	deps.Estimator = sim.NewEstimator(sim.Config{
		Store:             deps.Store,
		Slippage:          slippage,
		MakerTaker:        makerTaker,
		Impact:            impact,
		FeeTiers:          feeTiers,
		DefaultVolatility: cfg.Sim.DefaultVolatility,
		Samples:           deps.Samples,
	}, logger)

	if deps.Samples != nil {
		if err := deps.Estimator.WarmStart(ctx, cfg.Predictor.WarmStartLimit); err != nil {
			logger.Warn("predictor warm start failed", slog.String("error", err.Error()))
		}
	}

	// --- WebSocket hub and feed ---
	deps.Hub = ws.NewHub(logger)

	pub := &tickPublisher{
		cache:  deps.BookCache,
		bus:    deps.SignalBus,
		hub:    deps.Hub,
		symbol: cfg.Feed.Symbol,
		logger: logger.With(slog.String("component", "publisher")),
	}
	deps.Manager = feed.NewManager(feed.Config{
		URL:               cfg.Feed.URL,
		Symbol:            cfg.Feed.Symbol,
		Channel:           cfg.Feed.Channel,
		OpenTimeout:       cfg.Feed.OpenTimeout.Duration,
		AckTimeout:        cfg.Feed.AckTimeout.Duration,
		ReadTimeout:       cfg.Feed.ReadTimeout.Duration,
		KeepaliveInterval: cfg.Feed.KeepaliveInterval.Duration,
		StalenessWindow:   cfg.Feed.StalenessWindow.Duration,
		BackoffBase:       cfg.Feed.BackoffBase.Duration,
		MaxBackoffExp:     cfg.Feed.MaxBackoffExp,
		MaxRetries:        cfg.Feed.MaxRetries,
	}, deps.Store, pub, logger)

	// --- HTTP server ---
	if cfg.Server.Enabled {
		var metricsHandler http.Handler
		if cfg.Metrics.Enabled {
			metricsHandler = metrics.Handler(metrics.Init())
		}
		deps.Server = server.NewServer(
			server.Config{Port: cfg.Server.Port, CORSOrigins: cfg.Server.CORSOrigins},
			server.Handlers{
				Health: handler.NewHealthHandler(deps.Store, deps.Manager, logger),
				Book:   handler.NewBookHandler(deps.Store, logger),
				Estimate: handler.NewEstimateHandler(deps.Estimator, handler.EstimateDefaults{
					Exchange:    cfg.Feed.Exchange,
					Asset:       cfg.Feed.Symbol,
					QuantityUSD: cfg.Sim.DefaultQuantityUSD,
					FeeTier:     cfg.Sim.DefaultFeeTier,
				}, logger),
				Connection: handler.NewConnectionHandler(deps.Manager, deps.Store, logger),
			},
			deps.Hub,
			metricsHandler,
			logger,
		)
	}

	return deps, cleanup, nil
}
