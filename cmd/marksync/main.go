package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marksync/internal/application/service"
	"marksync/internal/infrastructure/config"
	"marksync/internal/infrastructure/container"
	"marksync/internal/infrastructure/logger"
	"marksync/internal/infrastructure/quote"
	"marksync/internal/interfaces/web"

	"github.com/rs/zerolog/log"
)

func main() {
	logger.Setup()

	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := container.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("container init failed")
	}
	defer c.Close()

	// quote sources (infrastructure -> application ports)
	direct := quote.NewDirectClient(
		cfg.Quotes.Direct.BaseURL,
		cfg.Quotes.Direct.APIKey,
		time.Duration(cfg.Quotes.Direct.TimeoutSec)*time.Second,
	)
	bulk := quote.NewBulkCache(
		cfg.Quotes.Bulk.URL,
		cfg.Quotes.Bulk.Token,
		time.Duration(cfg.Quotes.Bulk.TimeoutSec)*time.Second,
	)

	router := service.NewQuoteRouter(cfg.Markets.Direct, direct, bulk)
	if cfg.Quotes.Stream.Enabled {
		stream := quote.NewStreamFeed(cfg.Quotes.Stream.WsURL, cfg.Quotes.Stream.Symbols)
		router.WithStream(stream, cfg.Markets.Stream)
		go stream.Run(ctx)
	}

	syncer := service.NewPriceSyncer(c.Positions(), router)

	// scheduled jobs: one price sync per scope plus the bulk table refresh
	sched := service.NewScheduler()
	syncInterval := time.Duration(cfg.Sync.IntervalSec) * time.Second
	for _, scope := range cfg.Sync.Scopes {
		scope := scope
		sched.Add(&service.Job{
			Name:     "price-sync:" + scope,
			Interval: syncInterval,
			Fn: func(ctx context.Context) {
				syncer.SyncOnce(ctx, scope)
			},
		})
	}
	sched.Add(&service.Job{
		Name:       "bulk-refresh",
		Interval:   time.Duration(cfg.Sync.BulkRefreshIntervalSec) * time.Second,
		RunAtStart: true, // warm the table before the first interval elapses
		Fn: func(ctx context.Context) {
			if err := bulk.Refresh(ctx); err != nil {
				log.Error().Err(err).Msg("bulk quote refresh failed")
			}
		},
	})
	sched.Start(ctx)

	window := time.Duration(cfg.RateLimit.WindowSec) * time.Second
	store := c.WindowStore()

	server := web.NewServer(web.ServerDeps{
		Addr:        cfg.Server.Addr,
		Positions:   c.Positions(),
		Syncer:      syncer,
		Scopes:      cfg.Sync.Scopes,
		Resolver:    web.HeaderIdentityResolver("X-User-ID"),
		DefaultGate: service.NewAdmissionGate("default", store, cfg.RateLimit.UserLimit, window),
		StrictGate:  service.NewAdmissionGate("strict", store, cfg.RateLimit.StrictLimit, window),
		IPGate:      service.NewAdmissionGate("ip", store, cfg.RateLimit.IPLimit, window),
	})

	log.Info().
		Str("config", *configPath).
		Strs("scopes", cfg.Sync.Scopes).
		Int("sync_interval_sec", cfg.Sync.IntervalSec).
		Str("direct_market", cfg.Markets.Direct).
		Msg("marksync started")

	if err := server.Start(ctx); err != nil {
		log.Error().Err(err).Msg("http server exited")
	}
	sched.Wait()
}
