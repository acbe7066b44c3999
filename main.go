package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dealtracker/api"
	"dealtracker/config"
	"dealtracker/scraper"
	"dealtracker/services"
	"dealtracker/storage"
	"dealtracker/utils"
)

const usage = `usage: dealtracker <mode> [flags]

modes:
  refresh-deals                         scrape the deals index into the deal cache
  refresh-tracked --owner ID [--id N]   re-check an owner's tracked prices
  track --owner ID (--url U | --keyword K) [--target P]
  stats                                 print the deal cache overview
  schedule                              run both refreshes on their intervals
  serve                                 start the HTTP trigger
`

// app is everything a mode needs, built once from config
type app struct {
	cfg      *config.Config
	logger   *utils.Logger
	store    *storage.SQLStore
	deals    *services.DealSynchronizer
	insights *services.InsightService
	tracking *services.TrackingEngine
	closers  []func()
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	mode, args := os.Args[1], os.Args[2:]

	// ================== Bootstrap ====================
	cfg := config.Load()
	logger := utils.NewLogger(cfg.Debug)
	defer logger.Sync()

	if err := cfg.Pipeline.Validate(); err != nil {
		logger.Error("Invalid configuration: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Startup failed: %v", err)
		os.Exit(1)
	}
	defer a.close()

	switch mode {
	case "refresh-deals":
		err = a.refreshDeals(ctx)
	case "refresh-tracked":
		err = a.refreshTracked(ctx, args)
	case "track":
		err = a.track(ctx, args)
	case "stats":
		err = a.stats(ctx)
	case "schedule":
		err = a.schedule(ctx)
	case "serve":
		err = a.serve(ctx)
	default:
		fmt.Fprint(os.Stderr, usage)
		a.close()
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("%s failed: %v", mode, err)
		a.close()
		os.Exit(1)
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*app, error) {
	logger.Info("Deal tracker starting against %s", cfg.Pipeline.BaseURL)
	logger.Info("Fetcher: %s | Delay: %v..%v | Timeout: %v",
		cfg.Pipeline.Fetcher, cfg.Pipeline.DelayMin, cfg.Pipeline.DelayMax, cfg.Pipeline.NavigationTimeout)

	// =================== Database ========================================
	store, err := storage.Open(cfg.DatabaseDriver, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, store: store, closers: []func(){store.Close}}
	if err := store.CreateSchema(ctx); err != nil {
		a.close()
		return nil, err
	}

	// =============== Fetching ===================================
	var fetcher scraper.Fetcher
	switch cfg.Pipeline.Fetcher {
	case "http":
		fetcher = scraper.NewHTTPFetcher(cfg.Pipeline, logger)
	default:
		fetcher = scraper.NewBrowserFetcher(cfg.Pipeline, logger)
	}

	var counter scraper.Counter
	if cfg.RedisURL != "" {
		rc, err := storage.NewRedisCounter(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("Redis unavailable, rotating identities in-process: %v", err)
		} else {
			counter = rc
			a.closers = append(a.closers, func() { _ = rc.Close() })
		}
	}

	pipeline := services.NewPipeline(cfg.Pipeline, fetcher, scraper.NewHTTPProxySource(cfg.Pipeline, logger), counter, logger)

	var raw services.RawRecorder
	if cfg.RawCSVPath != "" {
		raw = storage.NewCSVWriter(cfg.RawCSVPath, logger)
	}

	// A nil *TelegramNotifier must not end up inside the interface
	var notifier services.Notifier
	if cfg.TelegramBotToken != "" {
		tn, err := services.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID, logger)
		if err != nil {
			logger.Warn("Alerts will not be delivered: %v", err)
		} else {
			notifier = tn
		}
	}

	a.deals = services.NewDealSynchronizer(pipeline, store, raw, logger)
	a.insights = services.NewInsightService(store, logger)
	a.tracking = services.NewTrackingEngine(pipeline, store, notifier, logger)
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) refreshDeals(ctx context.Context) error {
	sum, err := a.deals.Refresh(ctx, a.cfg.Pipeline.MaxDeals)
	if sum != nil {
		services.PrintRunSummary(os.Stdout, sum)
	}
	return err
}

func (a *app) refreshTracked(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("refresh-tracked", flag.ExitOnError)
	owner := fs.String("owner", "", "owner whose products are refreshed")
	id := fs.Int64("id", 0, "refresh only this tracked product")
	_ = fs.Parse(args)
	if *owner == "" {
		return fmt.Errorf("--owner is required")
	}

	var scope *int64
	if *id > 0 {
		scope = id
	}
	sum, err := a.tracking.Refresh(ctx, *owner, scope)
	if sum != nil {
		services.PrintRunSummary(os.Stdout, sum)
	}
	return err
}

func (a *app) track(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("track", flag.ExitOnError)
	owner := fs.String("owner", "", "owner of the tracked product")
	url := fs.String("url", "", "product page URL")
	keyword := fs.String("keyword", "", "search keyword; the first hit is tracked")
	target := fs.Float64("target", 0, "target price")
	_ = fs.Parse(args)

	req := services.TrackRequest{Owner: *owner, ProductURL: *url, Keyword: *keyword}
	if *target != 0 {
		req.TargetPrice = target
	}
	p, err := a.tracking.Track(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf(" Tracking #%d %s (%s) at %.2f\n", p.ID, p.Title, p.ASIN, *p.CurrentPrice)
	fmt.Println(" Affiliate link →", p.AffiliateURL)
	return nil
}

func (a *app) stats(ctx context.Context) error {
	st, err := a.insights.Stats(ctx)
	if err != nil {
		return err
	}
	cats, err := a.insights.Categories(ctx)
	if err != nil {
		return err
	}
	services.PrintDealStats(os.Stdout, st, cats)
	return nil
}

// schedule refreshes deals and every owner's tracked products on their intervals until ctx ends
func (a *app) schedule(ctx context.Context) error {
	if a.cfg.DealsInterval <= 0 || a.cfg.TrackingInterval <= 0 {
		return fmt.Errorf("schedule intervals must be positive")
	}
	a.logger.Info("Scheduling deals every %v, tracked prices every %v", a.cfg.DealsInterval, a.cfg.TrackingInterval)

	done := make(chan struct{}, 2)
	go func() {
		runPeriodically(ctx, a.cfg.DealsInterval, func() {
			if _, err := a.deals.Refresh(ctx, a.cfg.Pipeline.MaxDeals); err != nil && ctx.Err() == nil {
				a.logger.Error("Scheduled deals refresh failed: %v", err)
			}
		})
		done <- struct{}{}
	}()
	go func() {
		runPeriodically(ctx, a.cfg.TrackingInterval, func() {
			if _, err := a.tracking.RefreshAll(ctx); err != nil && ctx.Err() == nil {
				a.logger.Error("Scheduled tracking refresh failed: %v", err)
			}
		})
		done <- struct{}{}
	}()

	<-done
	<-done
	a.logger.Info("Scheduler stopped")
	return nil
}

func runPeriodically(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fn()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func (a *app) serve(ctx context.Context) error {
	h := &api.Handler{
		Deals:    a.deals,
		Insights: a.insights,
		Tracking: a.tracking,
		MaxDeals: a.cfg.Pipeline.MaxDeals,
		Logger:   a.logger,
	}
	srv := api.NewApp(h, a.logger)

	go func() {
		<-ctx.Done()
		a.logger.Info("Shutting down HTTP server")
		_ = srv.ShutdownWithTimeout(10 * time.Second)
	}()

	a.logger.Info("Listening on %s", a.cfg.HTTPAddr)
	return srv.Listen(a.cfg.HTTPAddr)
}
