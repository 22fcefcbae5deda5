// quoted runs the quoting daemon: one engine against a venue, with the event
// stream, metrics and journal wired around it.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"liquidity-engine/config"
	"liquidity-engine/engine"
	"liquidity-engine/infrastructure/logger"
	"liquidity-engine/infrastructure/monitor"
	"liquidity-engine/journal"
	"liquidity-engine/market"
	"liquidity-engine/quote"
	"liquidity-engine/stream"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "config file path")
	tradedLimit := flag.Int64("tradedLimit", 1000, "paper venue starting traded limit")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer lg.Sync()

	tick, err := cfg.Market.Tick()
	if err != nil {
		lg.Fatal("parse tick size", zap.Error(err))
	}
	width, err := cfg.Market.BatchWidth()
	if err != nil {
		lg.Fatal("parse batch width", zap.Error(err))
	}
	grid, err := market.NewGrid(tick)
	if err != nil {
		lg.Fatal("build price grid", zap.Error(err))
	}

	// Paper venue: the daemon quotes against the in-process book until a
	// live venue gateway is configured.
	venue := market.NewSimVenue(grid, market.PriceLimit(*tradedLimit))

	quoter, err := buildQuoter(cfg, venue, grid)
	if err != nil {
		lg.Fatal("build quoter", zap.Error(err))
	}

	mon := monitor.New(monitor.DefaultConfig())
	eng, err := engine.New(engine.Config{
		MarketID:    cfg.Market.ID,
		MinInterval: cfg.Market.MinInterval,
		Operator:    cfg.Market.Operator,
		PublicPool:  cfg.Pool.Public,
		Width:       width,
	}, engine.Components{
		Venue:   venue,
		Quoter:  quoter,
		Grid:    grid,
		Logger:  lg.Named("engine"),
		Monitor: mon,
	})
	if err != nil {
		lg.Fatal("build engine", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Journal.DSN != "" {
		j, err := journal.OpenPostgres(ctx, cfg.Journal.DSN)
		if err != nil {
			lg.Fatal("open journal", zap.Error(err))
		}
		defer j.Close()
		go journal.NewRecorder(j, eng, lg.Named("journal")).Run(ctx)
	}

	if cfg.Metrics.ListenAddr != "" {
		go serveHTTP(ctx, cfg.Metrics.ListenAddr, metricsMux(mon), lg.Named("metrics"))
	}
	if cfg.Stream.ListenAddr != "" {
		srv := stream.NewServer(cfg.Stream.ServerConfig(), eng, lg.Named("stream"))
		go serveHTTP(ctx, cfg.Stream.ListenAddr, srv.Routes(), lg.Named("stream"))
	}

	watcher, err := config.NewWatcher(*cfgPath, config.DefaultWatchConfig(), lg.Named("config"))
	if err != nil {
		lg.Fatal("create config watcher", zap.Error(err))
	}
	defer watcher.Close()
	if err := watcher.Start(ctx, func(next config.AppConfig) {
		applyReload(eng, cfg.Market.Operator, next, lg)
	}); err != nil {
		lg.Fatal("start config watcher", zap.Error(err))
	}

	go triggerLoop(ctx, eng, cfg.Market.MinInterval, lg)
	go notifyWatchdog(ctx)
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	lg.Info("quoted running",
		zap.String("market", cfg.Market.ID),
		zap.String("mode", cfg.Strategy.Mode),
		zap.Duration("min_interval", cfg.Market.MinInterval))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	lg.Info("shutting down")
	cancel()
	time.Sleep(200 * time.Millisecond)
}

func buildQuoter(cfg config.AppConfig, venue market.Venue, grid market.Grid) (quote.Quoter, error) {
	switch cfg.Strategy.Mode {
	case config.ModeFixed:
		return quote.NewFixed(
			market.PriceLimit(cfg.Strategy.Fixed.BidLimit),
			market.PriceLimit(cfg.Strategy.Fixed.AskLimit))
	case config.ModeModel:
		params, err := cfg.Strategy.Model.Parse()
		if err != nil {
			return nil, err
		}
		return quote.NewModel(venue, grid, params)
	case config.ModeOracle:
		return nil, errors.New("oracle mode needs a live feed client; not available on the paper venue")
	default:
		return nil, errors.New("unknown strategy mode " + cfg.Strategy.Mode)
	}
}

func applyReload(eng *engine.Engine, operator string, next config.AppConfig, lg *logger.Logger) {
	if next.Strategy.Mode != config.ModeModel {
		return
	}
	params, err := next.Strategy.Model.Parse()
	if err != nil {
		lg.Warn("reloaded parameters unusable", zap.Error(err))
		return
	}
	if err := eng.SetQuoteParameters(operator, params); err != nil {
		lg.Warn("parameter update rejected", zap.Error(err))
		return
	}
	lg.Info("quote parameters applied from reload")
}

func triggerLoop(ctx context.Context, eng *engine.Engine, interval time.Duration, lg *logger.Logger) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := eng.TriggerCycle(); err != nil {
				lg.Warn("cycle error", zap.Error(err))
			}
		}
	}
}

func metricsMux(mon *monitor.Monitor) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", mon.Handler())
	return mux
}

func serveHTTP(ctx context.Context, addr string, handler http.Handler, lg *logger.Logger) {
	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		lg.Error("http server stopped", zap.String("addr", addr), zap.Error(err))
	}
}

// notifyWatchdog pets the systemd watchdog when one is armed.
func notifyWatchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
