package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"orderwatch/internal/api"
	"orderwatch/internal/broker"
	"orderwatch/internal/config"
	"orderwatch/internal/engine"
	"orderwatch/internal/marketdata"
	"orderwatch/internal/notify"
	"orderwatch/internal/store"
	"orderwatch/internal/util"
)

func main() {
	cfgPath := "config/orderwatch.yaml"
	if p := os.Getenv("ORDERWATCH_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format,
		util.LogWriter(cfg.Logging.File, cfg.Logging.MaxSizeMB, cfg.Logging.MaxBackups, cfg.Logging.MaxAgeDays))
	util.SetDefault(logger)

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		log.Fatalf("creating data dir: %v", err)
	}
	orders, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening order store: %v", err)
	}
	defer orders.Close()
	journal := store.NewParquetJournal(cfg.Storage.DataDir)

	var (
		oracle marketdata.Oracle
		static *marketdata.StaticOracle
	)
	if cfg.Alpaca.APIKey != "" && cfg.Alpaca.APISecret != "" {
		oracle = marketdata.NewAlpacaOracle(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, logger)
	} else {
		if static, err = marketdata.NewStaticOracleFromConfig(cfg.Paper); err != nil {
			log.Fatalf("seeding paper quotes: %v", err)
		}
		if static.Len() == 0 {
			logger.Warn("no alpaca credentials and no paper.quotes; orders are refused until prices are set via PUT /api/quotes/{symbol}")
		} else {
			logger.Info("no alpaca credentials, using static quotes", "symbols", static.Len())
		}
		oracle = static
	}
	oracle = marketdata.NewRateLimitedOracle(oracle,
		util.NewBurstRateLimiter(cfg.Engine.OracleRatePerSec, cfg.Engine.OracleBurst))

	var exec broker.Broker
	if cfg.Trading.PaperMode {
		exec = broker.NewSimulatorBroker()
	} else {
		exec = broker.NewAlpacaBroker(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL, logger)
	}

	hub := notify.NewHub()
	bus := notify.Multi{hub}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer kp.Close()
		bus = append(bus, kp)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	eng := engine.NewEngine(orders, oracle, exec, bus, engine.OptionsFromConfig(cfg.Engine), logger).
		WithJournal(journal).
		WithMetrics(engine.NewMetrics(reg))
	srv := api.NewServer(eng, hub, reg, logger).
		WithOriginPatterns(cfg.Server.AllowedOrigins...)
	if static != nil {
		srv.WithQuotes(static)
	}
	eng.OnHealthChange(srv.SetHealthy)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	var grpcAddr string
	if cfg.Server.GRPCPort > 0 {
		grpcAddr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort)
	}

	logger.Info("orderwatch-server starting",
		"http", httpAddr,
		"grpc", grpcAddr,
		"oracle", oracle.Name(),
		"broker", exec.Name(),
		"paper", cfg.Trading.PaperMode,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { return srv.ListenAndServe(gctx, httpAddr, grpcAddr) })
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("orderwatch-server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("orderwatch-server stopped")
}

// loadConfig reads the config file, falling back to paper-trading defaults
// when it does not exist.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(path)
}
