package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	apihttp "lanshare/internal/api/http"
	"lanshare/internal/app"
	"lanshare/internal/discovery"
	"lanshare/internal/domain"
	"lanshare/internal/metrics"
	mongorepo "lanshare/internal/repository/mongo"
	"lanshare/internal/telemetry"
	"lanshare/internal/transfer"
	"lanshare/internal/usecase"

	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "lanshare")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "lanshare"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("displayName", cfg.DisplayName),
		slog.Int("discoveryPort", cfg.DiscoveryPort),
		slog.Int("transferPort", cfg.TransferPort),
		slog.String("saveDir", cfg.SaveDir),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	defer cancel()

	// History and settings persistence is optional: without Mongo the
	// service still discovers peers and moves files, it just forgets
	// finished transfers on restart.
	var (
		historyRepo  *mongorepo.HistoryRepository
		settingsRepo *mongorepo.SettingsRepository
	)
	mongoClient, err := mongorepo.Connect(ctx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err == nil {
		err = mongoClient.Ping(ctx, readpref.Primary())
	}
	if err != nil {
		logger.Warn("mongo unavailable, history and settings are not persisted",
			slog.String("error", err.Error()))
		mongoClient = nil
	} else {
		historyRepo = mongorepo.NewHistoryRepository(mongoClient, cfg.MongoDatabase)
		settingsRepo = mongorepo.NewSettingsRepository(mongoClient, cfg.MongoDatabase)
		if err := historyRepo.EnsureIndexes(ctx); err != nil {
			logger.Warn("mongo ensure indexes failed", slog.String("error", err.Error()))
		}
	}

	receiverSettings := domain.ReceiverSettings{
		SaveDir:    cfg.SaveDir,
		AutoAccept: cfg.AutoAccept,
	}
	if settingsRepo != nil {
		if stored, ok, err := settingsRepo.GetReceiverSettings(ctx); err != nil {
			logger.Warn("receiver settings load failed", slog.String("error", err.Error()))
		} else if ok {
			receiverSettings = stored
		}
	}

	engine := transfer.New(transfer.Config{
		DisplayName:          cfg.DisplayName,
		TransferPort:         cfg.TransferPort,
		BufferSize:           cfg.BufferSizeBytes,
		IdleTimeout:          time.Duration(cfg.IdleTimeoutSec) * time.Second,
		MaxWorkers:           cfg.MaxWorkers,
		MinChunkBytes:        cfg.MinChunkBytes,
		MultiStreamThreshold: cfg.MultiStreamThreshold,
		DecisionTimeout:      time.Duration(cfg.DecisionTimeoutSec) * time.Second,
		BandwidthLimit:       cfg.MaxBandwidthBytes,
	}, receiverSettings, logger)

	if err := engine.StartReceiving(rootCtx); err != nil {
		logger.Error("transfer listener failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	disc := discovery.New(discovery.Config{
		InstanceID:    uuid.NewString(),
		DisplayName:   cfg.DisplayName,
		TransferPort:  cfg.TransferPort,
		DiscoveryPort: cfg.DiscoveryPort,
		Interval:      time.Duration(cfg.DiscoveryIntervalSec) * time.Second,
	}, func() domain.PeerStatus {
		if engine.ActiveSessionCount() > 0 {
			return domain.PeerBusy
		}
		return domain.PeerIdle
	}, logger)
	if err := disc.Start(rootCtx); err != nil {
		logger.Error("discovery start failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	syncUC := usecase.SyncHistory{Engine: engine, Logger: logger}
	if historyRepo != nil {
		syncUC.Repo = historyRepo
	}
	go syncUC.Run(rootCtx)

	serverOpts := []apihttp.ServerOption{
		apihttp.WithPeerDirectory(disc),
		apihttp.WithAllowedOrigins(cfg.CORSAllowedOrigins),
		apihttp.WithLogger(logger),
	}
	if historyRepo != nil {
		serverOpts = append(serverOpts, apihttp.WithHistoryRepository(historyRepo))
	}
	if settingsRepo != nil {
		serverOpts = append(serverOpts, apihttp.WithSettingsRepository(settingsRepo))
	}
	handler := apihttp.NewServer(engine, serverOpts...)

	// Periodically refresh Prometheus gauges and push state to WebSocket
	// clients.
	go updateEngineMetrics(rootCtx, engine, disc, handler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	handler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	disc.Stop()
	if err := engine.Close(); err != nil {
		logger.Warn("engine close error", slog.String("error", err.Error()))
	}
	if mongoClient != nil {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
		}
	}

	logger.Info("server stopped")
}

func updateEngineMetrics(ctx context.Context, engine *transfer.Engine, disc *discovery.Service, handler *apihttp.Server) {
	stateTicker := time.NewTicker(1 * time.Second)
	peerTicker := time.NewTicker(3 * time.Second)
	defer stateTicker.Stop()
	defer peerTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stateTicker.C:
			metrics.ActiveSessions.Set(float64(engine.ActiveSessionCount()))
			metrics.PendingAcceptRequests.Set(float64(len(engine.PendingRequests())))

			var rateTotal float64
			for _, state := range engine.ListSessions() {
				if state.Status.Terminal() {
					continue
				}
				if snap, ok := engine.Progress(state.ID); ok {
					rateTotal += snap.Rate
				}
			}
			metrics.TransferRateBytes.Set(rateTotal)

			handler.BroadcastTransfers()
			handler.BroadcastRequests()
		case <-peerTicker.C:
			peers := disc.Snapshot()
			metrics.PeersDiscovered.Set(float64(len(peers)))
			handler.BroadcastPeers()
		}
	}
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
