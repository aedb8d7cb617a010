package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/matheusmosca/pos-transaction-engine/internal/cart"
	"github.com/matheusmosca/pos-transaction-engine/internal/catalog"
	"github.com/matheusmosca/pos-transaction-engine/internal/config"
	"github.com/matheusmosca/pos-transaction-engine/internal/events"
	"github.com/matheusmosca/pos-transaction-engine/internal/httpapi"
	"github.com/matheusmosca/pos-transaction-engine/internal/logger"
	"github.com/matheusmosca/pos-transaction-engine/internal/sale"
	"github.com/matheusmosca/pos-transaction-engine/internal/shift"
	"github.com/matheusmosca/pos-transaction-engine/internal/storage/memory"
	"github.com/matheusmosca/pos-transaction-engine/internal/storage/postgres"
	"github.com/matheusmosca/pos-transaction-engine/internal/storage/redisstore"
	"github.com/matheusmosca/pos-transaction-engine/internal/telemetry"
)

// backend agrupa as implementações de armazenamento escolhidas pela configuração
type backend struct {
	catalog catalog.Accessor
	sales   sale.Store
	shifts  shift.Repository
	close   func()
}

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.Init(cfg.Log.Level, cfg.Server.Env, cfg.Server.Name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("❌ Service stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry
	providers, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		ServiceName:  cfg.Server.Name,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Warn("Error shutting down telemetry", zap.Error(err))
		}
	}()

	loc, err := cfg.Shift.Location()
	if err != nil {
		return err
	}

	// Initialize storage
	be, err := initBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer be.close()

	snapshots, closeSnapshots, err := initSnapshotStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSnapshots()

	publisher, err := initPublisher(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn("Error closing event publisher", zap.Error(err))
		}
	}()

	// Initialize dependencies
	ledger := shift.NewLedger(be.shifts, shift.WithLocation(loc), shift.WithLogger(log))
	opts := []sale.Option{
		sale.WithPublisher(publisher),
		sale.WithCancelWindow(cfg.Sale.CancelWindow),
		sale.WithLogger(log),
	}
	if cfg.Shift.AutoStart {
		opts = append(opts, sale.WithAutoStart(shift.WorkingHoursPolicy(cfg.Shift.WorkHoursStart, cfg.Shift.WorkHoursEnd)))
	}
	orchestrator := sale.NewOrchestrator(be.sales, be.catalog, ledger, opts...)

	sessions := httpapi.NewSessions(snapshots, cfg.Cart.TTL, log)
	defer sessions.Close()

	handler := httpapi.NewHandler(sessions, be.catalog, orchestrator, ledger, cfg.Catalog.LowStockThreshold)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpapi.NewRouter(handler, httpapi.RouterConfig{
		ServiceName: cfg.Server.Name,
		Logger:      log,
		Metrics:     httpapi.NewMetrics("pos"),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("🚀 POS Service listening", zap.String("port", cfg.Server.Port),
			zap.String("storage", cfg.Storage.Backend), zap.String("catalog", cfg.Catalog.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
		log.Info("⏳ Shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func initBackend(ctx context.Context, cfg *config.Config, log *zap.Logger) (*backend, error) {
	var be backend

	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		pool, err := postgres.Connect(ctx, postgres.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Name:     cfg.Database.Name,
			MaxConns: cfg.Database.MaxConns,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
		be = backend{
			catalog: postgres.NewCatalogRepository(pool),
			sales:   postgres.NewSaleRepository(pool, log),
			shifts:  postgres.NewShiftRepository(pool),
			close:   pool.Close,
		}
	default:
		store := memory.NewStore()
		if cfg.Storage.SeedFile != "" {
			n, err := store.LoadSeedFile(cfg.Storage.SeedFile, cfg.Sale.MinPrice)
			if err != nil {
				return nil, err
			}
			log.Info("✅ Catalog seeded", zap.Int("products", n), zap.String("file", cfg.Storage.SeedFile))
		}
		be = backend{catalog: store, sales: store, shifts: store, close: func() {}}
	}

	if cfg.Catalog.Backend == config.BackendHTTP {
		be.catalog = catalog.NewHTTPAccessor(cfg.Catalog.URL, cfg.Catalog.Timeout)
		log.Info("🔗 Using remote catalog", zap.String("url", cfg.Catalog.URL))
	}
	return &be, nil
}

func initSnapshotStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (cart.SnapshotStore, func(), error) {
	if cfg.Cart.RedisURL == "" {
		log.Info("ℹ️ Cart snapshots kept in process")
		return cart.NewMemorySnapshotStore(), func() {}, nil
	}

	client, err := redisstore.Connect(ctx, cfg.Cart.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info("✅ Connected to redis for cart snapshots")
	return redisstore.NewSnapshotStore(client, cfg.Cart.TTL, log), func() { _ = client.Close() }, nil
}

type closingPublisher interface {
	sale.Publisher
	io.Closer
}

func initPublisher(cfg *config.Config, log *zap.Logger) (closingPublisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return events.Noop{}, nil
	}

	p, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, map[string]string{
		sale.EventSaleCommitted: cfg.Kafka.TopicSaleCommitted,
		sale.EventSaleCancelled: cfg.Kafka.TopicSaleCancelled,
	}, log)
	if err != nil {
		return nil, err
	}
	log.Info("✅ Sale events published to kafka", zap.Strings("brokers", cfg.Kafka.Brokers))
	return p, nil
}
