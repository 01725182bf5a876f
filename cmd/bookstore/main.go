package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/go_cart/bookstore/internal/cart/cache"
	"github.com/fjod/go_cart/bookstore/internal/cart/poller"
	cartrepo "github.com/fjod/go_cart/bookstore/internal/cart/repository"
	cartservice "github.com/fjod/go_cart/bookstore/internal/cart/service"
	"github.com/fjod/go_cart/bookstore/internal/catalog"
	"github.com/fjod/go_cart/bookstore/internal/config"
	"github.com/fjod/go_cart/bookstore/internal/domain"
	h "github.com/fjod/go_cart/bookstore/internal/http"
	"github.com/fjod/go_cart/bookstore/internal/identity"
	"github.com/fjod/go_cart/bookstore/internal/inventory/store"
	"github.com/fjod/go_cart/bookstore/internal/observability"
	"github.com/fjod/go_cart/bookstore/internal/order/publisher"
	orderrepo "github.com/fjod/go_cart/bookstore/internal/order/repository"
	orderservice "github.com/fjod/go_cart/bookstore/internal/order/service"
	"github.com/fjod/go_cart/bookstore/internal/platform/postgres"
	"github.com/fjod/go_cart/bookstore/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(config.ServiceName, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	ctx := context.Background()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OtelEndpoint, config.ServiceName, config.ServiceVersion)
	if err != nil {
		log.Fatal("failed to set up tracing", zap.Error(err))
	}

	// Catalog
	books, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		log.Fatal("failed to open catalog", zap.Error(err))
	}
	defer books.Close()
	if err := books.RunMigrations(cfg.CatalogMigrationsPath); err != nil {
		log.Fatal("failed to run catalog migrations", zap.Error(err))
	}

	// Orders and inventory
	var (
		ledger store.Ledger
		orders orderrepo.Repository
	)
	switch cfg.Storage {
	case "postgres":
		db, err := postgres.Open(&cfg.Postgres)
		if err != nil {
			log.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		if err := postgres.RunMigrations(db, cfg.Postgres.MigrationsDirPath); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}
		log.Info("database migrations completed")
		ledger = store.NewPostgresLedger(db)
		orders = orderrepo.NewPostgresRepository(db)
	default:
		memory := store.NewMemoryStore()
		ledger = memory
		orders = orderrepo.NewMemoryRepository(memory)
		log.Warn("using in-memory orders and inventory")
	}

	if err := seedStock(ctx, books, ledger, cfg.SeedStock, log); err != nil {
		log.Fatal("failed to seed stock", zap.Error(err))
	}

	// Cart
	var lines cartrepo.CartRepository
	switch cfg.CartStore {
	case "mongo":
		mongoDB, err := cartrepo.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			log.Fatal("failed to connect to MongoDB", zap.Error(err))
		}
		defer mongoDB.Client().Disconnect(context.Background())
		repo := cartrepo.NewMongoRepository(mongoDB)
		if err := repo.CreateIndexes(ctx); err != nil {
			log.Fatal("failed to create cart indexes", zap.Error(err))
		}
		lines = repo
		log.Info("connected to MongoDB", zap.String("database", cfg.MongoDBName))
	default:
		lines = cartrepo.NewMemoryRepository()
		log.Warn("using in-memory cart")
	}

	var cartCache cache.CartCache = cache.Noop{}
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal("redis connection failed", zap.Error(err))
		}
		cartCache = cache.NewRedisCache(redisClient)
		log.Info("redis ping succeeded")
	}

	directory := identity.NewStaticDirectory(cfg.Customers...)
	carts := cartservice.NewCartService(lines, cartCache, books, log)
	workflow := orderservice.NewWorkflow(orders, carts, directory, log)

	// Background workers
	var wg sync.WaitGroup
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	var closers []func()
	if len(cfg.KafkaBrokers) > 0 {
		outbox := publisher.NewOutboxPoller(orders, publisher.Config{
			Brokers:  cfg.KafkaBrokers,
			Topic:    cfg.KafkaTopic,
			Interval: cfg.OutboxInterval,
		}, log)
		cleanup := poller.NewPoller(carts, poller.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, log)
		closers = append(closers, outbox.Close, cleanup.Close)

		wg.Add(2)
		go func() {
			defer wg.Done()
			outbox.Run(workerCtx)
		}()
		go func() {
			defer wg.Done()
			cleanup.Run(workerCtx)
		}()
		log.Info("kafka workers started", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	router := h.NewRouter(h.RouterConfig{
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		Provider:           identity.HeaderProvider{},
		Log:                log,
	}, h.Handlers{
		Cart:      h.NewCartHandler(carts, books, directory, cfg.RequestTimeout, log),
		Orders:    h.NewOrdersHandler(workflow, books, directory, cfg.RequestTimeout, log),
		Books:     h.NewBookHandler(books, ledger, cfg.RequestTimeout, log),
		Inventory: h.NewInventoryHandler(ledger, books, cfg.RequestTimeout, log),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("bookstore starting", zap.String("port", cfg.HTTPPort), zap.String("storage", cfg.Storage))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	stopWorkers()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info("workers stopped cleanly")
	case <-shutdownCtx.Done():
		log.Warn("workers didn't stop in time")
	}
	for _, closeFn := range closers {
		closeFn()
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("failed to flush traces", zap.Error(err))
	}
	log.Info("server exited")
}

// seedStock gives every catalog book without an inventory record the
// configured stock. Existing records, retired ones included, are left alone.
func seedStock(ctx context.Context, books catalog.RepoInterface, ledger store.Ledger, stock int32, log *zap.Logger) error {
	if stock <= 0 {
		return nil
	}
	all, err := books.ListBooks(ctx, domain.BookFilter{})
	if err != nil {
		return err
	}
	seeded := 0
	for _, b := range all {
		created, err := ledger.Seed(ctx, b.ID, stock)
		if err != nil {
			return err
		}
		if created {
			seeded++
		}
	}
	log.Info("stock seeded", zap.Int("records", seeded), zap.Int32("stock", stock))
	return nil
}
