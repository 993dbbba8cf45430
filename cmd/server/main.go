package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"storefront/config"
	"storefront/internal/adapter/handler"
	"storefront/internal/adapter/storage"
	"storefront/internal/core/service"
	"storefront/internal/port"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	setLogLevel(cfg.LogLevel)
	log.Info().Str("app", cfg.AppName).Msg("starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open mysql")
	}
	db.SetMaxOpenConns(cfg.MySQLMaxOpen)
	db.SetMaxIdleConns(cfg.MySQLMaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping mysql")
	}
	log.Info().Msg("connected to mysql")

	if err := storage.RunMigrations(db, cfg.MigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	store := storage.NewMySQLAdapter(db)

	// Redis is optional; without it the core is database-only.
	var cache port.CacheRepository
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, PoolSize: cfg.RedisPoolSize})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, running without cache")
			rdb.Close()
			rdb = nil
		} else {
			cache = storage.NewRedisAdapter(rdb)
			log.Info().Msg("connected to redis")
		}
	}

	// Services
	orderService := service.NewOrderService(store, store, cache, log.Logger, service.OrderServiceConfig{
		QueueSize: cfg.QueueSize,
		Lifecycle: service.LifecyclePolicy{MaxStageSkip: cfg.MaxStageSkip},
	})
	cartService := service.NewCartService(store, store, log.Logger)
	productService := service.NewProductService(store, log.Logger)

	// Stock-cache sync workers: refresh cached counters from the database
	// after every commit that touched stock.
	var wg sync.WaitGroup
	if cache != nil {
		for i := 0; i < cfg.WorkerCount; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				syncLoop(id, orderService.StockSyncQueue(), store, cache)
			}(i)
		}
		log.Info().Int("workers", cfg.WorkerCount).Msg("stock sync workers started")
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range orderService.StockSyncQueue() {
			}
		}()
	}

	// HTTP server
	httpHandler := handler.NewHTTPHandler(productService, cartService, orderService, store, log.Logger)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: httpHandler.Routes(),
	}
	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Info().Msg("http server stopped")

	orderService.Close()
	wg.Wait()
	log.Info().Msg("workers stopped")

	if rdb != nil {
		rdb.Close()
	}
	db.Close()
	log.Info().Msg("connections closed")
}

// syncLoop refreshes cached stock counters with the authoritative database
// value for every product ID that comes down the queue.
func syncLoop(id int, queue <-chan int64, products port.ProductRepository, cache port.CacheRepository) {
	for productID := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		product, err := products.GetProduct(ctx, productID)
		if err != nil {
			log.Warn().Err(err).Int("worker", id).Int64("product_id", productID).Msg("stock sync read failed")
			cancel()
			continue
		}
		if err := cache.SetStock(ctx, productID, product.StockQuantity); err != nil {
			log.Warn().Err(err).Int("worker", id).Int64("product_id", productID).Msg("stock sync write failed")
		}

		cancel()
	}
}

func setLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
