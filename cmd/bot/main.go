package main

import (
	"context"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"forgebot/internal/cache"
	"forgebot/internal/command"
	"forgebot/internal/config"
	"forgebot/internal/handler"
	"forgebot/internal/middleware"
	"forgebot/internal/repository"
	"forgebot/internal/router"
	"forgebot/internal/service"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting forgebot...")

	// Load configuration
	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)
	if cfg.App.IsProduction() && cfg.Server.APIKey == "" {
		log.Fatal("API_KEY must be set in production")
	}

	// One seeded source for the store layer's self-heal rolls.
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var rngMu sync.Mutex
	roll := func() float64 {
		rngMu.Lock()
		defer rngMu.Unlock()
		return rng.Float64()
	}

	// Initialize document stores based on config
	var stores repository.Stores
	switch cfg.Store.Type {
	case "mongodb", "mongo":
		mongoStore, err := repository.NewMongo(cfg.Store.MongoURI, cfg.Store.MongoDatabase)
		if err != nil {
			log.Fatalf("Failed to initialize MongoDB: %v", err)
		}
		defer mongoStore.Close()
		stores = mongoStore.Stores(roll)
		log.Println("MongoDB stores initialized")
	default: // memory
		stores = repository.NewMemoryStores(roll)
		log.Println("In-memory stores initialized")
	}

	// Initialize cache based on config
	var appCache cache.Cache
	switch cfg.Cache.Type {
	case "redis":
		redisCache, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddress(),
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			log.Fatalf("Failed to initialize Redis cache: %v", err)
		}
		defer redisCache.Close()
		appCache = redisCache
		log.Println("Redis cache initialized")
	default: // memory
		memCache := cache.NewMemoryCache()
		defer memCache.Close()
		appCache = memCache
		log.Println("In-memory cache initialized")
	}

	// Initialize the economy service and background tickers
	svc := service.New(stores, appCache, cfg.Game)
	tickers := svc.Tickers()
	for _, t := range tickers {
		t.Start()
	}

	// Initialize handlers
	dispatcher := command.New(svc)
	healthHandler := handler.New(svc, cfg.App.Version)
	commandHandler := handler.NewCommandHandler(dispatcher)
	adminHandler := handler.NewAdminHandler(stores, appCache)

	// Create router
	r := router.New(router.Config{
		Handler:        healthHandler,
		CommandHandler: commandHandler,
		AdminHandler:   adminHandler,
		AuthMiddleware: middleware.APIKeyAuth(cfg.Server.APIKey),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	// Stop tickers first so no sweep runs against closing stores.
	for _, t := range tickers {
		t.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
