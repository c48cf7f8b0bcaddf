package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spritenest-api/internal/cache"
	"spritenest-api/internal/config"
	"spritenest-api/internal/download"
	"spritenest-api/internal/handler"
	"spritenest-api/internal/identity"
	"spritenest-api/internal/middleware"
	"spritenest-api/internal/repository"
	"spritenest-api/internal/router"
	"spritenest-api/internal/service"
	"spritenest-api/internal/storage"

	"github.com/redis/go-redis/v9"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting SpriteNest API...")

	// Load configuration
	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)

	// Initialize asset repository based on config
	var assetRepo repository.AssetRepository
	var downloadRepo repository.DownloadRepository
	switch cfg.Database.Type {
	case "postgres", "postgresql":
		pgRepo, err := repository.NewPostgresRepository(cfg.Database.PostgresDSN())
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL: %v", err)
		}
		defer pgRepo.Close()
		assetRepo = pgRepo
		downloadRepo = pgRepo
		log.Println("PostgreSQL repository initialized")
	case "mysql":
		myRepo, err := repository.NewMySQLRepository(cfg.Database.MySQLDSN())
		if err != nil {
			log.Fatalf("Failed to initialize MySQL: %v", err)
		}
		defer myRepo.Close()
		assetRepo = myRepo
		downloadRepo = myRepo
		log.Println("MySQL repository initialized")
	default: // sqlite
		sqliteRepo, err := repository.NewSQLiteRepository(cfg.Database.Path)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite: %v", err)
		}
		defer sqliteRepo.Close()
		assetRepo = sqliteRepo
		downloadRepo = sqliteRepo
		log.Println("SQLite repository initialized")
	}

	// Optional MongoDB download log takes over the append-only events
	if cfg.Database.MongoURI != "" {
		mongoRepo, err := repository.NewMongoDownloadRepository(
			cfg.Database.MongoURI,
			cfg.Database.MongoDatabase,
			cfg.Database.MongoCollection,
		)
		if err != nil {
			log.Printf("Warning: MongoDB connection failed, keeping relational download log: %v", err)
		} else {
			defer mongoRepo.Close()
			downloadRepo = mongoRepo
			log.Println("MongoDB download log initialized")
		}
	}

	// Initialize Redis client (optional)
	var redisClient *redis.Client
	if cfg.Cache.Type == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddress(),
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("Warning: Redis connection failed: %v", err)
			redisClient = nil
		} else {
			log.Println("Redis client initialized")
		}
		cancel()
	}

	// Initialize cache
	var appCache cache.Cache
	if redisClient != nil {
		appCache = cache.NewRedisCache(redisClient, "")
	} else {
		memCache := cache.NewMemoryCache()
		defer memCache.Close()
		appCache = memCache
		log.Println("In-memory cache initialized")
	}

	// Initialize Redis download buffer
	var redisBuffer *cache.RedisDownloadBuffer
	if redisClient != nil {
		flushFunc := service.CreateFlushFunc(downloadRepo)
		buffer, err := cache.NewRedisDownloadBuffer(redisClient, cache.RedisBufferConfig{
			FlushInterval: 30 * time.Second,
		}, flushFunc)
		if err != nil {
			log.Printf("Warning: Redis buffer initialization failed: %v", err)
		} else {
			redisBuffer = buffer
			log.Println("Redis download buffer initialized")
		}
	}

	// Initialize object storage
	var store storage.Storage
	var localStore *storage.LocalStorage
	switch cfg.Storage.Backend {
	case "gcs":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		gcsStore, err := storage.NewGCSStorage(ctx, cfg.Storage.GCSBucket, cfg.Storage.CDNDomain)
		cancel()
		if err != nil {
			log.Fatalf("Failed to initialize GCS storage: %v", err)
		}
		defer gcsStore.Close()
		store = gcsStore
		log.Printf("GCS storage initialized (bucket %s)", cfg.Storage.GCSBucket)
	default: // local
		var err error
		localStore, err = storage.NewLocalStorage(cfg.Storage.LocalRoot, cfg.Storage.PublicBaseURL, cfg.Storage.SigningSecret)
		if err != nil {
			log.Fatalf("Failed to initialize local storage: %v", err)
		}
		store = localStore
		log.Printf("Local storage initialized (root %s)", cfg.Storage.LocalRoot)
	}

	// Identity provider client
	identityClient := identity.NewClient(identity.Config{
		ProviderURL: cfg.Identity.ProviderURL,
		APIKey:      cfg.Identity.APIKey,
		JWTSecret:   cfg.Identity.JWTSecret,
		CacheTTL:    cfg.Identity.CacheTTL,
	}, appCache)

	// Download resolver
	resolver := download.New(store, download.Config{
		HostMarker: cfg.Identity.ProviderURL,
		PublicBase: store.PublicURL(""),
		SignedTTL:  cfg.Storage.SignedURLTTL,
	})

	// Initialize services
	assetService := service.NewAssetService(assetRepo, store, appCache, cfg.Cache.TTL)
	downloadService := service.NewDownloadService(assetRepo, downloadRepo, redisBuffer, resolver)

	// Initialize handlers
	healthHandler := handler.New()
	assetHandler := handler.NewAssetHandler(assetService)
	downloadHandler := handler.NewDownloadHandler(downloadService)
	authHandler := handler.NewAuthHandler(identityClient)
	adminHandler := handler.NewAdminHandler(redisBuffer, assetRepo, downloadService, cfg.Database.Type)

	var filesHandler *handler.FilesHandler
	if localStore != nil {
		filesHandler = handler.NewFilesHandler(localStore)
	}

	// Auth middleware with injected dependencies (NO GLOBALS!)
	authCfg := middleware.AuthConfig{Identity: identityClient}

	// Create router
	r := router.New(router.Config{
		Handler:         healthHandler,
		AssetHandler:    assetHandler,
		DownloadHandler: downloadHandler,
		AuthHandler:     authHandler,
		AdminHandler:    adminHandler,
		FilesHandler:    filesHandler,
		RequireAuth:     middleware.RequireAuth(authCfg),
		OptionalAuth:    middleware.OptionalAuth(authCfg),
		AdminLoginKey:   cfg.App.LoginKey,
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
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Close Redis buffer first (flushes pending events)
	if redisBuffer != nil {
		log.Println("Closing Redis buffer...")
		redisBuffer.Close()
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
