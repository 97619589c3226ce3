package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"cipherchat/internal/accounts"
	"cipherchat/internal/assets"
	"cipherchat/internal/config"
	"cipherchat/internal/database"
	"cipherchat/internal/httputil"
	"cipherchat/internal/keys"
	"cipherchat/internal/relay"
	"cipherchat/internal/repositories"
	"cipherchat/internal/services"
)

func main() {
	ctx := context.Background()

	godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database connections
	postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create postgres pool: %v", err)
	}
	defer postgresPool.Close()

	if err := database.Migrate(ctx, postgresPool); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to create redis client: %v", err)
	}
	defer redisClient.Close()

	// Repositories
	userRepo := repositories.NewPostgresUserRepository(postgresPool)
	keyRepo := repositories.NewPostgresKeyRepository(postgresPool)
	messageRepo := repositories.NewPostgresMessageRepository(postgresPool)
	sessionRepo := repositories.NewRedisSessionRepository(redisClient)
	presenceRepo := repositories.NewRedisPresenceRepository(redisClient)

	// Services
	authService := services.NewAuthService(userRepo, sessionRepo, cfg.JWTSecret, cfg.JWTExpiry)

	// Realtime relay
	hub := relay.NewHub()
	relayHandler := relay.NewHandler(hub, messageRepo, presenceRepo, authService)

	// HTTP surfaces
	accountHandler := accounts.NewHandler(authService)
	keyHandler := keys.NewHandler(keyRepo)
	assetHandler := assets.NewHandler(cfg.UploadDir, cfg.PublicURL)

	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	// Health check endpoints
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	accountHandler.Mount(router)
	assetHandler.MountPublic(router)
	router.Get("/ws", relayHandler.ServeWS)

	router.Group(func(r chi.Router) {
		r.Use(httputil.BearerAuth(authService))
		keyHandler.Mount(r)
		assetHandler.Mount(r)
	})

	// Start Server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	// graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("Starting server on port %s", cfg.ServerPort)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server stopped gracefully")
}
