package main

import (
	"context"
	"errors"
	"go-roomchat/internal/activity"
	"go-roomchat/internal/chat"
	"go-roomchat/internal/config"
	"go-roomchat/internal/db"
	myMiddleware "go-roomchat/internal/middleware"
	"go-roomchat/internal/presence"
	"log"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

func main() {
	// 1. Config & Flags
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	ctx := context.Background()

	// 2. Presence ledger (optional)
	var (
		database  *db.Database
		store     activity.PresenceStore
		presenceH *presence.Handler
	)
	if cfg.DBDSN != "" {
		database, err = db.NewDatabase(ctx, cfg.DBDSN)
		if err != nil {
			log.Fatalf("❌ Failed to connect to DB: %v", err)
		}
		log.Println("✅ Connected to PostgreSQL")

		if err := database.AutoMigrate(ctx); err != nil {
			log.Fatalf("❌ Migration failed: %v", err)
		}
		repo := presence.NewRepository(database.Conn)
		if n, err := repo.ResetAll(ctx); err != nil {
			log.Printf("⚠️ Failed to reset presence: %v", err)
		} else {
			log.Printf("✅ Presence ledger ready (%d stale rows reset)", n)
		}
		store = repo
		presenceH = presence.NewHandler(repo)
	} else {
		presenceH = presence.NewHandler(nil)
		log.Println("ℹ️ DB_DSN not set, presence ledger disabled")
	}

	// 3. Event mirror (optional)
	var (
		redisClient *redis.Client
		publisher   activity.Publisher
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		if _, err := redisClient.Ping(ctx).Result(); err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		log.Println("✅ Connected to Redis")
		publisher = activity.NewRedisPublisher(redisClient, cfg.RedisChannelPrefix)
	} else {
		log.Println("ℹ️ REDIS_ADDR not set, event mirror disabled")
	}

	// 4. Hub
	recorder := activity.NewRecorder(store, publisher, activity.DefaultBuffer)
	hub := chat.NewHub(cfg.HubOptions(recorder))
	chatHandler := chat.NewHandler(hub, cfg.AllowedOrigins)

	// 5. Define Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/api/rooms", chatHandler.ListRooms)
	r.Get("/api/rooms/{room}/presence", presenceH.GetRoomPresence)
	r.With(myMiddleware.RequireJoin).Get("/ws", chatHandler.ServeWs)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("🚀 Server starting on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	// 6. Graceful shutdown: stop accepting, close sessions, drain activity, close backends
	wait := gfshutdown.GracefulShutdown(
		ctx,
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"chat": func(ctx context.Context) error {
				if err := srv.Shutdown(ctx); err != nil {
					log.Printf("HTTP server shutdown error: %v", err)
				}
				if err := hub.Shutdown(ctx); err != nil {
					log.Printf("Hub shutdown error: %v", err)
				}
				if err := recorder.Close(ctx); err != nil {
					log.Printf("Activity drain error: %v", err)
				}
				if redisClient != nil {
					redisClient.Close()
				}
				if database != nil {
					database.Close()
				}
				return nil
			},
		},
	)

	exitCode := <-wait
	log.Printf("Server exited with code: %d", exitCode)
	os.Exit(exitCode)
}
