package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"

	"github.com/vigilai/vigil-core/internal/alerts"
	"github.com/vigilai/vigil-core/internal/api"
	"github.com/vigilai/vigil-core/internal/config"
	"github.com/vigilai/vigil-core/internal/data"
	"github.com/vigilai/vigil-core/internal/dispatch"
	"github.com/vigilai/vigil-core/internal/media"
	"github.com/vigilai/vigil-core/internal/realtime"
	"github.com/vigilai/vigil-core/internal/storage"
	"github.com/vigilai/vigil-core/internal/tokens"
)

func main() {
	configPath := flag.String("config", "config/default.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	ctx := context.Background()

	// DB
	db, err := sql.Open("postgres", cfg.DatabaseURL())
	if err != nil {
		log.Fatalf("DB open error: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("DB ping error: %v", err)
	}

	// NATS (publish side of the job queue)
	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name("vigil-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		log.Fatalf("NATS connect error: %v", err)
	}
	defer nc.Close()

	queue, err := dispatch.NewQueue(nc, cfg.NATS.Stream, cfg.NATS.Subject)
	if err != nil {
		log.Fatalf("Queue init error: %v", err)
	}

	// Blob storage
	blobs, err := storage.New(ctx, storage.Config{
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		Bucket:    cfg.Storage.Bucket,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		PathStyle: cfg.Storage.PathStyle,
	})
	if err != nil {
		log.Fatalf("Storage init error: %v", err)
	}

	// Repositories and services
	cameraRepo := data.CameraModel{DB: db}
	mediaRepo := data.MediaModel{DB: db}
	detectionRepo := data.DetectionModel{DB: db}
	alertRepo := data.AlertModel{DB: db}

	hub := realtime.NewHub()
	relay, err := realtime.NewNATSRelay(nc, cfg.NATS.EventsSubject, hub)
	if err != nil {
		log.Fatalf("Event relay error: %v", err)
	}
	defer relay.Unsubscribe()

	mediaSvc := media.NewService(cameraRepo, mediaRepo, blobs, queue, detectionRepo, alertRepo)

	// Lifecycle updates go out over NATS too, so every server instance's
	// websocket clients see them, not just this one's.
	alertSvc := alerts.NewService(alertRepo, realtime.NewNATSPublisher(nc, cfg.NATS.EventsSubject, 3))

	var tokenMgr *tokens.Manager
	if cfg.Auth.JWTSigningKey != "" {
		tokenMgr = tokens.NewManager(cfg.Auth.JWTSigningKey, time.Hour)
	} else {
		log.Println("[Server] JWT_SIGNING_KEY not set, API auth disabled")
	}

	router := api.NewRouter(api.Deps{
		Media:     api.NewMediaHandler(mediaSvc, detectionRepo, blobs),
		Alerts:    api.NewAlertHandler(alertSvc),
		Analytics: api.NewAnalyticsHandler(data.AnalyticsModel{DB: db}),
		WS:        api.NewWSHandler(hub, tokenMgr),
		Tokens:    tokenMgr,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[Server] Listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[Server] Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Server] Shutdown error: %v", err)
	}
	log.Println("[Server] Stopped")
}
