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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/vigilai/vigil-core/internal/alerts"
	"github.com/vigilai/vigil-core/internal/config"
	"github.com/vigilai/vigil-core/internal/data"
	"github.com/vigilai/vigil-core/internal/detect"
	"github.com/vigilai/vigil-core/internal/dispatch"
	"github.com/vigilai/vigil-core/internal/pipeline"
	"github.com/vigilai/vigil-core/internal/realtime"
	"github.com/vigilai/vigil-core/internal/sampler"
	"github.com/vigilai/vigil-core/internal/storage"
)

func main() {
	configPath := flag.String("config", "config/default.yaml", "Path to config file")
	metricsAddr := flag.String("metrics", ":9100", "Metrics listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	ctx := context.Background()

	db, err := sql.Open("postgres", cfg.DatabaseURL())
	if err != nil {
		log.Fatalf("DB open error: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("DB ping error: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Redis ping error: %v", err)
	}

	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name("vigil-worker"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		log.Fatalf("NATS connect error: %v", err)
	}
	defer nc.Close()

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

	mediaRepo := data.MediaModel{DB: db}
	detectionRepo := data.DetectionModel{DB: db}
	alertRepo := data.AlertModel{DB: db}

	// Alerts born here reach websocket clients via the NATS event subject;
	// each API server relays it onto its local hub.
	events := realtime.NewNATSPublisher(nc, cfg.NATS.EventsSubject, 3)
	emitter := alerts.NewEmitter(alertRepo, events, blobs, cfg.Alerting.ConfidenceThreshold)

	worker := pipeline.NewWorker(
		mediaRepo,
		detectionRepo,
		alertRepo,
		pipeline.NewLeaseManager(rdb, cfg.LeaseTTL()),
		&sampler.MediaOpener{TargetFPS: cfg.Processing.TargetFPS},
		detect.NewNATSDetector(nc, cfg.NATS.DetectSubject),
		emitter,
		blobs,
		pipeline.Config{
			DetectorThreshold: cfg.Processing.DetectorThreshold,
			DetectTimeout:     cfg.DetectTimeout(),
			Retry: pipeline.RetryPolicy{
				MaxAttempts: cfg.Processing.MaxAttempts,
				Backoff:     cfg.RetryBackoff(),
			},
		},
	)

	consumer, err := dispatch.NewConsumer(nc, cfg.NATS.Stream, cfg.NATS.Subject,
		cfg.Processing.Workers, worker.Process)
	if err != nil {
		log.Fatalf("Consumer init error: %v", err)
	}

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
			log.Printf("[Worker] Metrics server error: %v", err)
		}
	}()

	go consumer.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[Worker] Shutting down...")
	consumer.Stop()
	log.Println("[Worker] Stopped")
}
