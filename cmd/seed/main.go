// Seeds a fresh deployment: one active camera so uploads have a target,
// and (when auth is configured) an operator token printed to stdout.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"

	"github.com/vigilai/vigil-core/internal/config"
	"github.com/vigilai/vigil-core/internal/data"
	"github.com/vigilai/vigil-core/internal/tokens"
)

func main() {
	configPath := flag.String("config", "config/default.yaml", "Path to config file")
	name := flag.String("camera-name", "Main Entrance", "Seed camera name")
	location := flag.String("camera-location", "Ground Floor Lobby", "Seed camera location")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL())
	if err != nil {
		log.Fatalf("DB open error: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("DB ping error: %v", err)
	}

	ctx := context.Background()

	// Idempotent by name: rerunning the seeder must not stack cameras.
	var exists bool
	err = db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM cameras WHERE name = $1)`, *name,
	).Scan(&exists)
	if err != nil {
		log.Fatalf("Camera lookup error: %v", err)
	}

	if exists {
		log.Printf("[Seed] Camera %q already present, skipping", *name)
	} else {
		cam := &data.Camera{
			Name:     *name,
			Location: *location,
			Status:   "active",
		}
		if err := (data.CameraModel{DB: db}).Create(ctx, cam); err != nil {
			log.Fatalf("Camera insert error: %v", err)
		}
		log.Printf("[Seed] Created camera %s (%q)", cam.ID, cam.Name)
	}

	if cfg.Auth.JWTSigningKey != "" {
		token, err := tokens.NewManager(cfg.Auth.JWTSigningKey, 24*time.Hour).Generate("seed-operator", "operator")
		if err != nil {
			log.Fatalf("Token generate error: %v", err)
		}
		fmt.Println(token)
	}
}
