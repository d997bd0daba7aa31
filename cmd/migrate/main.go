package main

import (
	"context"
	"log"
	"time"

	"github.com/hackgods/practice-booking-engine/internal/config"
	"github.com/hackgods/practice-booking-engine/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pool.Close()

	n, err := db.Migrate(pool)
	if err != nil {
		log.Fatalf("migration error: %v", err)
	}
	log.Printf("applied %d migrations", n)
}
