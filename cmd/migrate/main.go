package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/geocoder89/docdirectory/internal/config"
	"github.com/geocoder89/docdirectory/internal/db"
)

// migrate applies (default) or rolls back one step of the embedded schema:
//
//	migrate [up|down]
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	pool, err := db.NewPool(cfg.DBURL, 2)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}

	defer pool.Close()

	direction := "up"
	if len(os.Args) > 1 {
		direction = os.Args[1]
	}

	switch direction {
	case "up":
		err = db.Migrate(ctx, pool)
	case "down":
		err = db.MigrateDown(ctx, pool)
	default:
		log.Fatalf("unknown direction %q, want up or down", direction)
	}

	if err != nil {
		log.Fatalf("migrate %s: %v", direction, err)
	}

	log.Printf("migrate %s complete", direction)
}
