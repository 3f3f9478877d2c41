package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shifter/server/internal/config"
	"github.com/shifter/server/internal/database"
	"github.com/shifter/server/internal/services"
	"github.com/shifter/server/internal/storage"
	"github.com/shifter/server/pkg/logger"
)

// Housekeeping companion to the server: deletes uploads whose expiry
// has passed. Meant to be run from cron or by hand; the server itself
// never needs it to enforce expiry.
func main() {
	logger.Init()

	cfg := config.Load()

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	storageClient, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio initialization failed: %v", err)
	}

	cleanup := services.NewCleanupService(db, storageClient)

	deleted, err := cleanup.DeleteExpired(context.Background(), time.Now().UTC())
	if err != nil {
		log.Fatalf("cleanup failed: %v", err)
	}

	if deleted == 0 {
		fmt.Println("No expired files to be deleted")
		return
	}
	fmt.Printf("Successfully deleted %d expired file(s)\n", deleted)
}
