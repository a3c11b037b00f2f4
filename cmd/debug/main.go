package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/prite36/floraseven/internal/auth"
	"github.com/prite36/floraseven/internal/classifier"
	"github.com/prite36/floraseven/internal/config"
	"github.com/prite36/floraseven/internal/service"
	"github.com/prite36/floraseven/internal/store"
	"github.com/prite36/floraseven/internal/thresholds"
)

// debug prints one health snapshot from the configured database, classifies
// a local image, or hashes a password for AUTH_PASSWORD_HASH.
func main() {
	hashPassword := flag.String("hash-password", "", "print the bcrypt hash of the given password and exit")
	image := flag.String("image", "", "classify this image file and store the result before computing the status")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			log.Fatalf("Failed to hash password: %v", err)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	db, err := store.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	th := thresholds.NewStore(db, cfg.Thresholds)
	if err := th.Init(ctx); err != nil {
		log.Fatalf("Failed to initialise thresholds: %v", err)
	}

	cls, err := classifier.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create classifier: %v", err)
	}

	// No command transport or live clients in a one-shot run.
	monitor := service.NewMonitor(cfg, db, th, cls, nil, nil)

	if *image != "" {
		data, err := os.ReadFile(*image)
		if err != nil {
			log.Fatalf("Failed to read image: %v", err)
		}
		result, err := monitor.AnalyzeImage(ctx, data)
		if err != nil {
			log.Printf("[WARN] Image analysis failed: %v", err)
		} else {
			log.Printf("[INFO] %s classified as %s (score %d)", result.Filename, result.Visual.Label, result.Visual.Score)
		}
	}

	log.Println("Computing status directly...")
	status, err := monitor.ComputeStatus(ctx)
	if err != nil {
		log.Fatalf("Failed to compute status: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(status); err != nil {
		log.Fatalf("Failed to encode status: %v", err)
	}
	log.Println("Debug run finished.")
}
