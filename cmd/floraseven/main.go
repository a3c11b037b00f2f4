package main

import (
	"context"
	"log"

	"github.com/prite36/floraseven/internal/app"
	"github.com/prite36/floraseven/internal/config"
)

func main() {
	log.Println("Starting application...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	a, err := app.NewApp(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if err := a.Start(); err != nil {
		log.Fatalf("Application stopped with error: %v", err)
	}
}
