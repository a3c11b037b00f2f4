// Package app wires the FloraSeven server together.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prite36/floraseven/internal/classifier"
	"github.com/prite36/floraseven/internal/config"
	"github.com/prite36/floraseven/internal/mqtt"
	"github.com/prite36/floraseven/internal/scheduler"
	"github.com/prite36/floraseven/internal/server"
	"github.com/prite36/floraseven/internal/service"
	"github.com/prite36/floraseven/internal/slack"
	"github.com/prite36/floraseven/internal/store"
	"github.com/prite36/floraseven/internal/thresholds"
	"github.com/prite36/floraseven/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	cfg        *config.Config
	store      *store.Store
	classifier classifier.Classifier
	hub        *websocket.Hub
	mqttClient *mqtt.Client
	monitor    *service.Monitor
	scheduler  *scheduler.Scheduler
	slack      *slack.Client
	server     *http.Server

	cancel context.CancelFunc
}

// NewApp opens storage and builds every component. Nothing talks to the
// network until Start.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := store.Open(cfg)
	if err != nil {
		return nil, err
	}

	th := thresholds.NewStore(db, cfg.Thresholds)
	if err := th.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}

	cls, err := classifier.New(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create classifier: %w", err)
	}

	hub := websocket.NewHub()
	mqttClient := mqtt.NewClient(cfg)
	for _, id := range []string{cfg.Nodes.PlantNodeID, cfg.Nodes.HubNodeID} {
		if seen, ok, err := db.LastSeen(ctx, id); err == nil && ok {
			mqttClient.RestoreLastSeen(id, seen)
		}
	}
	monitor := service.NewMonitor(cfg, db, th, cls, mqttClient, hub)
	slackClient := slack.NewClient(cfg.Slack.BotToken, cfg.Slack.ChannelID)

	sched, err := scheduler.NewScheduler(cfg, monitor, slackClient, mqttClient)
	if err != nil {
		db.Close()
		return nil, err
	}

	srv := server.New(cfg, server.Deps{
		Monitor: monitor,
		DB:      db,
		Nodes:   mqttClient,
		Hub:     hub,
		Slack:   slackClient,
	})

	return &App{
		cfg:        cfg,
		store:      db,
		classifier: cls,
		hub:        hub,
		mqttClient: mqttClient,
		monitor:    monitor,
		scheduler:  sched,
		slack:      slackClient,
		server:     srv,
	}, nil
}

// Start runs every component and blocks until SIGINT or SIGTERM.
func (a *App) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	go a.hub.Run(ctx)
	a.mqttClient.Connect(a.monitor)

	if err := a.scheduler.Start(); err != nil {
		a.Stop()
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("[INFO] Starting API server on %s", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	a.slack.SendInfo("FloraSeven started", fmt.Sprintf("Monitoring %s via hub %s.", a.cfg.Nodes.PlantNodeID, a.cfg.Nodes.HubNodeID))
	log.Println("[INFO] FloraSeven server started. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var err error
	select {
	case <-sigChan:
	case err = <-serverErr:
		log.Printf("[ERROR] API server failed: %v", err)
	}

	a.Stop()
	return err
}

func (a *App) Stop() {
	log.Println("[INFO] Shutting down...")

	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.server.Shutdown(ctx); err != nil {
			log.Printf("[WARN] API server shutdown: %v", err)
		}
		cancel()
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.mqttClient != nil {
		a.mqttClient.Close()
	}
	if a.cancel != nil {
		a.cancel()
	}
	if c, ok := a.classifier.(io.Closer); ok {
		c.Close()
	}
	if a.store != nil {
		a.store.Close()
	}

	log.Println("[INFO] FloraSeven server stopped")
}
