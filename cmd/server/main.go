package main

import (
	"log"
	"net/http"
	"os"

	"github.com/kdimtricp/trainbox/internal/api"
	"github.com/kdimtricp/trainbox/internal/config"
	"github.com/kdimtricp/trainbox/internal/database"
	"github.com/kdimtricp/trainbox/internal/dataset"
	"github.com/kdimtricp/trainbox/internal/jobs"
	"github.com/kdimtricp/trainbox/internal/trainer"
	"github.com/kdimtricp/trainbox/internal/watcher"
	"github.com/kdimtricp/trainbox/internal/ws"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal("Invalid configuration:", err)
	}

	store, err := dataset.NewStore(cfg.DataDir)
	if err != nil {
		log.Fatal("Failed to initialize dataset store:", err)
	}

	db, err := database.NewDB(cfg.DBPath)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer db.Close()

	runRepo := database.NewRunRepository(db)

	hub := ws.NewHub()
	go hub.Run()

	runner := trainer.NewExecRunner(cfg.TrainCmd, cfg.VerifyCmd)
	orchestrator := jobs.NewOrchestrator(runner, runner, store, runRepo, hub)

	wsServer := ws.NewServer(hub, store, orchestrator, cfg.MaxImageBytes)

	fsWatcher, err := watcher.New(store.BasePath(), hub.NotifyDatasetChanged)
	if err != nil {
		log.Fatal("Failed to watch dataset root:", err)
	}
	defer fsWatcher.Close()
	go fsWatcher.Start()

	// The channel's own mutations already broadcast their invalidation; the
	// watcher only reports out-of-band changes.
	wsServer.OnMutation(fsWatcher.Suppress)

	app := &api.App{
		Store: store,
		Runs:  runRepo,
		WS:    wsServer,
	}

	router := api.NewRouter(app)

	log.Printf("Server starting on %s", cfg.Addr)
	log.Printf("Dataset root: %s", cfg.DataDir)
	log.Printf("Run database: %s", cfg.DBPath)
	log.Printf("Max image size: %d bytes", cfg.MaxImageBytes)
	log.Printf("Train command: %s", cfg.TrainCmd)
	log.Printf("Verify command: %s", cfg.VerifyCmd)

	if err := http.ListenAndServe(cfg.Addr, router); err != nil {
		log.Fatal(err)
	}
}
