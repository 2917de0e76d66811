package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/agenthands/moralgraph/internal/app"
	"github.com/agenthands/moralgraph/internal/logger"
	"github.com/agenthands/moralgraph/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults")
	}

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.toml"
	}
	cfg, err := app.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logg, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logg.Sync()

	ctx := context.Background()
	st, err := app.OpenStore(ctx, cfg, logg)
	if err != nil {
		logg.Fatal("failed to open store", "backend", cfg.Store.Backend, "error", err)
	}
	defer st.Close(ctx)

	r := server.NewServer(st, logg).SetupRouter()

	logg.Info("starting server", "port", cfg.Server.Port, "store", cfg.Store.Backend)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		logg.Fatal("server stopped", "error", err)
	}
}
