package main

import (
	"context"
	"log"

	"github.com/sacha-rebbouh/angeldesk-sub005/internal/bootstrap"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/shared/config"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/shared/server"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/shared/storage/db"
)

func main() {
	cfg := config.Load()

	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	if app.DB != nil {
		if err := db.RunMigrations(context.Background(), app.DB); err != nil {
			log.Fatalf("migrations: %v", err)
		}
	}

	addr := server.Addr(cfg.Port)
	log.Printf("Starting API server on %s", addr)

	if err := app.Router.Run(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
