//go:build ignore

// Seeds the demo tenants into the configured database:
//
//	go run scripts/seed.go
package main

import (
	"context"
	"log"

	"github.com/hugh/crewbase/internal/auth"
	"github.com/hugh/crewbase/internal/database"
	"github.com/hugh/crewbase/internal/seed"
	"github.com/hugh/crewbase/pkg/config"
	"github.com/hugh/crewbase/pkg/util"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env, cfg.Server.LogLevel)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	seeded, err := seed.Run(context.Background(), db, auth.HashPassword, logger)
	if err != nil {
		log.Fatalf("failed to seed demo data: %v", err)
	}
	if !seeded {
		log.Println("Database already has tenants, nothing to do")
		return
	}

	for _, t := range seed.DemoTenants {
		log.Printf("%s: %s / %s", t.CompanyName, t.AdminEmail, seed.DemoPassword)
	}
}
