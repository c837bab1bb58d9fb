// Command seed populates a development database with fake data.
package main

import (
	"context"
	"flag"

	"garden/common"
	"garden/config"
	"garden/database"
	"garden/logging"
	"garden/seed"
	"garden/store"
)

func main() {
	readers := flag.Int("readers", 20, "Number of reader accounts to create")
	posts := flag.Int("posts", 15, "Number of posts to create")
	admin := flag.String("admin", "admin@example.com", "Admin account email (empty to skip)")
	clean := flag.Bool("clean", false, "Delete existing data before seeding")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.L.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Setup(cfg.LogFormat, cfg.LogLevel)
	if cfg.IsProduction() {
		logging.L.Fatal().Msg("Refusing to seed a production database")
	}

	db, err := common.ConnectDb(cfg)
	if err != nil {
		logging.L.Fatal().Err(err).Msg("Failed to connect to database")
	}
	if err := database.RunMigrations(db); err != nil {
		logging.L.Fatal().Err(err).Msg("Failed to run migrations")
	}

	_, err = seed.NewSeeder(store.New(db, nil), seed.Options{
		Readers:    *readers,
		Posts:      *posts,
		AdminEmail: *admin,
		Clean:      *clean,
	}).Run(context.Background())
	if err != nil {
		logging.L.Fatal().Err(err).Msg("Seeding failed")
	}
	logging.L.Info().Str("password", seed.Password).Msg("All done; every seeded account shares this password")
}
