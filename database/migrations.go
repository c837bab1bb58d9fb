package database

import (
	"garden/logging"
	"garden/models"

	"gorm.io/gorm"
)

func RunMigrations(db *gorm.DB) error {
	logging.L.Info().Msg("Running database migrations...")

	err := db.AutoMigrate(
		&models.Post{},
		&models.User{},
		&models.Profile{},
		&models.Like{},
		&models.Comment{},
		&models.Subscriber{},
	)

	if err != nil {
		logging.L.Error().Err(err).Msg("Error running migrations")
		return err
	}

	logging.L.Info().Msg("Migrations completed successfully")
	return nil
}
