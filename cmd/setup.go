package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/setlist/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase writes a config file if none exists, then initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	configPath := r.configPath
	if configPath == "" {
		configPath = "config.toml"
	}

	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else if config, err := shared.LoadConfig(configPath); err != nil {
			r.logger.Warn("failed to load created config, using defaults", "error", err)
		} else {
			r.logger.Info("config file created", "path", configPath)
			r.config = config
		}
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)

	// OpenDatabase runs pending migrations.
	if _, err := r.openDB(); err != nil {
		return err
	}

	var version int
	if err := r.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	r.writePlain("✓ Database ready at %s (schema version %d)\n", r.config.Database.Path, version)
	return nil
}

// setupCommand handles setup operations for the config file and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create a config file, initialize the database and run migrations",
		Action: r.SetupDatabase,
	}
}
