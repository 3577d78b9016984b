package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/af-corp/concierge/internal/config"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Applies the transport_keys and message_diary schema.
func main() {
	direction := flag.String("direction", "up", "up, down, version or force")
	steps := flag.Int("steps", 0, "number of steps (0 = all)")
	force := flag.Int("force-version", -1, "version to record with -direction force")
	yes := flag.Bool("yes", false, "confirm a full down migration")
	dbURL := flag.String("db-url", "", "database URL (overrides DATABASE_URL and gateway.yaml)")
	configDir := flag.String("config", "configs", "directory holding gateway.yaml")
	migrationsPath := flag.String("path", "migrations", "path to migrations directory")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	dsn, source := resolveDSN(*dbURL, *configDir)
	logger.Info("using database", "source", source)

	m, err := migrate.New("file://"+*migrationsPath, dsn)
	if err != nil {
		fatal(logger, "failed to create migrator", err)
	}
	defer m.Close()

	switch *direction {
	case "up":
		if *steps > 0 {
			err = m.Steps(*steps)
		} else {
			err = m.Up()
		}
	case "down":
		if *steps > 0 {
			err = m.Steps(-*steps)
			break
		}
		if !*yes {
			fatal(logger, "refusing full down migration", errors.New("it drops every transport key and the message diary; pass -yes or -steps"))
		}
		err = m.Down()
	case "force":
		if *force < 0 {
			fatal(logger, "missing version", errors.New("-direction force needs -force-version"))
		}
		err = m.Force(*force)
	case "version":
	default:
		fatal(logger, "invalid direction", fmt.Errorf("%q (use up, down, version or force)", *direction))
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		fatal(logger, "migration failed", err)
	}

	v, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		fatal(logger, "failed to read schema version", err)
	}
	fmt.Printf("migration %s complete (version: %d, dirty: %v)\n", *direction, v, dirty)
	if dirty {
		fmt.Println("schema is dirty: fix the failed migration, then run -direction force -force-version <last good>")
	}
}

// resolveDSN prefers the flag, then DATABASE_URL, then the database section
// of gateway.yaml so the server and the migrator agree on one database.
func resolveDSN(flagURL, configDir string) (string, string) {
	if flagURL != "" {
		return flagURL, "flag"
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v, "env"
	}
	cfg := config.DefaultConfig()
	path := filepath.Join(configDir, "gateway.yaml")
	if err := config.LoadFile(path, cfg); err != nil {
		slog.Warn("gateway config unreadable, using defaults", "path", path, "error", err)
		return cfg.Database.DSN(), "defaults"
	}
	return cfg.Database.DSN(), path
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
