package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/lib/pq"

	"github.com/yourusername/exam-api/internal/config"
	"github.com/yourusername/exam-api/pkg/database"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the config file")
	up := flag.Bool("up", false, "apply all pending migrations")
	down := flag.Int("down", 0, "roll back N migrations")
	force := flag.Int("force", -1, "force the schema version without running migrations (clears the dirty flag)")
	version := flag.Bool("version", false, "print the current schema version")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal(err)
	}

	m, err := database.NewMigrator(db, cfg.Database.MigrationsPath)
	if err != nil {
		log.Fatal(err)
	}

	switch {
	case *force >= 0:
		fmt.Printf("Forcing migration version to %d...\n", *force)
		if err := m.Force(*force); err != nil {
			log.Fatalf("Failed to force version: %v", err)
		}
	case *down > 0:
		fmt.Printf("Rolling back %d migration(s)...\n", *down)
		if err := m.Steps(-*down); err != nil {
			log.Fatalf("Rollback failed: %v", err)
		}
	case *up:
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Migration failed: %v", err)
		}
	case *version:
	default:
		flag.Usage()
		os.Exit(2)
	}

	v, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		log.Fatal(err)
	}
	fmt.Printf("Schema version: %d (dirty: %t)\n", v, dirty)
}
