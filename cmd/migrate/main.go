// Command migrate applies the schema migrations and exits. The service also
// migrates on startup; this exists for operators who want schema changes
// applied out of band.
package main

import (
	"context"
	"database/sql"
	"flag"
	"os"

	"github.com/rs/zerolog"

	"PerpSettle/internal/config"
	"PerpSettle/internal/observability"
	"PerpSettle/internal/persistence"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("load config")
	}
	log := observability.NewLogger(cfg.Log.Level, cfg.Log.Console)

	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open postgres")
	}
	defer db.Close()

	if err := persistence.Migrate(context.Background(), db, log); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}
	log.Info().Msg("migrations applied")
}
