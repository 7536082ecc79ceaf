/**
 * @description
 * Migration entry point for the ledger-service's PostgreSQL store. Applies
 * the SQL migrations under migrations/ with goose.
 *
 * @dependencies
 * - database/sql, flag, log: Standard Go libraries.
 * - github.com/jackc/pgx/v5/stdlib: database/sql driver for pgx.
 * - github.com/pressly/goose/v3: Migration runner.
 */

package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/transfa/ledger-service/internal/config"
)

func main() {
	command := flag.String("command", "up", "migrate command (up|status|down)")
	dir := flag.String("dir", "migrations", "migrations directory")
	timeout := flag.Duration("timeout", time.Minute, "command timeout")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=migrate msg=\"no .env file found; using environment\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=migrate msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Fatalf("level=fatal component=migrate msg=\"database url must be configured\" env=DATABASE_URL")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=migrate msg=\"database open failed\" err=%v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("level=fatal component=migrate msg=\"dialect setup failed\" err=%v", err)
	}

	switch *command {
	case "up":
		err = goose.UpContext(ctx, db, *dir)
	case "status":
		err = goose.StatusContext(ctx, db, *dir)
	case "down":
		err = goose.DownContext(ctx, db, *dir)
	default:
		log.Fatalf("level=fatal component=migrate msg=\"unsupported command\" command=%s", *command)
	}
	if err != nil {
		log.Fatalf("level=fatal component=migrate msg=\"migration failed\" command=%s err=%v", *command, err)
	}

	log.Printf("level=info component=migrate msg=\"migration command completed\" command=%s", *command)
}
