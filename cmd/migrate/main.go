// Command migrate управляет встроенными миграциями схемы checkout-service.
//
//	migrate [-dsn DSN] [-steps N] [-timeout 30s] up|down|status
//
// DSN по умолчанию берётся из конфигурации сервиса (CHECKOUT_CONFIG_FILE, CHECKOUT_POSTGRES_DSN).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/app"
	"github.com/vladislavdragonenkov/checkout/internal/storage/postgres"
)

const defaultTimeout = 30 * time.Second

var errNoDSN = errors.New("postgres dsn is not configured: pass -dsn or set CHECKOUT_POSTGRES_DSN")

// migrator: операции Store, которые нужны CLI.
type migrator interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	MigrationStatus(ctx context.Context) (int64, int, error)
	Close() error
}

type openFunc func(ctx context.Context, dsn string) (migrator, error)

func openStore(ctx context.Context, dsn string) (migrator, error) {
	return postgres.Open(ctx, dsn)
}

func main() {
	if err := run(os.Args[1:], os.Stdout, app.LoadConfig, openStore); err != nil {
		log.WithError(err).Error("migrate failed")
		os.Exit(1)
	}
}

// run разбирает аргументы, подключается к базе и печатает итоговую версию схемы.
func run(args []string, stdout io.Writer, loadConfig func() (app.Config, error), open openFunc) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	dsn := fs.String("dsn", "", "PostgreSQL DSN, overrides service config")
	steps := fs.Int("steps", 0, "migrations to apply (0 = all) or roll back (0 = 1)")
	timeout := fs.Duration("timeout", defaultTimeout, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	if fs.NArg() != 1 {
		return errors.New("usage: migrate [-dsn DSN] [-steps N] [-timeout D] up|down|status")
	}

	target := strings.TrimSpace(*dsn)
	if target == "" {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		target = cfg.PostgresDSN
	}
	if target == "" {
		return errNoDSN
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := open(ctx, target)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer store.Close()

	summary, err := runMigration(ctx, store, fs.Arg(0), *steps)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(stdout, summary)
	return nil
}

// runMigration выполняет команду и возвращает строку с итоговой версией схемы.
func runMigration(ctx context.Context, m migrator, command string, steps int) (string, error) {
	var label string
	switch strings.ToLower(strings.TrimSpace(command)) {
	case "up":
		if err := m.MigrateUp(ctx, steps); err != nil {
			return "", fmt.Errorf("migrate up: %w", err)
		}
		label = "schema migrated up"
	case "down":
		if err := m.MigrateDown(ctx, max(steps, 1)); err != nil {
			return "", fmt.Errorf("migrate down: %w", err)
		}
		label = "schema rolled back"
	case "status":
		label = "schema status"
	default:
		return "", fmt.Errorf("unknown command %q (use up|down|status)", command)
	}

	version, applied, err := m.MigrationStatus(ctx)
	if err != nil {
		return "", fmt.Errorf("read migration status: %w", err)
	}
	return fmt.Sprintf("%s: version=%d applied=%d", label, version, applied), nil
}
