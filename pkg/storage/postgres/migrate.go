package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/platinummonkey/onramp/pkg/observability"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationsDir = "migrations"

// MigrationSource opens the embedded migrations as a golang-migrate source
func MigrationSource() (source.Driver, error) {
	sub, err := fs.Sub(migrationFiles, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	return src, nil
}

// Migrate applies pending migrations. golang-migrate holds a PostgreSQL
// advisory lock while it runs, so replicas starting together apply each
// migration once. The migration session borrows one connection from db and
// returns it when done; db itself stays open.
func Migrate(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	src, err := MigrationSource()
	if err != nil {
		return err
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		src.Close()
		return fmt.Errorf("failed to acquire migration connection: %w", err)
	}
	driver, err := migratepg.WithConnection(ctx, conn, &migratepg.Config{})
	if err != nil {
		conn.Close()
		src.Close()
		return fmt.Errorf("failed to create postgres migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		driver.Close()
		src.Close()
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()
	m.Log = migrateLogger{logger: logger}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.GracefulStop <- true
		case <-done:
		}
	}()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Debug("Database schema is up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("migrations interrupted: %w", err)
	}

	version, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	logger.WithField("version", version).Info("Database migrations applied")
	return nil
}

// migrateLogger routes golang-migrate's progress lines to the service logger
type migrateLogger struct {
	logger *observability.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLogger) Verbose() bool {
	return false
}
