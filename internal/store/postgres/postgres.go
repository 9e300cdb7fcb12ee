// Package postgres implements the store.EventLog interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/model"
	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// EventLog implements store.EventLog backed by a PostgreSQL database.
type EventLog struct {
	db *sql.DB
}

// Compile-time check that EventLog implements store.EventLog.
var _ store.EventLog = (*EventLog)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*EventLog, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &EventLog{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (l *EventLog) Close() error {
	return l.db.Close()
}

func (l *EventLog) Append(ctx context.Context, event *model.Event) error {
	return queryAppendEvent(ctx, l.db, event)
}

func (l *EventLog) ListByStage(ctx context.Context, stage model.Stage, afterID int64) ([]*model.Event, error) {
	return queryListByStage(ctx, l.db, stage, afterID)
}

func (l *EventLog) Unresolved(ctx context.Context, stage model.Stage, lookback time.Duration) ([]*model.Event, error) {
	return queryUnresolved(ctx, l.db, stage, time.Now().Add(-lookback))
}

func (l *EventLog) MaxID(ctx context.Context) (int64, error) {
	return queryMaxID(ctx, l.db)
}

func (l *EventLog) History(ctx context.Context, uuid string) ([]*model.Event, error) {
	return queryHistory(ctx, l.db, uuid)
}

func (l *EventLog) ListByUser(ctx context.Context, username string) ([]*model.Event, error) {
	return queryListByUser(ctx, l.db, username)
}

func (l *EventLog) ListAll(ctx context.Context, afterID int64) ([]*model.Event, error) {
	return queryListAll(ctx, l.db, afterID)
}
