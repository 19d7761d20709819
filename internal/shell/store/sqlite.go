package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/artpar/relaunch/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeFormat sorts lexically in chronological order.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := sqlx.Open("sqlite3", dsn+sep+"_busy_timeout=5000")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	// Every pooled connection to :memory: would get its own empty database.
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	// Run migrations
	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return NewStoreError("Ping", "", "", err.Error(), ErrConnectionFailed)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Deployment Operations
// =============================================================================

// deploymentRow represents a deployment row in the database.
type deploymentRow struct {
	ID           string  `db:"id"`
	Name         string  `db:"name"`
	Image        string  `db:"image"`
	Success      bool    `db:"success"`
	Stage        string  `db:"stage"`
	ErrorMessage string  `db:"error_message"`
	Warnings     *string `db:"warnings"`
	StartedAt    string  `db:"started_at"`
	FinishedAt   string  `db:"finished_at"`
}

func (s *SQLiteStore) CreateDeployment(ctx context.Context, record *domain.DeploymentRecord) error {
	return createDeployment(ctx, s.db, record)
}

func (s *SQLiteStore) GetDeployment(ctx context.Context, id string) (*domain.DeploymentRecord, error) {
	return getDeployment(ctx, s.db, id)
}

func (s *SQLiteStore) ListDeployments(ctx context.Context, opts ListOptions) ([]domain.DeploymentRecord, error) {
	return listDeployments(ctx, s.db, opts)
}

func (s *SQLiteStore) ListDeploymentsByName(ctx context.Context, name string, opts ListOptions) ([]domain.DeploymentRecord, error) {
	return listDeploymentsByName(ctx, s.db, name, opts)
}

func (s *SQLiteStore) DeleteDeploymentsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return deleteDeploymentsBefore(ctx, s.db, cutoff)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// =============================================================================
// Transaction Store
// =============================================================================

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) CreateDeployment(ctx context.Context, record *domain.DeploymentRecord) error {
	return createDeployment(ctx, s.tx, record)
}

func (s *txSQLiteStore) GetDeployment(ctx context.Context, id string) (*domain.DeploymentRecord, error) {
	return getDeployment(ctx, s.tx, id)
}

func (s *txSQLiteStore) ListDeployments(ctx context.Context, opts ListOptions) ([]domain.DeploymentRecord, error) {
	return listDeployments(ctx, s.tx, opts)
}

func (s *txSQLiteStore) ListDeploymentsByName(ctx context.Context, name string, opts ListOptions) ([]domain.DeploymentRecord, error) {
	return listDeploymentsByName(ctx, s.tx, name, opts)
}

func (s *txSQLiteStore) DeleteDeploymentsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return deleteDeploymentsBefore(ctx, s.tx, cutoff)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just run the function
	return fn(s)
}

func (s *txSQLiteStore) Ping(ctx context.Context) error {
	return nil
}

func (s *txSQLiteStore) Close() error {
	// No-op for tx store
	return nil
}

// =============================================================================
// Shared Implementation Functions
// =============================================================================

func createDeployment(ctx context.Context, exec executor, record *domain.DeploymentRecord) error {
	var warnings *string
	if len(record.Warnings) > 0 {
		data, err := json.Marshal(record.Warnings)
		if err != nil {
			return NewStoreError("CreateDeployment", "deployment", record.ID, "failed to serialize warnings", ErrInvalidData)
		}
		w := string(data)
		warnings = &w
	}

	query := `
		INSERT INTO deployments (
			id, name, image, success, stage, error_message, warnings, started_at, finished_at
		) VALUES (
			:id, :name, :image, :success, :stage, :error_message, :warnings, :started_at, :finished_at
		)`

	row := deploymentRow{
		ID:           record.ID,
		Name:         record.Name,
		Image:        record.Image,
		Success:      record.Success,
		Stage:        string(record.Stage),
		ErrorMessage: record.Error,
		Warnings:     warnings,
		StartedAt:    record.StartedAt.UTC().Format(timeFormat),
		FinishedAt:   record.FinishedAt.UTC().Format(timeFormat),
	}

	_, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: deployments.id") {
			return NewStoreError("CreateDeployment", "deployment", record.ID, "deployment with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateDeployment", "deployment", record.ID, err.Error(), err)
	}

	return nil
}

func getDeployment(ctx context.Context, exec executor, id string) (*domain.DeploymentRecord, error) {
	query := `SELECT * FROM deployments WHERE id = ?`

	var row deploymentRow
	err := exec.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetDeployment", "deployment", id, "deployment not found", ErrNotFound)
		}
		return nil, NewStoreError("GetDeployment", "deployment", id, err.Error(), err)
	}

	return rowToDeployment(&row)
}

func listDeployments(ctx context.Context, exec executor, opts ListOptions) ([]domain.DeploymentRecord, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM deployments ORDER BY started_at DESC LIMIT ? OFFSET ?`

	var rows []deploymentRow
	err := exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListDeployments", "deployment", "", err.Error(), err)
	}

	return rowsToDeployments(rows)
}

func listDeploymentsByName(ctx context.Context, exec executor, name string, opts ListOptions) ([]domain.DeploymentRecord, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM deployments WHERE name = ? ORDER BY started_at DESC LIMIT ? OFFSET ?`

	var rows []deploymentRow
	err := exec.SelectContext(ctx, &rows, query, name, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListDeploymentsByName", "deployment", "", err.Error(), err)
	}

	return rowsToDeployments(rows)
}

func deleteDeploymentsBefore(ctx context.Context, exec executor, cutoff time.Time) (int64, error) {
	query := `DELETE FROM deployments WHERE finished_at < ?`

	result, err := exec.ExecContext(ctx, query, cutoff.UTC().Format(timeFormat))
	if err != nil {
		return 0, NewStoreError("DeleteDeploymentsBefore", "deployment", "", err.Error(), err)
	}

	n, _ := result.RowsAffected()
	return n, nil
}

// =============================================================================
// Row Conversion
// =============================================================================

func rowsToDeployments(rows []deploymentRow) ([]domain.DeploymentRecord, error) {
	records := make([]domain.DeploymentRecord, 0, len(rows))
	for _, row := range rows {
		record, err := rowToDeployment(&row)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, nil
}

// rowToDeployment converts a database row to a domain.DeploymentRecord.
func rowToDeployment(row *deploymentRow) (*domain.DeploymentRecord, error) {
	startedAt, _ := time.Parse(timeFormat, row.StartedAt)
	finishedAt, _ := time.Parse(timeFormat, row.FinishedAt)

	var warnings []string
	if row.Warnings != nil && *row.Warnings != "" && *row.Warnings != "null" {
		if err := json.Unmarshal([]byte(*row.Warnings), &warnings); err != nil {
			return nil, NewStoreError("rowToDeployment", "deployment", row.ID, "failed to parse warnings", ErrInvalidData)
		}
	}

	return &domain.DeploymentRecord{
		ID:         row.ID,
		Name:       row.Name,
		Image:      row.Image,
		Success:    row.Success,
		Stage:      domain.Stage(row.Stage),
		Error:      row.ErrorMessage,
		Warnings:   warnings,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}, nil
}
