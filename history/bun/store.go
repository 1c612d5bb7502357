// Package bunstore implements history.Store on PostgreSQL via the Bun ORM.
// The caller owns the *bun.DB lifecycle; the Store never closes it.
//
// Usage:
//
//	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
//	db := bun.NewDB(sqldb, pgdialect.New())
//	store := bunstore.New(db)
//	if err := store.Migrate(ctx); err != nil { ... }
package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	saga "github.com/cybinfo/pg-manager-sub005"
	"github.com/cybinfo/pg-manager-sub005/history"
	"github.com/cybinfo/pg-manager-sub005/id"
)

// Compile-time interface check.
var _ history.Store = (*Store)(nil)

// Store is a Bun ORM implementation of history.Store using the PostgreSQL
// dialect.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new Bun store. The caller owns the db lifecycle.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the executions table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*executionModel)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("history/bun: migrate: %w", err)
	}
	return nil
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateExecution persists a new execution record.
func (s *Store) CreateExecution(ctx context.Context, e *history.Execution) error {
	m := toExecutionModel(e)
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("history/bun: create execution: %w", err)
	}
	return nil
}

// UpdateExecution persists changes to an existing execution record.
func (s *Store) UpdateExecution(ctx context.Context, e *history.Execution) error {
	m := toExecutionModel(e)
	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("history/bun: update execution: %w", err)
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return saga.ErrExecutionNotFound
	}
	return nil
}

// GetExecution retrieves an execution by ID.
func (s *Store) GetExecution(ctx context.Context, execID id.ID) (*history.Execution, error) {
	m := new(executionModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", execID.String()).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, saga.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("history/bun: get execution: %w", err)
	}
	return fromExecutionModel(m)
}

// ListExecutions returns executions matching the given options, newest first.
func (s *Store) ListExecutions(ctx context.Context, opts history.ListOpts) ([]*history.Execution, error) {
	var models []executionModel
	q := s.db.NewSelect().Model(&models).Order("started_at DESC")

	if opts.State != "" {
		q = q.Where("state = ?", string(opts.State))
	}
	if opts.Workflow != "" {
		q = q.Where("workflow = ?", opts.Workflow)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("history/bun: list executions: %w", err)
	}

	out := make([]*history.Execution, 0, len(models))
	for i := range models {
		e, convErr := fromExecutionModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("history/bun: list convert: %w", convErr)
		}
		out = append(out, e)
	}
	return out, nil
}
