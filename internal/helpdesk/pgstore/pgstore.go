// Package pgstore provides a PostgreSQL implementation of helpdesk.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/helpdesk/internal/helpdesk"
)

var tracer = otel.Tracer("github.com/linnemanlabs/helpdesk/internal/helpdesk/pgstore")

//go:embed schema.sql
var schema string

// Store persists helpdesk records in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL, applies the schema, and returns a ready Store.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const requestColumns = `category, id, title, description, priority, action_hint, requester_email, created_at`

// Get retrieves a record by (category, id). Returns ok=false when absent.
func (s *Store) Get(ctx context.Context, category, id string) (*helpdesk.Request, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + requestColumns + ` FROM helpdesk_requests WHERE category = $1 AND id = $2`

	var r helpdesk.Request
	err := s.pool.QueryRow(ctx, query, category, id).Scan(
		&r.Category, &r.ID, &r.Title, &r.Description, &r.Priority,
		&r.ActionHint, &r.RequesterEmail, &r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, fmt.Errorf("scan: %w", err)
	}

	return &r, true, nil
}

// List returns every record, newest first.
func (s *Store) List(ctx context.Context) ([]*helpdesk.Request, error) {
	ctx, span := tracer.Start(ctx, "pgstore.List", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + requestColumns + ` FROM helpdesk_requests ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	var out []*helpdesk.Request
	for rows.Next() {
		var r helpdesk.Request
		if err := rows.Scan(
			&r.Category, &r.ID, &r.Title, &r.Description, &r.Priority,
			&r.ActionHint, &r.RequesterEmail, &r.CreatedAt,
		); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Put inserts or updates a record. created_at never changes after insert.
func (s *Store) Put(ctx context.Context, r *helpdesk.Request) error {
	ctx, span := tracer.Start(ctx, "pgstore.Put", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	query := `INSERT INTO helpdesk_requests (
		category, id, title, description, priority, action_hint, requester_email, created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	ON CONFLICT (category, id) DO UPDATE SET
		title           = EXCLUDED.title,
		description     = EXCLUDED.description,
		priority        = EXCLUDED.priority,
		action_hint     = EXCLUDED.action_hint,
		requester_email = EXCLUDED.requester_email`

	_, err := s.pool.Exec(ctx, query,
		r.Category, r.ID, r.Title, r.Description, r.Priority,
		r.ActionHint, r.RequesterEmail, r.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert request: %w", err)
	}
	return nil
}
