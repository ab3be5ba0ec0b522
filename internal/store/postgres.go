package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veigo-labs/flagward/internal/flag"
)

// Compile-time check to verify that PostgresStore implements FlagStore.
var _ FlagStore = (*PostgresStore)(nil)

//go:embed schema.sql
var schemaDDL string

// flagColumns is the canonical column list shared by every SELECT.
const flagColumns = `key, name, description, active, status, tags, environments,
	scheduled_enable_at, scheduled_disable_at, evaluation_count, last_evaluated_at,
	created_by, last_modified_by, created_at, updated_at`

// PostgresStore is the FlagStore implementation backed by PostgreSQL.
// Environments are stored as a single JSONB document per flag, which keeps
// the row a self-contained configuration document.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a repository instance over the given pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	if db == nil {
		panic("store: database pool cannot be nil")
	}
	return &PostgresStore{db: db}
}

// EnsureSchema applies the embedded DDL. It is idempotent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to apply flags schema: %w", err)
	}
	return nil
}

// FindByKey returns a single flag or ErrNotFound.
func (s *PostgresStore) FindByKey(ctx context.Context, key string) (*flag.Definition, error) {
	query := fmt.Sprintf(`SELECT %s FROM flags WHERE key = $1`, flagColumns)

	def, err := scanFlag(s.db.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch flag %q: %w", key, err)
	}
	return def, nil
}

// FindAll lists flags ordered by creation time descending, optionally
// filtered by status and/or tag.
func (s *PostgresStore) FindAll(ctx context.Context, filter ListFilter) ([]*flag.Definition, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Tag != "" {
		args = append(args, filter.Tag)
		where = append(where, fmt.Sprintf("$%d = ANY(tags)", len(args)))
	}

	query := fmt.Sprintf(`SELECT %s FROM flags`, flagColumns)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list flags: %w", err)
	}
	defer rows.Close()

	var defs []*flag.Definition
	for rows.Next() {
		def, err := scanFlag(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flag row: %w", err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return defs, nil
}

// Create inserts a new flag. A unique violation on key maps to ErrDuplicateKey.
func (s *PostgresStore) Create(ctx context.Context, p CreateParams) (*flag.Definition, error) {
	envsJSON, err := marshalEnvironments(p.Environments)
	if err != nil {
		return nil, err
	}
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}

	query := fmt.Sprintf(`
		INSERT INTO flags (key, name, description, active, status, tags, environments,
			scheduled_enable_at, scheduled_disable_at, created_by, last_modified_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		RETURNING %s`, flagColumns)

	def, err := scanFlag(s.db.QueryRow(ctx, query,
		p.Key,
		p.Name,
		p.Description,
		p.Active,
		string(p.Status),
		tags,
		envsJSON,
		p.ScheduledEnableAt,
		p.ScheduledDisableAt,
		p.CreatedBy,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505: unique_violation on the key primary key
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateKey, p.Key)
		}
		return nil, fmt.Errorf("failed to insert flag %q: %w", p.Key, err)
	}
	return def, nil
}

// Update merges the provided fields into an existing row. Only the fields
// present in the payload appear in the SET clause; last-write-wins.
func (s *PostgresStore) Update(ctx context.Context, key string, fields UpdateFields) (*flag.Definition, error) {
	set := []string{"updated_at = now()"}
	args := []any{key}

	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if fields.Name != nil {
		add("name", *fields.Name)
	}
	if fields.Description != nil {
		add("description", *fields.Description)
	}
	if fields.Active != nil {
		add("active", *fields.Active)
	}
	if fields.Status != nil {
		add("status", string(*fields.Status))
	}
	if fields.Tags != nil {
		add("tags", *fields.Tags)
	}
	if fields.Environments != nil {
		envsJSON, err := marshalEnvironments(*fields.Environments)
		if err != nil {
			return nil, err
		}
		add("environments", envsJSON)
	}
	switch {
	case fields.ClearScheduledEnable:
		set = append(set, "scheduled_enable_at = NULL")
	case fields.ScheduledEnableAt != nil:
		add("scheduled_enable_at", *fields.ScheduledEnableAt)
	}
	switch {
	case fields.ClearScheduledDisable:
		set = append(set, "scheduled_disable_at = NULL")
	case fields.ScheduledDisableAt != nil:
		add("scheduled_disable_at", *fields.ScheduledDisableAt)
	}
	if fields.LastModifiedBy != nil {
		add("last_modified_by", *fields.LastModifiedBy)
	}

	query := fmt.Sprintf(`UPDATE flags SET %s WHERE key = $1 RETURNING %s`,
		strings.Join(set, ", "), flagColumns)

	def, err := scanFlag(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update flag %q: %w", key, err)
	}
	return def, nil
}

// Delete removes a flag row. ErrNotFound when no row matched.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM flags WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete flag %q: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDueForEnable returns flags whose scheduled enable date has passed and
// whose master switch is off.
func (s *PostgresStore) ListDueForEnable(ctx context.Context, now time.Time) ([]*flag.Definition, error) {
	return s.listDue(ctx, "scheduled_enable_at", false, now)
}

// ListDueForDisable returns flags whose scheduled disable date has passed
// and whose master switch is on.
func (s *PostgresStore) ListDueForDisable(ctx context.Context, now time.Time) ([]*flag.Definition, error) {
	return s.listDue(ctx, "scheduled_disable_at", true, now)
}

func (s *PostgresStore) listDue(ctx context.Context, column string, active bool, now time.Time) ([]*flag.Definition, error) {
	query := fmt.Sprintf(`SELECT %s FROM flags WHERE %s IS NOT NULL AND %s <= $1 AND active = $2`,
		flagColumns, column, column)

	rows, err := s.db.Query(ctx, query, now, active)
	if err != nil {
		return nil, fmt.Errorf("failed to list due flags: %w", err)
	}
	defer rows.Close()

	var defs []*flag.Definition
	for rows.Next() {
		def, err := scanFlag(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan due flag row: %w", err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return defs, nil
}

// RecordEvaluation bumps the usage counters in a single atomic statement.
// A missing key is not an error here: the evaluation path must never fail
// because of statistics.
func (s *PostgresStore) RecordEvaluation(ctx context.Context, key string, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE flags
		SET evaluation_count = evaluation_count + 1, last_evaluated_at = $2
		WHERE key = $1`, key, at)
	if err != nil {
		return fmt.Errorf("failed to record evaluation of %q: %w", key, err)
	}
	return nil
}

// scanFlag maps one row onto a Definition. It works for both QueryRow and
// rows.Next() iteration via the pgx.Row interface.
func scanFlag(row pgx.Row) (*flag.Definition, error) {
	var (
		def      flag.Definition
		status   string
		envsJSON []byte
	)
	if err := row.Scan(
		&def.Key,
		&def.Name,
		&def.Description,
		&def.Active,
		&status,
		&def.Tags,
		&envsJSON,
		&def.ScheduledEnableAt,
		&def.ScheduledDisableAt,
		&def.EvaluationCount,
		&def.LastEvaluatedAt,
		&def.CreatedBy,
		&def.LastModifiedBy,
		&def.CreatedAt,
		&def.UpdatedAt,
	); err != nil {
		return nil, err
	}
	def.Status = flag.Status(status)

	def.Environments = make(map[flag.Environment]flag.EnvironmentConfig)
	if len(envsJSON) > 0 {
		if err := json.Unmarshal(envsJSON, &def.Environments); err != nil {
			return nil, fmt.Errorf("corrupt environments document for flag %q: %w", def.Key, err)
		}
	}
	return &def, nil
}

func marshalEnvironments(envs map[flag.Environment]flag.EnvironmentConfig) ([]byte, error) {
	if envs == nil {
		envs = map[flag.Environment]flag.EnvironmentConfig{}
	}
	b, err := json.Marshal(envs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal environments: %w", err)
	}
	return b, nil
}
