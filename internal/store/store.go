// Package store provides the persistence layer for flag definitions.
// It exposes the FlagStore contract plus a PostgreSQL implementation (pgx)
// and an in-memory implementation used by tests and local development.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/veigo-labs/flagward/internal/flag"
)

// Sentinel errors returned by every FlagStore implementation.
// Handlers map these to 404/409; the evaluation path converts any store
// error to a disabled result.
var (
	// ErrNotFound is returned when no flag exists for the requested key.
	ErrNotFound = errors.New("flag not found")

	// ErrDuplicateKey is returned by Create when the key is already taken.
	ErrDuplicateKey = errors.New("flag key already exists")
)

// CreateParams carries the fields accepted when creating a flag.
// Key, Name, and CreatedBy are required; the handler validates them before
// the store is reached.
type CreateParams struct {
	Key                string
	Name               string
	Description        string
	Active             bool
	Status             flag.Status
	Tags               []string
	Environments       map[flag.Environment]flag.EnvironmentConfig
	ScheduledEnableAt  *time.Time
	ScheduledDisableAt *time.Time
	CreatedBy          string
}

// UpdateFields is the partial-update payload. Pointer fields distinguish
// "leave unchanged" (nil) from "set to zero value" (non-nil pointer to
// zero). The Clear* booleans express "set the scheduled date to none",
// which a nil pointer cannot.
type UpdateFields struct {
	Name               *string
	Description        *string
	Active             *bool
	Status             *flag.Status
	Tags               *[]string
	Environments       *map[flag.Environment]flag.EnvironmentConfig
	ScheduledEnableAt  *time.Time
	ScheduledDisableAt *time.Time
	ClearScheduledEnable  bool
	ClearScheduledDisable bool
	LastModifiedBy     *string
}

// ListFilter narrows FindAll results. Zero values mean "no filter".
type ListFilter struct {
	Status flag.Status
	Tag    string
}

// FlagStore is the persistence contract for flag definitions.
// Implementations must be safe for concurrent use. Concurrent updates are
// last-write-wins; no optimistic locking is assumed.
type FlagStore interface {
	// FindByKey returns the flag for the given key or ErrNotFound.
	FindByKey(ctx context.Context, key string) (*flag.Definition, error)

	// FindAll lists flags ordered by creation time, newest first.
	FindAll(ctx context.Context, filter ListFilter) ([]*flag.Definition, error)

	// Create persists a new flag. Returns ErrDuplicateKey if the key is taken.
	Create(ctx context.Context, p CreateParams) (*flag.Definition, error)

	// Update merges the provided fields into an existing flag and returns
	// the updated definition. Returns ErrNotFound if the key is absent.
	Update(ctx context.Context, key string, fields UpdateFields) (*flag.Definition, error)

	// Delete removes a flag. Returns ErrNotFound if nothing was deleted.
	Delete(ctx context.Context, key string) error

	// ListDueForEnable returns flags with a scheduled enable date at or
	// before now and the master switch off. Used by the reconciler.
	ListDueForEnable(ctx context.Context, now time.Time) ([]*flag.Definition, error)

	// ListDueForDisable returns flags with a scheduled disable date at or
	// before now and the master switch on. Used by the reconciler.
	ListDueForDisable(ctx context.Context, now time.Time) ([]*flag.Definition, error)

	// RecordEvaluation increments the flag's evaluation counter and stamps
	// the last evaluation time. Best-effort: callers must tolerate failure.
	RecordEvaluation(ctx context.Context, key string, at time.Time) error
}
