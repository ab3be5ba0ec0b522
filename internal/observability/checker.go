package observability

import "context"

// Checker is implemented by every dependency that participates in the
// readiness probe (PostgreSQL, Redis).
type Checker interface {
	// Name identifies the component in the probe response.
	Name() string

	// Check returns nil when the dependency is reachable.
	Check(ctx context.Context) error
}
