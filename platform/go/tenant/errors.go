package tenant

import (
	"errors"
	"fmt"
)

// Errors surfaced by the tenant core. Handlers map these to HTTP statuses.
var (
	// ErrNotFound: slug present but no active matching company. Inactive is
	// indistinguishable from absent.
	ErrNotFound = errors.New("tenant not found or inactive")

	// ErrContextMissing: a handler required a tenant but the resolver attached
	// none. Indicates a caller/routing bug, not user input error.
	ErrContextMissing = errors.New("tenant context required")

	// ErrDatabaseUnavailable: a cached handle exists but the underlying
	// database is unreachable or was dropped out-of-band. Surfaced per-query,
	// never cached as a permanent failure.
	ErrDatabaseUnavailable = errors.New("tenant database unavailable")
)

// ProvisioningError wraps any failure after the administrative CREATE DATABASE
// succeeded. Compensating teardown has already been attempted by the time the
// caller sees one.
type ProvisioningError struct {
	Slug string
	Err  error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning %s failed: %v", e.Slug, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// TeardownError wraps a DROP DATABASE failure (e.g. lingering connections).
// Never retried automatically.
type TeardownError struct {
	Slug string
	Err  error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("teardown %s failed: %v", e.Slug, e.Err)
}

func (e *TeardownError) Unwrap() error { return e.Err }
