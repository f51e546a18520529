package backend

import (
	"context"

	"fynace/internal/ledger"
	"fynace/internal/payments"
	"fynace/internal/profiles"
	"fynace/internal/services"
)

// Backends groups every external dependency the core needs. Gateway and
// Publisher are nil when the matching integration is not configured.
type Backends struct {
	Ledgers   ledger.Store
	Profiles  profiles.Store
	Gateway   payments.Gateway
	Publisher services.PlanPublisher
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backends and a cleanup function releasing them.
type BackendResult struct {
	Backends
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackends(ctx context.Context, config Config) (*BackendResult, error)
}

// BackendType names a storage implementation.
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SheetsBackend BackendType = "sheets"
	SQLiteBackend BackendType = "sqlite"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// ValidLedger reports whether bt can hold ledgers.
func (bt BackendType) ValidLedger() bool {
	return bt == MemoryBackend || bt == SheetsBackend
}

// ValidProfile reports whether bt can hold profiles.
func (bt BackendType) ValidProfile() bool {
	return bt == MemoryBackend || bt == SQLiteBackend
}
