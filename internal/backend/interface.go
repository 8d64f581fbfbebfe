package backend

import (
	"context"
	"time"

	"famfunds/internal/events"
	"famfunds/internal/ledger"
	"famfunds/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the wired engine and what the caller must run or
// close alongside it.
type BackendResult struct {
	Engine *ledger.Engine
	// Dispatcher must be Run by the caller for events to leave the process.
	Dispatcher *events.Dispatcher
	// Store is nil for the memory backend.
	Store   *storage.SQLiteRepository
	Cleanup CleanupFunc
}

// Ready reports whether the persistence layer, if any, is reachable.
func (r *BackendResult) Ready(ctx context.Context) error {
	if r.Store == nil {
		return nil
	}
	return r.Store.Ping(ctx)
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Memory specific
	SeedDemo bool

	Location *time.Location

	// Event delivery. Without an AMQP URL events are only logged.
	AMQPURL         string
	AMQPExchange    string
	AMQPQueue       string
	EventBufferSize int
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
