package store

import "context"

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() any
	Close() error
	Migrate(ctx context.Context) error

	// Thread / turn persistence.
	CreateQueryThread(ctx context.Context, create *QueryThread) (*QueryThread, error)
	ListQueryThreads(ctx context.Context, find *FindQueryThread) ([]*QueryThread, error)
	DeleteQueryThread(ctx context.Context, delete *DeleteQueryThread) error
	CreateQueryTurn(ctx context.Context, create *QueryTurn) (*QueryTurn, error)
	ListQueryTurns(ctx context.Context, find *FindQueryTurn) ([]*QueryTurn, error)

	// Admin-owned metadata (read-only at query time).
	ListFilterRules(ctx context.Context) ([]*FilterRule, error)
	ListTermMappings(ctx context.Context) ([]*TermMapping, error)
	ListKnowledge(ctx context.Context) ([]*Knowledge, error)
	ListSchemaTables(ctx context.Context) ([]*SchemaTable, error)
	ListReferenceLookups(ctx context.Context) ([]*ReferenceLookup, error)
}
