package store

import (
	"context"

	"github.com/prodtalk/prodtalk/internal/profile"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// Thread / turn persistence.

func (s *Store) CreateQueryThread(ctx context.Context, create *QueryThread) (*QueryThread, error) {
	return s.driver.CreateQueryThread(ctx, create)
}

func (s *Store) ListQueryThreads(ctx context.Context, find *FindQueryThread) ([]*QueryThread, error) {
	return s.driver.ListQueryThreads(ctx, find)
}

func (s *Store) GetQueryThread(ctx context.Context, find *FindQueryThread) (*QueryThread, error) {
	threads, err := s.driver.ListQueryThreads(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(threads) == 0 {
		return nil, nil
	}
	return threads[0], nil
}

func (s *Store) DeleteQueryThread(ctx context.Context, delete *DeleteQueryThread) error {
	return s.driver.DeleteQueryThread(ctx, delete)
}

func (s *Store) CreateQueryTurn(ctx context.Context, create *QueryTurn) (*QueryTurn, error) {
	return s.driver.CreateQueryTurn(ctx, create)
}

func (s *Store) ListQueryTurns(ctx context.Context, find *FindQueryTurn) ([]*QueryTurn, error) {
	return s.driver.ListQueryTurns(ctx, find)
}

// Admin-owned extraction and prompt metadata. Read-only at query time;
// mutation happens through the admin subsystem, not here.

func (s *Store) ListFilterRules(ctx context.Context) ([]*FilterRule, error) {
	return s.driver.ListFilterRules(ctx)
}

func (s *Store) ListTermMappings(ctx context.Context) ([]*TermMapping, error) {
	return s.driver.ListTermMappings(ctx)
}

func (s *Store) ListKnowledge(ctx context.Context) ([]*Knowledge, error) {
	return s.driver.ListKnowledge(ctx)
}

func (s *Store) ListSchemaTables(ctx context.Context) ([]*SchemaTable, error) {
	return s.driver.ListSchemaTables(ctx)
}

func (s *Store) ListReferenceLookups(ctx context.Context) ([]*ReferenceLookup, error) {
	return s.driver.ListReferenceLookups(ctx)
}
