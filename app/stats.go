package app

import (
	"context"
	"fmt"

	"github.com/snaplink/hookrelay/db"
)

// Stats is the read-only statistics surface: per-tenant and global
// aggregates, both answered directly from Postgres rather than an
// in-process scan, since these are low-frequency management-console
// queries, not hot-path lookups.
type Stats struct {
	db db.Querier
}

func NewStats(q db.Querier) *Stats {
	return &Stats{db: q}
}

func (s *Stats) PerTenant(ctx context.Context, tenantID string) (db.TenantStats, error) {
	stats, err := s.db.TenantStats(ctx, tenantID)
	if err != nil {
		return db.TenantStats{}, fmt.Errorf("fetching tenant stats: %w", err)
	}
	return stats, nil
}

func (s *Stats) Global(ctx context.Context) (db.GlobalStats, error) {
	stats, err := s.db.GlobalStats(ctx)
	if err != nil {
		return db.GlobalStats{}, fmt.Errorf("fetching global stats: %w", err)
	}
	return stats, nil
}
