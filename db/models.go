package db

import "github.com/jackc/pgx/v5/pgtype"

// Subscription is a tenant-owned registration for delivery of one event
// kind to a target URL, optionally narrowed by a Filter.
type Subscription struct {
	ID              pgtype.UUID
	TenantID        string
	OwnerID         pgtype.Text
	Platform        string
	Name            string
	TargetURL       string
	EventKind       string
	Enabled         bool
	Secret          string
	Filter          []byte // jsonb, nullable
	ExtraHeaders    []byte // jsonb, nullable
	SuccessCount    int64
	FailureCount    int64
	LastTriggeredAt pgtype.Timestamptz
	LastError       pgtype.Text
	CreatedAt       pgtype.Timestamptz
	UpdatedAt       pgtype.Timestamptz
}

// TenantStats summarizes delivery activity for a single tenant.
type TenantStats struct {
	TenantID            string
	SubscriptionCount   int64
	EnabledCount        int64
	TotalSuccessCount   int64
	TotalFailureCount   int64
	ByEventKind         map[string]int64
	ByPlatform          map[string]int64
}

// GlobalStats summarizes delivery activity across all tenants.
type GlobalStats struct {
	TenantCount         int64
	SubscriptionCount   int64
	EnabledCount        int64
	TotalSuccessCount   int64
	TotalFailureCount   int64
	ByEventKind         map[string]int64
	ByPlatform          map[string]int64
}
