package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type CreateSubscriptionParams struct {
	ID           pgtype.UUID
	TenantID     string
	OwnerID      pgtype.Text
	Platform     string
	Name         string
	TargetURL    string
	EventKind    string
	Enabled      bool
	Secret       string
	Filter       []byte
	ExtraHeaders []byte
}

type UpdateSubscriptionParams struct {
	ID           pgtype.UUID
	TenantID     string
	Name         string
	TargetURL    string
	EventKind    string
	Filter       []byte
	ExtraHeaders []byte
}

type ListSubscriptionsParams struct {
	TenantID  string
	Limit     int32
	Offset    int32
	SortField string // whitelisted: created_at, updated_at, name; falls back to created_at
	SortDesc  bool
}

// Querier is the persistence interface the rest of the application
// depends on. The Postgres implementation lives in postgres.go; tests
// substitute a mock generated in testutil.
type Querier interface {
	CreateSubscription(ctx context.Context, params CreateSubscriptionParams) (Subscription, error)
	GetSubscription(ctx context.Context, id pgtype.UUID, tenantID string) (Subscription, error)
	ListSubscriptions(ctx context.Context, params ListSubscriptionsParams) ([]Subscription, error)
	UpdateSubscription(ctx context.Context, params UpdateSubscriptionParams) (Subscription, error)
	DeleteSubscription(ctx context.Context, id pgtype.UUID, tenantID string) error
	SetSubscriptionEnabled(ctx context.Context, id pgtype.UUID, tenantID string, enabled bool) (Subscription, error)
	RegenerateSecret(ctx context.Context, id pgtype.UUID, tenantID string, newSecret string) (Subscription, error)

	// FindMatchingSubscriptions returns every enabled subscription for a
	// tenant/event-kind pair. Backs the (tenant_id, event_kind, enabled)
	// index the Event Router relies on.
	FindMatchingSubscriptions(ctx context.Context, tenantID, eventKind string) ([]Subscription, error)

	// RecordDeliverySuccess/RecordDeliveryFailure are conditional
	// increments — never a read-modify-write — so concurrent fan-out
	// deliveries to the same subscription never race.
	RecordDeliverySuccess(ctx context.Context, id pgtype.UUID, triggeredAt pgtype.Timestamptz) error
	RecordDeliveryFailure(ctx context.Context, id pgtype.UUID, triggeredAt pgtype.Timestamptz, shortError string) error

	TenantStats(ctx context.Context, tenantID string) (TenantStats, error)
	GlobalStats(ctx context.Context) (GlobalStats, error)
}
