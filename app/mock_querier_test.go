package app

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/snaplink/hookrelay/db"
	"github.com/stretchr/testify/mock"
)

// mockQuerier is a local testify mock of db.Querier for app package tests.
// Kept local (rather than importing testutil) to avoid an import cycle,
// since testutil imports app.
type mockQuerier struct {
	mock.Mock
}

var _ db.Querier = (*mockQuerier)(nil)

func (m *mockQuerier) CreateSubscription(ctx context.Context, params db.CreateSubscriptionParams) (db.Subscription, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(db.Subscription), args.Error(1)
}

func (m *mockQuerier) GetSubscription(ctx context.Context, id pgtype.UUID, tenantID string) (db.Subscription, error) {
	args := m.Called(ctx, id, tenantID)
	return args.Get(0).(db.Subscription), args.Error(1)
}

func (m *mockQuerier) ListSubscriptions(ctx context.Context, params db.ListSubscriptionsParams) ([]db.Subscription, error) {
	args := m.Called(ctx, params)
	return args.Get(0).([]db.Subscription), args.Error(1)
}

func (m *mockQuerier) UpdateSubscription(ctx context.Context, params db.UpdateSubscriptionParams) (db.Subscription, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(db.Subscription), args.Error(1)
}

func (m *mockQuerier) DeleteSubscription(ctx context.Context, id pgtype.UUID, tenantID string) error {
	args := m.Called(ctx, id, tenantID)
	return args.Error(0)
}

func (m *mockQuerier) SetSubscriptionEnabled(ctx context.Context, id pgtype.UUID, tenantID string, enabled bool) (db.Subscription, error) {
	args := m.Called(ctx, id, tenantID, enabled)
	return args.Get(0).(db.Subscription), args.Error(1)
}

func (m *mockQuerier) RegenerateSecret(ctx context.Context, id pgtype.UUID, tenantID string, newSecret string) (db.Subscription, error) {
	args := m.Called(ctx, id, tenantID, newSecret)
	return args.Get(0).(db.Subscription), args.Error(1)
}

func (m *mockQuerier) FindMatchingSubscriptions(ctx context.Context, tenantID, eventKind string) ([]db.Subscription, error) {
	args := m.Called(ctx, tenantID, eventKind)
	return args.Get(0).([]db.Subscription), args.Error(1)
}

func (m *mockQuerier) RecordDeliverySuccess(ctx context.Context, id pgtype.UUID, triggeredAt pgtype.Timestamptz) error {
	args := m.Called(ctx, id, triggeredAt)
	return args.Error(0)
}

func (m *mockQuerier) RecordDeliveryFailure(ctx context.Context, id pgtype.UUID, triggeredAt pgtype.Timestamptz, shortError string) error {
	args := m.Called(ctx, id, triggeredAt, shortError)
	return args.Error(0)
}

func (m *mockQuerier) TenantStats(ctx context.Context, tenantID string) (db.TenantStats, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(db.TenantStats), args.Error(1)
}

func (m *mockQuerier) GlobalStats(ctx context.Context) (db.GlobalStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(db.GlobalStats), args.Error(1)
}

func newTestUUID() pgtype.UUID {
	return newUUIDv7Must()
}

func newUUIDv7Must() pgtype.UUID {
	id, err := newUUIDv7()
	if err != nil {
		panic(err)
	}
	return id
}

func newTestSubscription(opts ...func(*db.Subscription)) db.Subscription {
	s := db.Subscription{
		ID:        newTestUUID(),
		TenantID:  "tenant-1",
		Platform:  "generic",
		Name:      "test-subscription",
		TargetURL: "https://example.com/webhook",
		EventKind: "link.created",
		Enabled:   true,
		Secret:    "test-signing-secret",
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func newTestTimestampForStore() pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true}
}
