package testutil

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/snaplink/hookrelay/db"
	"github.com/stretchr/testify/mock"
)

// MockQuerier is a testify mock implementation of db.Querier.
type MockQuerier struct {
	mock.Mock
}

var _ db.Querier = (*MockQuerier)(nil)

func (m *MockQuerier) CreateSubscription(ctx context.Context, params db.CreateSubscriptionParams) (db.Subscription, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(db.Subscription), args.Error(1)
}

func (m *MockQuerier) GetSubscription(ctx context.Context, id pgtype.UUID, tenantID string) (db.Subscription, error) {
	args := m.Called(ctx, id, tenantID)
	return args.Get(0).(db.Subscription), args.Error(1)
}

func (m *MockQuerier) ListSubscriptions(ctx context.Context, params db.ListSubscriptionsParams) ([]db.Subscription, error) {
	args := m.Called(ctx, params)
	return args.Get(0).([]db.Subscription), args.Error(1)
}

func (m *MockQuerier) UpdateSubscription(ctx context.Context, params db.UpdateSubscriptionParams) (db.Subscription, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(db.Subscription), args.Error(1)
}

func (m *MockQuerier) DeleteSubscription(ctx context.Context, id pgtype.UUID, tenantID string) error {
	args := m.Called(ctx, id, tenantID)
	return args.Error(0)
}

func (m *MockQuerier) SetSubscriptionEnabled(ctx context.Context, id pgtype.UUID, tenantID string, enabled bool) (db.Subscription, error) {
	args := m.Called(ctx, id, tenantID, enabled)
	return args.Get(0).(db.Subscription), args.Error(1)
}

func (m *MockQuerier) RegenerateSecret(ctx context.Context, id pgtype.UUID, tenantID string, newSecret string) (db.Subscription, error) {
	args := m.Called(ctx, id, tenantID, newSecret)
	return args.Get(0).(db.Subscription), args.Error(1)
}

func (m *MockQuerier) FindMatchingSubscriptions(ctx context.Context, tenantID, eventKind string) ([]db.Subscription, error) {
	args := m.Called(ctx, tenantID, eventKind)
	return args.Get(0).([]db.Subscription), args.Error(1)
}

func (m *MockQuerier) RecordDeliverySuccess(ctx context.Context, id pgtype.UUID, triggeredAt pgtype.Timestamptz) error {
	args := m.Called(ctx, id, triggeredAt)
	return args.Error(0)
}

func (m *MockQuerier) RecordDeliveryFailure(ctx context.Context, id pgtype.UUID, triggeredAt pgtype.Timestamptz, shortError string) error {
	args := m.Called(ctx, id, triggeredAt, shortError)
	return args.Error(0)
}

func (m *MockQuerier) TenantStats(ctx context.Context, tenantID string) (db.TenantStats, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(db.TenantStats), args.Error(1)
}

func (m *MockQuerier) GlobalStats(ctx context.Context) (db.GlobalStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(db.GlobalStats), args.Error(1)
}
