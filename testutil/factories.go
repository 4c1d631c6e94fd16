package testutil

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/snaplink/hookrelay/app"
	"github.com/snaplink/hookrelay/config"
	"github.com/snaplink/hookrelay/db"
)

// NewUUID returns a pgtype.UUID with a new random UUID.
func NewUUID() pgtype.UUID {
	return pgtype.UUID{Bytes: uuid.Must(uuid.NewV7()), Valid: true}
}

// NewTimestamp returns a pgtype.Timestamptz set to now.
func NewTimestamp() pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true}
}

// SubscriptionOpt is a functional option for building test Subscriptions.
type SubscriptionOpt func(*db.Subscription)

// NewSubscription creates a db.Subscription with sensible defaults.
func NewSubscription(opts ...SubscriptionOpt) db.Subscription {
	s := db.Subscription{
		ID:        NewUUID(),
		TenantID:  "tenant-1",
		Platform:  "generic",
		Name:      "test-subscription",
		TargetURL: "https://example.com/webhook",
		EventKind: "link.created",
		Enabled:   true,
		Secret:    "test-signing-secret",
		CreatedAt: NewTimestamp(),
		UpdatedAt: NewTimestamp(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func WithFilter(f app.Filter) SubscriptionOpt {
	return func(s *db.Subscription) {
		raw, err := json.Marshal(f)
		if err != nil {
			panic("testutil: failed to marshal filter: " + err.Error())
		}
		s.Filter = raw
	}
}

func WithExtraHeaders(headers map[string]string) SubscriptionOpt {
	return func(s *db.Subscription) {
		raw, err := json.Marshal(headers)
		if err != nil {
			panic("testutil: failed to marshal extra headers: " + err.Error())
		}
		s.ExtraHeaders = raw
	}
}

// AppOpt is a functional option for building test Applications.
type AppOpt func(*app.Application)

// NewTestApp creates an app.Application suitable for testing, wired to the
// provided mock Querier with sensible config defaults.
func NewTestApp(mockDB *MockQuerier, opts ...AppOpt) *app.Application {
	a := &app.Application{
		Config: config.AppConfig{
			Port:                  8090,
			DeliveryTimeoutMS:     5000,
			TestDeliveryTimeoutMS: 2000,
			MaxRequeueCount:       3,
			DeliveryWorkers:       2,
			DeliveryQueueSize:     100,
		},
		DB:            mockDB,
		Subscriptions: app.NewSubscriptionStore(mockDB),
		Stats:         app.NewStats(mockDB),
		HTTPClient:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}
