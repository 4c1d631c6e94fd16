package app

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/snaplink/hookrelay/db"
)

// indexKey is the (tenant_id, event_kind) pair the Event Router looks up on
// every inbound message. enabled=false subscriptions are never cached —
// FindMatches only ever needs the enabled set.
type indexKey struct {
	tenantID  string
	eventKind string
}

// SubscriptionIndex is a lazily-populated, double-checked-locked cache over
// FindMatchingSubscriptions results, flushed on every mutation. The shape
// mirrors a bulk-load subject-pattern cache, re-keyed to the tenant/kind
// pair the spec's index lives on instead of a glob pattern. Storage is
// delegated to Cache; fetchMu serializes the fetch-and-populate section so
// concurrent misses on the same key don't double-hit the database.
type SubscriptionIndex struct {
	fetchMu sync.Mutex
	cache   *Cache[indexKey, []db.Subscription]
	db      db.Querier
}

func NewSubscriptionIndex(q db.Querier) *SubscriptionIndex {
	return &SubscriptionIndex{cache: NewCache[indexKey, []db.Subscription](), db: q}
}

func (idx *SubscriptionIndex) lookup(ctx context.Context, tenantID, eventKind string) ([]db.Subscription, error) {
	key := indexKey{tenantID: tenantID, eventKind: eventKind}

	if subs, _, inCache := idx.cache.Get(key); inCache {
		return subs, nil
	}

	idx.fetchMu.Lock()
	defer idx.fetchMu.Unlock()
	if subs, _, inCache := idx.cache.Get(key); inCache {
		return subs, nil
	}

	subs, err := idx.db.FindMatchingSubscriptions(ctx, tenantID, eventKind)
	if err != nil {
		return nil, err
	}
	idx.cache.Set(key, subs, true)
	return subs, nil
}

func (idx *SubscriptionIndex) Flush() {
	idx.cache.Flush()
}

// SubscriptionStore is the tenant-scoped CRUD surface over subscriptions,
// backed by Postgres with an in-process read-through index for dispatch.
type SubscriptionStore struct {
	db    db.Querier
	index *SubscriptionIndex
}

func NewSubscriptionStore(q db.Querier) *SubscriptionStore {
	return &SubscriptionStore{db: q, index: NewSubscriptionIndex(q)}
}

type CreateSubscriptionInput struct {
	TenantID     string
	OwnerID      string
	Platform     string
	Name         string
	TargetURL    string
	EventKind    string
	Filter       []byte
	ExtraHeaders []byte
}

func validateTargetURL(raw string) error {
	if len(raw) > 2048 {
		return fmt.Errorf("%w: target_url exceeds 2048 bytes", ErrInvalidInput)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: target_url is not a valid URL: %v", ErrInvalidInput, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: target_url must be http or https", ErrInvalidInput)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: target_url must include a host", ErrInvalidInput)
	}
	return nil
}

func validateCreateInput(in CreateSubscriptionInput) error {
	if in.TenantID == "" {
		return fmt.Errorf("%w: tenant_id is required", ErrInvalidInput)
	}
	if len(in.Name) == 0 || len(in.Name) > 200 {
		return fmt.Errorf("%w: name must be 1-200 bytes", ErrInvalidInput)
	}
	if !IsKnownEventKind(in.EventKind) {
		return fmt.Errorf("%w: unknown event_kind %q", ErrInvalidInput, in.EventKind)
	}
	if err := validateTargetURL(in.TargetURL); err != nil {
		return err
	}
	filter, err := ParseFilter(in.Filter)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return ValidateFilter(filter)
}

func (s *SubscriptionStore) Create(ctx context.Context, in CreateSubscriptionInput) (db.Subscription, error) {
	if err := validateCreateInput(in); err != nil {
		return db.Subscription{}, err
	}

	secret, err := GenerateSecret()
	if err != nil {
		return db.Subscription{}, fmt.Errorf("generating subscription secret: %w", err)
	}

	id, err := newUUIDv7()
	if err != nil {
		return db.Subscription{}, fmt.Errorf("generating subscription id: %w", err)
	}

	var ownerID pgtype.Text
	if in.OwnerID != "" {
		ownerID = pgtype.Text{String: in.OwnerID, Valid: true}
	}

	sub, err := s.db.CreateSubscription(ctx, db.CreateSubscriptionParams{
		ID:           id,
		TenantID:     in.TenantID,
		OwnerID:      ownerID,
		Platform:     in.Platform,
		Name:         in.Name,
		TargetURL:    in.TargetURL,
		EventKind:    in.EventKind,
		Enabled:      true,
		Secret:       secret,
		Filter:       in.Filter,
		ExtraHeaders: in.ExtraHeaders,
	})
	if err != nil {
		return db.Subscription{}, fmt.Errorf("creating subscription: %w", err)
	}

	s.index.Flush()
	return sub, nil
}

func (s *SubscriptionStore) Get(ctx context.Context, id pgtype.UUID, tenantID string) (db.Subscription, error) {
	sub, err := s.db.GetSubscription(ctx, id, tenantID)
	if err != nil {
		return db.Subscription{}, wrapNotFound(err)
	}
	return sub, nil
}

func (s *SubscriptionStore) List(ctx context.Context, params db.ListSubscriptionsParams) ([]db.Subscription, error) {
	return s.db.ListSubscriptions(ctx, params)
}

type UpdateSubscriptionInput struct {
	Name         string
	TargetURL    string
	EventKind    string
	Filter       []byte
	ExtraHeaders []byte
}

func (s *SubscriptionStore) Update(ctx context.Context, id pgtype.UUID, tenantID string, in UpdateSubscriptionInput) (db.Subscription, error) {
	if err := validateCreateInput(CreateSubscriptionInput{
		TenantID: tenantID, Name: in.Name, TargetURL: in.TargetURL,
		EventKind: in.EventKind, Filter: in.Filter,
	}); err != nil {
		return db.Subscription{}, err
	}

	sub, err := s.db.UpdateSubscription(ctx, db.UpdateSubscriptionParams{
		ID: id, TenantID: tenantID, Name: in.Name, TargetURL: in.TargetURL,
		EventKind: in.EventKind, Filter: in.Filter, ExtraHeaders: in.ExtraHeaders,
	})
	if err != nil {
		return db.Subscription{}, wrapNotFound(err)
	}
	s.index.Flush()
	return sub, nil
}

func (s *SubscriptionStore) Delete(ctx context.Context, id pgtype.UUID, tenantID string) error {
	if err := s.db.DeleteSubscription(ctx, id, tenantID); err != nil {
		return wrapNotFound(err)
	}
	s.index.Flush()
	return nil
}

func (s *SubscriptionStore) SetEnabled(ctx context.Context, id pgtype.UUID, tenantID string, enabled bool) (db.Subscription, error) {
	sub, err := s.db.SetSubscriptionEnabled(ctx, id, tenantID, enabled)
	if err != nil {
		return db.Subscription{}, wrapNotFound(err)
	}
	s.index.Flush()
	return sub, nil
}

func (s *SubscriptionStore) RegenerateSecret(ctx context.Context, id pgtype.UUID, tenantID string) (db.Subscription, error) {
	secret, err := GenerateSecret()
	if err != nil {
		return db.Subscription{}, fmt.Errorf("generating subscription secret: %w", err)
	}
	sub, err := s.db.RegenerateSecret(ctx, id, tenantID, secret)
	if err != nil {
		return db.Subscription{}, wrapNotFound(err)
	}
	s.index.Flush()
	return sub, nil
}

// FindMatches returns the enabled subscriptions for a tenant/event-kind pair,
// read through the in-process index.
func (s *SubscriptionStore) FindMatches(ctx context.Context, tenantID, eventKind string) ([]db.Subscription, error) {
	return s.index.lookup(ctx, tenantID, eventKind)
}

func (s *SubscriptionStore) RecordSuccess(ctx context.Context, id pgtype.UUID, triggeredAt pgtype.Timestamptz) error {
	return s.db.RecordDeliverySuccess(ctx, id, triggeredAt)
}

func (s *SubscriptionStore) RecordFailure(ctx context.Context, id pgtype.UUID, triggeredAt pgtype.Timestamptz, shortError string) error {
	return s.db.RecordDeliveryFailure(ctx, id, triggeredAt, shortError)
}

func wrapNotFound(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrNotFound, err)
}
