package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a query scoped to a tenant finds no row —
// either the subscription never existed or it belongs to another tenant.
// The two cases are deliberately indistinguishable to the caller.
var ErrNotFound = errors.New("subscription not found")

type postgres struct {
	pool *pgxpool.Pool
}

// New returns a Querier backed by the given connection pool.
func New(pool *pgxpool.Pool) Querier {
	return &postgres{pool: pool}
}

const subscriptionColumns = `
	id, tenant_id, owner_id, platform, name, target_url, event_kind, enabled,
	secret, filter, extra_headers, success_count, failure_count,
	last_triggered_at, last_error, created_at, updated_at`

func scanSubscription(row pgx.Row) (Subscription, error) {
	var s Subscription
	err := row.Scan(
		&s.ID, &s.TenantID, &s.OwnerID, &s.Platform, &s.Name, &s.TargetURL,
		&s.EventKind, &s.Enabled, &s.Secret, &s.Filter, &s.ExtraHeaders,
		&s.SuccessCount, &s.FailureCount, &s.LastTriggeredAt, &s.LastError,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Subscription{}, ErrNotFound
	}
	if err != nil {
		return Subscription{}, fmt.Errorf("scanning subscription: %w", err)
	}
	return s, nil
}

func (p *postgres) CreateSubscription(ctx context.Context, params CreateSubscriptionParams) (Subscription, error) {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO subscriptions (
			id, tenant_id, owner_id, platform, name, target_url, event_kind,
			enabled, secret, filter, extra_headers,
			success_count, failure_count, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, 0, now(), now()
		) RETURNING `+subscriptionColumns,
		params.ID, params.TenantID, params.OwnerID, params.Platform, params.Name,
		params.TargetURL, params.EventKind, params.Enabled, params.Secret,
		params.Filter, params.ExtraHeaders,
	)
	return scanSubscription(row)
}

func (p *postgres) GetSubscription(ctx context.Context, id pgtype.UUID, tenantID string) (Subscription, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	)
	return scanSubscription(row)
}

func (p *postgres) ListSubscriptions(ctx context.Context, params ListSubscriptionsParams) ([]Subscription, error) {
	sortField := params.SortField
	switch sortField {
	case "created_at", "updated_at", "name":
		// whitelisted
	default:
		sortField = "created_at"
	}
	dir := "ASC"
	if params.SortDesc {
		dir = "DESC"
	}
	limit := params.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT %s FROM subscriptions
		WHERE tenant_id = $1
		ORDER BY %s %s
		LIMIT $2 OFFSET $3`, subscriptionColumns, sortField, dir)

	rows, err := p.pool.Query(ctx, query, params.TenantID, limit, params.Offset)
	if err != nil {
		return nil, fmt.Errorf("listing subscriptions: %w", err)
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *postgres) UpdateSubscription(ctx context.Context, params UpdateSubscriptionParams) (Subscription, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE subscriptions
		SET name = $3, target_url = $4, event_kind = $5, filter = $6,
		    extra_headers = $7, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+subscriptionColumns,
		params.ID, params.TenantID, params.Name, params.TargetURL,
		params.EventKind, params.Filter, params.ExtraHeaders,
	)
	return scanSubscription(row)
}

func (p *postgres) DeleteSubscription(ctx context.Context, id pgtype.UUID, tenantID string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *postgres) SetSubscriptionEnabled(ctx context.Context, id pgtype.UUID, tenantID string, enabled bool) (Subscription, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE subscriptions SET enabled = $3, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+subscriptionColumns,
		id, tenantID, enabled,
	)
	return scanSubscription(row)
}

func (p *postgres) RegenerateSecret(ctx context.Context, id pgtype.UUID, tenantID string, newSecret string) (Subscription, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE subscriptions SET secret = $3, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+subscriptionColumns,
		id, tenantID, newSecret,
	)
	return scanSubscription(row)
}

func (p *postgres) FindMatchingSubscriptions(ctx context.Context, tenantID, eventKind string) ([]Subscription, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE tenant_id = $1 AND event_kind = $2 AND enabled = true`,
		tenantID, eventKind,
	)
	if err != nil {
		return nil, fmt.Errorf("finding matching subscriptions: %w", err)
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *postgres) RecordDeliverySuccess(ctx context.Context, id pgtype.UUID, triggeredAt pgtype.Timestamptz) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE subscriptions
		SET success_count = success_count + 1, last_triggered_at = $2, last_error = NULL
		WHERE id = $1`,
		id, triggeredAt,
	)
	if err != nil {
		return fmt.Errorf("recording delivery success: %w", err)
	}
	return nil
}

func (p *postgres) RecordDeliveryFailure(ctx context.Context, id pgtype.UUID, triggeredAt pgtype.Timestamptz, shortError string) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE subscriptions
		SET failure_count = failure_count + 1, last_triggered_at = $2, last_error = $3
		WHERE id = $1`,
		id, triggeredAt, shortError,
	)
	if err != nil {
		return fmt.Errorf("recording delivery failure: %w", err)
	}
	return nil
}

func (p *postgres) TenantStats(ctx context.Context, tenantID string) (TenantStats, error) {
	stats := TenantStats{
		TenantID:   tenantID,
		ByEventKind: make(map[string]int64),
		ByPlatform:  make(map[string]int64),
	}

	row := p.pool.QueryRow(ctx, `
		SELECT count(*), count(*) FILTER (WHERE enabled),
		       coalesce(sum(success_count), 0), coalesce(sum(failure_count), 0)
		FROM subscriptions WHERE tenant_id = $1`, tenantID)
	if err := row.Scan(&stats.SubscriptionCount, &stats.EnabledCount,
		&stats.TotalSuccessCount, &stats.TotalFailureCount); err != nil {
		return TenantStats{}, fmt.Errorf("aggregating tenant stats: %w", err)
	}

	rows, err := p.pool.Query(ctx, `
		SELECT event_kind, count(*) FROM subscriptions
		WHERE tenant_id = $1 GROUP BY event_kind`, tenantID)
	if err != nil {
		return TenantStats{}, fmt.Errorf("aggregating tenant stats by kind: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var count int64
		if err := rows.Scan(&kind, &count); err != nil {
			return TenantStats{}, err
		}
		stats.ByEventKind[kind] = count
	}

	platRows, err := p.pool.Query(ctx, `
		SELECT platform, count(*) FROM subscriptions
		WHERE tenant_id = $1 GROUP BY platform`, tenantID)
	if err != nil {
		return TenantStats{}, fmt.Errorf("aggregating tenant stats by platform: %w", err)
	}
	defer platRows.Close()
	for platRows.Next() {
		var platform string
		var count int64
		if err := platRows.Scan(&platform, &count); err != nil {
			return TenantStats{}, err
		}
		stats.ByPlatform[platform] = count
	}

	return stats, nil
}

func (p *postgres) GlobalStats(ctx context.Context) (GlobalStats, error) {
	stats := GlobalStats{
		ByEventKind: make(map[string]int64),
		ByPlatform:  make(map[string]int64),
	}

	row := p.pool.QueryRow(ctx, `
		SELECT count(DISTINCT tenant_id), count(*), count(*) FILTER (WHERE enabled),
		       coalesce(sum(success_count), 0), coalesce(sum(failure_count), 0)
		FROM subscriptions`)
	if err := row.Scan(&stats.TenantCount, &stats.SubscriptionCount, &stats.EnabledCount,
		&stats.TotalSuccessCount, &stats.TotalFailureCount); err != nil {
		return GlobalStats{}, fmt.Errorf("aggregating global stats: %w", err)
	}

	rows, err := p.pool.Query(ctx, `SELECT event_kind, count(*) FROM subscriptions GROUP BY event_kind`)
	if err != nil {
		return GlobalStats{}, fmt.Errorf("aggregating global stats by kind: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var count int64
		if err := rows.Scan(&kind, &count); err != nil {
			return GlobalStats{}, err
		}
		stats.ByEventKind[kind] = count
	}

	platRows, err := p.pool.Query(ctx, `SELECT platform, count(*) FROM subscriptions GROUP BY platform`)
	if err != nil {
		return GlobalStats{}, fmt.Errorf("aggregating global stats by platform: %w", err)
	}
	defer platRows.Close()
	for platRows.Next() {
		var platform string
		var count int64
		if err := platRows.Scan(&platform, &count); err != nil {
			return GlobalStats{}, err
		}
		stats.ByPlatform[platform] = count
	}

	return stats, nil
}
