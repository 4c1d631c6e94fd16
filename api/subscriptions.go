package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/snaplink/hookrelay/app"
	"github.com/snaplink/hookrelay/db"
)

func init() {
	registerRoute(func(a *app.Application, router *http.ServeMux) {
		router.Handle("POST /subscriptions", routeHandler(a, requireAdmin(createSubscription)))
		router.Handle("GET /subscriptions", routeHandler(a, requireAdmin(listSubscriptions)))
		router.Handle("GET /subscriptions/{id}", routeHandler(a, requireAdmin(getSubscription)))
		router.Handle("PUT /subscriptions/{id}", routeHandler(a, requireAdmin(updateSubscription)))
		router.Handle("DELETE /subscriptions/{id}", routeHandler(a, requireAdmin(deleteSubscription)))
		router.Handle("POST /subscriptions/{id}/enable", routeHandler(a, requireAdmin(setSubscriptionEnabled(true))))
		router.Handle("POST /subscriptions/{id}/disable", routeHandler(a, requireAdmin(setSubscriptionEnabled(false))))
		router.Handle("POST /subscriptions/{id}/regenerate-secret", routeHandler(a, requireAdmin(regenerateSecret)))
		router.Handle("POST /subscriptions/{id}/test", routeHandler(a, requireAdmin(testDelivery)))
	})
}

// subscriptionResponse is the wire shape for a subscription. Secret is only
// populated on create and regenerate-secret; it is never echoed back by get
// or list.
type subscriptionResponse struct {
	ID              string `json:"id"`
	TenantID        string `json:"tenant_id"`
	Platform        string `json:"platform"`
	Name            string `json:"name"`
	TargetURL       string `json:"target_url"`
	EventKind       string `json:"event_kind"`
	Enabled         bool   `json:"enabled"`
	Secret          string `json:"secret,omitempty"`
	SuccessCount    int64  `json:"success_count"`
	FailureCount    int64  `json:"failure_count"`
	LastTriggeredAt string `json:"last_triggered_at,omitempty"`
	LastError       string `json:"last_error,omitempty"`
}

func toResponse(sub db.Subscription, includeSecret bool) subscriptionResponse {
	resp := subscriptionResponse{
		ID:           app.UuidToString(sub.ID),
		TenantID:     sub.TenantID,
		Platform:     sub.Platform,
		Name:         sub.Name,
		TargetURL:    sub.TargetURL,
		EventKind:    sub.EventKind,
		Enabled:      sub.Enabled,
		SuccessCount: sub.SuccessCount,
		FailureCount: sub.FailureCount,
	}
	if includeSecret {
		resp.Secret = sub.Secret
	}
	if sub.LastTriggeredAt.Valid {
		resp.LastTriggeredAt = sub.LastTriggeredAt.Time.Format("2006-01-02T15:04:05Z07:00")
	}
	if sub.LastError.Valid {
		resp.LastError = sub.LastError.String
	}
	return resp
}

func parseUUIDParam(r *http.Request) (pgtype.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return pgtype.UUID{}, errors.New("invalid subscription id")
	}
	return pgtype.UUID{Bytes: id, Valid: true}, nil
}

type createSubscriptionRequest struct {
	OwnerID      string          `json:"owner_id"`
	Platform     string          `json:"platform"`
	Name         string          `json:"name"`
	TargetURL    string          `json:"target_url"`
	EventKind    string          `json:"event_kind"`
	Filter       json.RawMessage `json:"filter"`
	ExtraHeaders json.RawMessage `json:"extra_headers"`
}

func createSubscription(a *app.Application, w http.ResponseWriter, r *http.Request) {
	var req createSubscriptionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeJsonResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	tid := tenantID(r)
	if tid == "" {
		writeJsonResponse(w, http.StatusBadRequest, map[string]string{"error": "X-Hookrelay-Tenant-ID header is required"})
		return
	}

	sub, err := a.Subscriptions.Create(r.Context(), app.CreateSubscriptionInput{
		TenantID:     tid,
		OwnerID:      req.OwnerID,
		Platform:     req.Platform,
		Name:         req.Name,
		TargetURL:    req.TargetURL,
		EventKind:    req.EventKind,
		Filter:       req.Filter,
		ExtraHeaders: req.ExtraHeaders,
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJsonResponse(w, http.StatusCreated, toResponse(sub, true))
}

func getSubscription(a *app.Application, w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r)
	if err != nil {
		writeJsonResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	sub, err := a.Subscriptions.Get(r.Context(), id, tenantID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJsonResponse(w, http.StatusOK, toResponse(sub, false))
}

func listSubscriptions(a *app.Application, w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	subs, err := a.Subscriptions.List(r.Context(), db.ListSubscriptionsParams{
		TenantID:  tenantID(r),
		Limit:     int32(limit),
		Offset:    int32(offset),
		SortField: r.URL.Query().Get("sort"),
		SortDesc:  r.URL.Query().Get("order") == "desc",
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	out := make([]subscriptionResponse, 0, len(subs))
	for _, s := range subs {
		out = append(out, toResponse(s, false))
	}
	writeJsonResponse(w, http.StatusOK, out)
}

type updateSubscriptionRequest struct {
	Name         string          `json:"name"`
	TargetURL    string          `json:"target_url"`
	EventKind    string          `json:"event_kind"`
	Filter       json.RawMessage `json:"filter"`
	ExtraHeaders json.RawMessage `json:"extra_headers"`
}

func updateSubscription(a *app.Application, w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r)
	if err != nil {
		writeJsonResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var req updateSubscriptionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeJsonResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	sub, err := a.Subscriptions.Update(r.Context(), id, tenantID(r), app.UpdateSubscriptionInput{
		Name: req.Name, TargetURL: req.TargetURL, EventKind: req.EventKind,
		Filter: req.Filter, ExtraHeaders: req.ExtraHeaders,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJsonResponse(w, http.StatusOK, toResponse(sub, false))
}

func deleteSubscription(a *app.Application, w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r)
	if err != nil {
		writeJsonResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := a.Subscriptions.Delete(r.Context(), id, tenantID(r)); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func setSubscriptionEnabled(enabled bool) appHandler {
	return func(a *app.Application, w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r)
		if err != nil {
			writeJsonResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		sub, err := a.Subscriptions.SetEnabled(r.Context(), id, tenantID(r), enabled)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJsonResponse(w, http.StatusOK, toResponse(sub, false))
	}
}

func regenerateSecret(a *app.Application, w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r)
	if err != nil {
		writeJsonResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	sub, err := a.Subscriptions.RegenerateSecret(r.Context(), id, tenantID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJsonResponse(w, http.StatusOK, toResponse(sub, true))
}

func testDelivery(a *app.Application, w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r)
	if err != nil {
		writeJsonResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	sub, err := a.Subscriptions.Get(r.Context(), id, tenantID(r))
	if err != nil {
		writeErr(w, err)
		return
	}

	result := app.TestDelivery(r.Context(), a, sub)
	writeJsonResponse(w, http.StatusOK, result)
}

func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrNotFound):
		writeJsonResponse(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, app.ErrInvalidInput):
		writeJsonResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		writeJsonResponse(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
