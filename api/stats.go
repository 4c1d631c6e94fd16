package api

import (
	"net/http"

	"github.com/snaplink/hookrelay/app"
)

func init() {
	registerRoute(func(a *app.Application, router *http.ServeMux) {
		router.Handle("GET /stats", routeHandler(a, requireAdmin(tenantStats)))
		router.Handle("GET /stats/global", routeHandler(a, requireAdmin(globalStats)))
		router.Handle("GET /event-kinds", routeHandler(a, requireAdmin(listEventKinds)))
		router.Handle("GET /platforms", routeHandler(a, requireAdmin(listPlatforms)))
	})
}

func tenantStats(a *app.Application, w http.ResponseWriter, r *http.Request) {
	stats, err := a.Stats.PerTenant(r.Context(), tenantID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJsonResponse(w, http.StatusOK, stats)
}

func globalStats(a *app.Application, w http.ResponseWriter, r *http.Request) {
	stats, err := a.Stats.Global(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJsonResponse(w, http.StatusOK, stats)
}

func listEventKinds(a *app.Application, w http.ResponseWriter, r *http.Request) {
	kinds := make([]string, 0, len(app.KnownEventKinds))
	for k := range app.KnownEventKinds {
		kinds = append(kinds, k)
	}
	writeJsonResponse(w, http.StatusOK, kinds)
}

// knownPlatforms is the set of platform names reported to clients. The
// Delivery Engine adds identifying headers for make and n8n only; generic
// gets none.
var knownPlatforms = []string{"generic", "make", "n8n"}

func listPlatforms(a *app.Application, w http.ResponseWriter, r *http.Request) {
	writeJsonResponse(w, http.StatusOK, knownPlatforms)
}
