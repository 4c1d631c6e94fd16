package api

import (
	"net/http"

	"github.com/snaplink/hookrelay/app"
)

// requireAdmin wraps an appHandler with a pre-shared-secret check, the
// management API's stand-in authentication layer. Real AuthN/AuthZ for this
// surface is an external collaborator outside this subsystem's scope.
func requireAdmin(handler appHandler) appHandler {
	return func(a *app.Application, w http.ResponseWriter, r *http.Request) {
		candidate := r.Header.Get("X-Hookrelay-Admin-Secret")
		if !app.ValidateAdminSecret(a.Config.AdminSecretHash, candidate) {
			writeJsonResponse(w, http.StatusUnauthorized, map[string]string{"error": "invalid or missing admin secret"})
			return
		}
		handler(a, w, r)
	}
}

func tenantID(r *http.Request) string {
	return r.Header.Get("X-Hookrelay-Tenant-ID")
}
