package httpx

import (
	"context"
	"net/http"
)

type ctxKey int

const tenantKey ctxKey = iota

// RequireTenant scopes a route group to the tenant named in the
// X-Tenant-ID header. Authentication itself happens upstream; by the
// time a request lands here the header is trusted.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tid := r.Header.Get("X-Tenant-ID")
		if tid == "" {
			writeError(w, http.StatusBadRequest, "missing_tenant", "X-Tenant-ID header is required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tenantKey, tid)))
	})
}

func TenantFrom(r *http.Request) string {
	tid, _ := r.Context().Value(tenantKey).(string)
	return tid
}
