package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/finsightlab/finsight/internal/logging"
)

type ownerKeyType struct{}

var ownerKey ownerKeyType

// OwnerHeader carries the account UUID that scopes every data operation.
const OwnerHeader = "X-Owner-ID"

// Owner validates the X-Owner-ID header and stores the parsed UUID in the
// request context. Requests without a valid owner are rejected before they
// reach a handler; all storage queries are owner-scoped.
func Owner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(OwnerHeader)
		if raw == "" {
			logging.FromContext(r.Context()).Warn("missing owner header",
				"path", r.URL.Path,
				"method", r.Method,
			)
			reject(w, `{"error":"missing X-Owner-ID header","code":"AUTH001"}`)
			return
		}
		owner, err := uuid.Parse(raw)
		if err != nil {
			logging.FromContext(r.Context()).Warn("invalid owner header",
				"path", r.URL.Path,
				"method", r.Method,
			)
			reject(w, `{"error":"invalid X-Owner-ID header","code":"AUTH002"}`)
			return
		}
		ctx := context.WithValue(r.Context(), ownerKey, owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func reject(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(body))
}

// OwnerFromContext returns the owner UUID placed there by Owner.
// The second return is false on routes that skip the middleware.
func OwnerFromContext(ctx context.Context) (uuid.UUID, bool) {
	owner, ok := ctx.Value(ownerKey).(uuid.UUID)
	return owner, ok
}
