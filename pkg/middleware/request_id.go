package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/meshbed/testbed-manager/pkg/requestid"
)

// RequestID takes the request id from the x-request-id header, or from
// chi's own RequestID middleware, or generates one, and injects it into
// the request context for the layers below.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("x-request-id")

		if requestID == "" {
			requestID = middleware.GetReqID(r.Context())
		}

		if requestID == "" {
			requestID = requestid.Generate()
		}

		ctx := requestid.ToContext(r.Context(), requestID)
		r = r.WithContext(ctx)

		next.ServeHTTP(w, r)
	})
}
