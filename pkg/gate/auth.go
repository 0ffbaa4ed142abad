package gate

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

const (
	apiKeyHeader = "X-API-KEY"
	apiKeyQuery  = "api_key"
)

// apiKeyFromRequest reads the presented key: header first, then the query
// parameter. Both locations are part of the request protocol; nothing else
// is consulted.
func apiKeyFromRequest(r *http.Request) string {
	if key := r.Header.Get(apiKeyHeader); key != "" {
		return key
	}
	return r.URL.Query().Get(apiKeyQuery)
}

// AuthMiddleware evaluates every request against the policy. The deny
// response is identical whether the key is missing, unknown, or simply not
// granted the path, so a probing client cannot learn which files exist.
func (g *GateServer) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := apiKeyFromRequest(r)

		if !g.policy.Authorize(key, r.URL.Path) {
			requestsDenied.Inc()
			log.Info().Str("url", redactURL(r)).Msg("Request denied")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Unauthorized"))
			return
		}

		requestsAllowed.Inc()
		log.Info().Str("url", redactURL(r)).Msg("Request allowed")
		next.ServeHTTP(w, r)
	})
}

// redactURL renders the request URL for logging with the bearer key masked.
// Keys must never end up in logs.
func redactURL(r *http.Request) string {
	u := *r.URL
	q := u.Query()
	if q.Has(apiKeyQuery) {
		q.Set(apiKeyQuery, "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
