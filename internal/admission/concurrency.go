package admission

import "net/http"

// ConcurrencyLimit restricts the number of in-flight admission requests.
// Shedding here keeps the upstream executor from being buried under a
// burst that the rate limiter alone cannot see (many distinct keys).
func ConcurrencyLimit(limit int) func(http.Handler) http.Handler {
	sem := make(chan struct{}, limit)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
				next.ServeHTTP(w, r)
			default:
				writeError(w, http.StatusServiceUnavailable, CodeServerBusy, "server busy, try again", nil)
			}
		})
	}
}
