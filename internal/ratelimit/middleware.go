package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/utils"
)

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(r *http.Request) string

// ClientIP keys by the remote address without its port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware answers 429 with Retry-After once a key runs out of tokens. Requests
// that resolve to an empty key are not limited.
func Middleware(store *Store, keyFn KeyFunc, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			res := store.Get(key).Reserve()
			if delay := res.Delay(); delay > 0 {
				res.Cancel()
				if log != nil {
					log.LogSecurity("RATE_LIMITED", "key="+key+" path="+r.URL.Path)
				}
				w.Header().Set("Retry-After", retryAfterSeconds(delay))
				utils.WriteError(w, http.StatusTooManyRequests, "Too many requests", "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
