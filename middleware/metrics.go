package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"go-storefront/metrics"
)

// Instrument counts requests and records latency per route template.
func Instrument(m *metrics.ServerMetrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			handler := "unmatched"
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					handler = tpl
				}
			}
			m.Requests.WithLabelValues(handler, strconv.Itoa(rec.status)).Inc()
			m.LatencyMS.WithLabelValues(handler).Observe(float64(time.Since(start).Milliseconds()))
		})
	}
}
