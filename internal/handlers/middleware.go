package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// RequestLogger logs one line per request through logger. Server errors log
// at error level, client errors at warn, everything else at info.
func RequestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}

				route := ""
				if rctx := chi.RouteContext(r.Context()); rctx != nil {
					route = rctx.RoutePattern()
				}

				entry := logger.WithFields(log.Fields{
					"method":      r.Method,
					"path":        r.URL.Path,
					"route":       route,
					"status":      status,
					"bytes":       ww.BytesWritten(),
					"duration_ms": durationToMillis(time.Since(start)),
					"request_id":  middleware.GetReqID(r.Context()),
				})
				switch {
				case status >= http.StatusInternalServerError:
					entry.Error("request completed")
				case status >= http.StatusBadRequest:
					entry.Warn("request completed")
				default:
					entry.Info("request completed")
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func durationToMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
