package handlers

import (
	"context"
	"io/fs"
	"net/http"
	"time"
)

const healthTimeout = 2 * time.Second

// Home serves the browser client's index.html from static.
func Home(static fs.FS) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := fs.Stat(static, "index.html"); err != nil {
			respondError(w, http.StatusNotFound, "not found")
			return
		}
		http.ServeFileFS(w, r, static, "index.html")
	}
}

// Healthz reports whether the database answers a ping.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := h.pinger.Ping(ctx); err != nil {
			h.logger.WithError(err).Warn("health check failed")
			h.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
