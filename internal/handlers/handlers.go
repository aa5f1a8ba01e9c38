package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"todolist/internal/tasks"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 1 << 20

var errBodyTooLarge = errors.New("request body too large")

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	tasks  *tasks.Service
	pinger Pinger
	logger *log.Logger
}

// New creates a new Handlers instance. pinger may be nil, in which case the
// health check always reports ok.
func New(svc *tasks.Service, pinger Pinger, logger *log.Logger) *Handlers {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Handlers{
		tasks:  svc,
		pinger: pinger,
		logger: logger,
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// parseID extracts a task id from URL parameters.
func parseID(r *http.Request, param string) string {
	return strings.TrimSpace(chi.URLParam(r, param))
}

// decodeJSON reads a capped request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		return err
	}
	return sonic.ConfigStd.Unmarshal(data, v)
}

// respondDecodeError sends the response for a body decodeJSON rejected.
func respondDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		respondError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	respondError(w, http.StatusBadRequest, "invalid json")
}

// respondJSON sends v as a JSON response.
func (h *Handlers) respondJSON(w http.ResponseWriter, code int, v any) {
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		h.logger.WithError(err).Error("failed to encode response")
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	w.Write(data)
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, code int, message string) {
	respondFieldError(w, code, message, "")
}

func respondFieldError(w http.ResponseWriter, code int, message, field string) {
	data, _ := sonic.ConfigStd.Marshal(errorBody{Error: errorDetail{Message: message, Field: field}})
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	w.Write(data)
}

// respondServiceError maps task store errors onto HTTP responses.
func (h *Handlers) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *tasks.ValidationError
	switch {
	case errors.As(err, &verr):
		respondFieldError(w, http.StatusBadRequest, verr.Message, verr.Field)
	case errors.Is(err, tasks.ErrNotFound):
		respondError(w, http.StatusNotFound, "todo not found")
	default:
		h.respondServerError(w, r, err)
	}
}

func (h *Handlers) respondServerError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.WithError(err).WithFields(log.Fields{
		"method":     r.Method,
		"path":       r.URL.Path,
		"request_id": middleware.GetReqID(r.Context()),
	}).Error("internal server error")
	respondError(w, http.StatusInternalServerError, "internal server error")
}
