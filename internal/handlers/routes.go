package handlers

import (
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures Router.
type RouterOptions struct {
	// Static holds the browser client. Nil disables static serving.
	Static fs.FS
	// CORSOrigins lists allowed origins; empty allows none.
	CORSOrigins []string
}

// Router builds the HTTP handler for the todo API and browser client.
func (h *Handlers) Router(opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Healthz)

	// Todo API routes
	r.Get("/getTodos", h.ListTodos)
	r.Post("/", h.CreateTodo)
	r.Post("/reorder", h.ReorderTodos)
	r.Put("/updateStatus/{id}", h.UpdateStatus)
	r.Put("/{id}", h.UpdateTodo)
	r.Delete("/{id}", h.DeleteTodo)

	// Browser client
	if opts.Static != nil {
		r.Get("/", Home(opts.Static))
		r.Get("/*", http.FileServerFS(opts.Static).ServeHTTP)
	}

	return r
}
