package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"editserver/internal/http/handlers"
	"editserver/internal/infra"
	"editserver/internal/middleware"
)

// Options holds the pieces the router wires together beyond the handlers
// themselves. MediaDir, when set, is served under /media for the filesystem
// image store.
type Options struct {
	App            *handlers.App
	Logger         infra.Logger
	AllowedOrigins []string
	SubmitPerDay   int
	StatusPerMin   int
	MediaDir       string
}

func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.CORS(opts.AllowedOrigins),
		middleware.Logger(opts.Logger),
	)

	app := opts.App

	r.Get("/health", app.Health)

	submitLimit := middleware.RateLimit(opts.SubmitPerDay, 24*time.Hour)
	statusLimit := middleware.RateLimit(opts.StatusPerMin, time.Minute)

	r.Route("/edit-image", func(r chi.Router) {
		r.With(submitLimit).Post("/", app.SubmitEdit)
	})
	r.Route("/edit", func(r chi.Router) {
		r.With(statusLimit).Get("/{uuid}", app.EditStatus)
		r.Get("/{uuid}/chain", app.EditChain)
	})
	r.Route("/feedback", func(r chi.Router) {
		r.Post("/", app.CreateFeedback)
		r.Get("/{edit_uuid}", app.GetFeedback)
	})

	if opts.MediaDir != "" {
		fs := http.FileServer(http.Dir(opts.MediaDir))
		r.Handle("/media/*", http.StripPrefix("/media/", fs))
	}

	return r
}
