package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"heirloom/internal/http/handlers"
	"heirloom/internal/infra/geoip"
	"heirloom/internal/middleware"
)

// RouterOptions configures the middleware stack.
type RouterOptions struct {
	CORSOrigins []string
	// UploadsPerMinute limits POST /api/upload per client IP; zero disables.
	UploadsPerMinute int
	Countries        geoip.CountryResolver
	Logger           zerolog.Logger
}

func NewRouter(app *handlers.App, opts RouterOptions) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Country(opts.Countries),
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.CORSOrigins),
	)

	r.Route("/api", func(r chi.Router) {
		r.Get("/", app.Root)
		r.Get("/healthz", app.Health)

		r.With(middleware.RateLimit(opts.UploadsPerMinute, time.Minute)).Post("/upload", app.Upload)
		r.Get("/restoration/{id}", app.GetRestoration)
		r.Get("/download/{id}", app.Download)
		r.Get("/restorations", app.ListRestorations)
	})

	return r
}
