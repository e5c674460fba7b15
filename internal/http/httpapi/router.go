package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"companion/internal/http/handlers"
	"companion/internal/infra"
	"companion/internal/middleware"
)

// Deps wires the router. Metrics and Static are optional; Static serves
// filesystem-stored images under /static/. GenerationDeadline is the write
// deadline of the generation routes; zero removes it.
type Deps struct {
	App                *handlers.App
	Tokens             *middleware.Tokens
	Logger             infra.Logger
	Metrics            http.Handler
	Static             http.Handler
	CORSOrigins        []string
	RateLimitPerMin    int
	DefaultLocale      string
	GenerationDeadline time.Duration
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(d.Logger),
		middleware.CORS(d.CORSOrigins),
		middleware.I18N(d.DefaultLocale),
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, r, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	app := d.App
	r.Get("/v1/healthz", app.Health)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}
	if d.Static != nil {
		r.Handle("/static/*", http.StripPrefix("/static/", d.Static))
	}

	r.Route("/v1", func(r chi.Router) {
		if d.RateLimitPerMin > 0 {
			r.Use(middleware.RateLimit(d.RateLimitPerMin, time.Minute))
		}
		r.Post("/auth/google", app.AuthGoogleVerify)
		r.Get("/catalog", app.ListCatalog)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthJWT(d.Tokens))
			r.Get("/me", app.Me)
			generating := middleware.WriteDeadline(d.GenerationDeadline)
			r.With(generating).Post("/generations", app.CreateGeneration)

			r.Route("/wizard", func(r chi.Router) {
				r.Post("/", app.WizardStart)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", app.WizardGet)
					r.Patch("/", app.WizardUpdate)
					r.Post("/next", app.WizardNext)
					r.Post("/back", app.WizardBack)
					r.With(generating).Post("/generate", app.WizardGenerate)
					r.Put("/variants/{kind}/{index}", app.WizardSelect)
					r.Post("/complete", app.WizardComplete)
				})
			})

			r.Route("/companions", func(r chi.Router) {
				r.Get("/", app.ListCompanions)
				r.Get("/{id}", app.GetCompanion)
				r.Get("/{id}/archive", app.ArchiveCompanion)
			})
		})
	})

	return r
}
