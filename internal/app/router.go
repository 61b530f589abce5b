package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/crewdock/crewdock/internal/auth"
	"github.com/crewdock/crewdock/internal/observability"
	"github.com/crewdock/crewdock/internal/shared"
	"github.com/crewdock/crewdock/internal/users"
	"github.com/crewdock/crewdock/internal/view"
	"github.com/crewdock/crewdock/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	AuthHandler    *auth.Handler
	AuthMiddleware auth.Middleware
	UsersHandler   *users.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with Crewdock defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	r.Use(params.AuthMiddleware.Identity)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if staticFS, err := fs.Sub(web.Static, "static"); err == nil {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		renderPage(params, w, r, "pages/landing.html", "Welcome", nil, http.StatusOK)
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	r.Route("/user", params.UsersHandler.MountUserRoutes)
	r.Route("/admin", params.UsersHandler.MountAdminRoutes)
	r.Route("/super-admin", params.UsersHandler.MountSuperAdminRoutes)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		renderPage(params, w, r, "pages/error.html", "Not found", map[string]any{
			"Status":  http.StatusNotFound,
			"Message": "The page you were looking for does not exist.",
		}, http.StatusNotFound)
	})

	return r
}

func renderPage(params RouterParams, w http.ResponseWriter, r *http.Request, template, title string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := params.CSRFManager.EnsureToken(r.Context(), sess)
	var flashes []shared.FlashMessage
	if sess != nil {
		flashes = sess.PopFlashes()
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flashes:     flashes,
		CurrentUser: shared.IdentityFromContext(r.Context()),
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := params.Templates.Render(w, template, viewData); err != nil {
		params.Logger.Error("render page", slog.String("template", template), slog.Any("error", err))
	}
}
