package auth

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/crewdock/crewdock/internal/roles"
	"github.com/crewdock/crewdock/internal/shared"
)

// Middleware wires identity resolution and role gates for HTTP routes.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Identity resolves the session's user id to a full identity and stores it
// in the request context. Downstream authorization only ever reads this
// server-held identity.
func (m Middleware) Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil {
			next.ServeHTTP(w, r)
			return
		}
		raw := strings.TrimSpace(sess.User())
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Error("parse session user id", slog.String("value", raw))
			}
			sess.ClearUser()
			next.ServeHTTP(w, r)
			return
		}
		identity, err := m.Service.Identity(r.Context(), userID)
		if err != nil {
			// Account deleted or deactivated since login; drop the binding.
			sess.ClearUser()
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), identity)))
	})
}

// RequireLogin redirects anonymous requests to the login page.
func (m Middleware) RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shared.IdentityFromContext(r.Context()) == nil {
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole admits only actors holding at least the given role. Denied
// requests get the warning notice and bounce back where they came from.
func (m Middleware) RequireRole(min roles.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := shared.IdentityFromContext(r.Context())
			if identity == nil {
				http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
				return
			}
			if !identity.Role.AtLeast(min) {
				if sess := shared.SessionFromContext(r.Context()); sess != nil {
					sess.AddFlash(shared.FlashMessage{Kind: shared.FlashWarning, Message: roles.ErrNotAuthorized.Error()})
				}
				http.Redirect(w, r, backLocation(r), http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// backLocation mirrors the redirect('back') convention: prefer the referer,
// fall back to the panel root.
func backLocation(r *http.Request) string {
	if ref := r.Header.Get("Referer"); ref != "" && strings.HasPrefix(ref, "/") {
		return ref
	}
	if ref := r.Header.Get("Referer"); ref != "" {
		// Same-host absolute referers are fine; anything else is ignored.
		if strings.Contains(ref, "://"+r.Host+"/") || strings.HasSuffix(ref, "://"+r.Host) {
			return ref
		}
	}
	return "/"
}
