package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/crewdock/crewdock/internal/auth"
	"github.com/crewdock/crewdock/internal/roles"
	"github.com/crewdock/crewdock/internal/shared"
	"github.com/crewdock/crewdock/internal/view"
)

// Handler manages the user-management endpoints for the self-service,
// admin and super-admin route groups.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	sessions  *shared.SessionManager
	authmw    auth.Middleware
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, sessions *shared.SessionManager, authmw auth.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		csrf:      csrf,
		sessions:  sessions,
		authmw:    authmw,
		validator: validator.New(),
	}
}

// MountUserRoutes registers the self-service routes.
func (h *Handler) MountUserRoutes(r chi.Router) {
	r.Use(h.authmw.RequireLogin)
	r.Get("/profile", h.showProfile)
	r.Post("/update-user-info", h.updateOwnInfo)
}

// MountAdminRoutes registers the admin route group.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Use(h.authmw.RequireLogin)
	r.Use(h.authmw.RequireRole(roles.RoleAdmin))
	h.mountManagementRoutes(r, "/admin")
	r.Get("/add-user", h.showAddUserForm)
	r.Post("/register", h.registerUser)
}

// MountSuperAdminRoutes registers the mirrored super-admin route group.
func (h *Handler) MountSuperAdminRoutes(r chi.Router) {
	r.Use(h.authmw.RequireLogin)
	r.Use(h.authmw.RequireRole(roles.RoleSuperAdmin))
	h.mountManagementRoutes(r, "/super-admin")
}

func (h *Handler) mountManagementRoutes(r chi.Router, basePath string) {
	r.Get("/users", h.listUsers(basePath))
	r.Get("/users-details", h.listUserDetails(basePath))
	r.Get("/user/{id}", h.viewUser(basePath))
	r.Get("/user-edit/{id}", h.editUser(basePath))
	r.Delete("/user-delete/{id}", h.deleteUser(basePath))
	// HTML forms cannot issue DELETE, so the same handler answers POST.
	r.Post("/user-delete/{id}", h.deleteUser(basePath))
	r.Post("/update-role", h.updateRole(basePath))
}

type formErrors map[string]string

type registerForm struct {
	Name     string `validate:"required,min=2"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
	Role     string `validate:"required"`
}

// validationMessage turns a validator failure into the notice text shown to
// the operator.
func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "Please provide a valid email"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	default:
		return fe.Field() + " is invalid"
	}
}

func (h *Handler) listUsers(basePath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.renderListPage(w, r, basePath, "pages/users/list.html", "Manage users")
	}
}

func (h *Handler) listUserDetails(basePath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.renderListPage(w, r, basePath, "pages/users/details.html", "User details")
	}
}

func (h *Handler) renderListPage(w http.ResponseWriter, r *http.Request, basePath, template, title string) {
	actor := shared.IdentityFromContext(r.Context())
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	list, pagination, err := h.service.List(r.Context(), actor, page)
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		h.render(w, r, template, title, map[string]any{
			"Errors":     formErrors{"general": shared.UserSafeMessage(err)},
			"BasePath":   basePath,
			"Pagination": shared.Pagination{},
		}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, template, title, map[string]any{
		"Users":      list,
		"BasePath":   basePath,
		"Pagination": pagination,
	}, http.StatusOK)
}

func (h *Handler) showAddUserForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/users/form.html", "Add user", map[string]any{
		"Form":   registerForm{Role: string(roles.RoleUser)},
		"Errors": formErrors{},
	}, http.StatusOK)
}

func (h *Handler) registerUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	actor := shared.IdentityFromContext(r.Context())
	sess := shared.SessionFromContext(r.Context())

	form := registerForm{
		Name:     strings.TrimSpace(r.PostFormValue("name")),
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
		Role:     r.PostFormValue("role"),
	}

	errs := formErrors{}
	if err := h.validator.Struct(form); err != nil {
		for _, fieldErr := range err.(validator.ValidationErrors) {
			errs[fieldErr.Field()] = validationMessage(fieldErr)
		}
	}
	role, roleErr := roles.Parse(form.Role)
	if roleErr != nil {
		errs["Role"] = "Invalid role"
	}

	if len(errs) > 0 {
		if sess != nil {
			for _, msg := range errs {
				sess.AddFlash(shared.FlashMessage{Kind: shared.FlashError, Message: msg})
			}
		}
		form.Password = ""
		h.render(w, r, "pages/users/form.html", "Add user", map[string]any{"Form": form, "Errors": errs}, http.StatusOK)
		return
	}

	user, err := h.service.Register(r.Context(), actor, RegisterInput{
		Email:    form.Email,
		Name:     form.Name,
		Password: form.Password,
		Role:     role,
	})
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrEmailTaken):
			if sess != nil {
				sess.AddFlash(shared.FlashMessage{Kind: shared.FlashWarning, Message: shared.UserSafeMessage(err)})
			}
			form.Password = ""
			h.render(w, r, "pages/users/form.html", "Add user", map[string]any{"Form": form, "Errors": errs}, http.StatusOK)
		case isDenial(err):
			h.redirectWithFlash(w, r, "/admin/add-user", shared.FlashError, err.Error())
		default:
			h.logger.Error("register user", slog.Any("error", err))
			h.redirectWithFlash(w, r, "/admin/add-user", shared.FlashError, shared.UserSafeMessage(err))
		}
		return
	}

	h.redirectWithFlash(w, r, "/admin/add-user", shared.FlashSuccess, user.Email+" registered successfully")
}

func (h *Handler) viewUser(basePath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.showUserPage(w, r, basePath, "pages/profile.html", false)
	}
}

func (h *Handler) editUser(basePath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.showUserPage(w, r, basePath, "pages/users/edit.html", true)
	}
}

func (h *Handler) showUserPage(w http.ResponseWriter, r *http.Request, basePath, template string, edit bool) {
	actor := shared.IdentityFromContext(r.Context())
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		h.redirectWithFlash(w, r, basePath+"/users", shared.FlashError, "Invalid id")
		return
	}
	person, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.redirectWithFlash(w, r, basePath+"/users", shared.FlashError, shared.UserSafeMessage(err))
			return
		}
		h.logger.Error("fetch user", slog.Int64("id", id), slog.Any("error", err))
		h.redirectWithFlash(w, r, basePath+"/users", shared.FlashError, shared.UserSafeMessage(err))
		return
	}
	title := person.Name
	if edit {
		title = "Edit " + person.Name
	}
	h.render(w, r, template, title, map[string]any{
		"Person":   person,
		"BasePath": basePath,
		"Editable": false,
	}, http.StatusOK)
}

func (h *Handler) deleteUser(basePath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := shared.IdentityFromContext(r.Context())
		listPath := basePath + "/users-details"

		id, ok := parseID(chi.URLParam(r, "id"))
		if !ok {
			h.redirectWithFlash(w, r, basePath+"/users", shared.FlashError, "Invalid id")
			return
		}

		deleted, err := h.service.Delete(r.Context(), actor, id)
		if err != nil {
			// Every denial terminates the request here; the delete never ran.
			if isDenial(err) {
				h.redirectWithFlash(w, r, listPath, shared.FlashError, err.Error())
				return
			}
			if errors.Is(err, shared.ErrNotFound) {
				h.redirectWithFlash(w, r, listPath, shared.FlashError, shared.UserSafeMessage(err))
				return
			}
			h.logger.Error("delete user", slog.Int64("id", id), slog.Any("error", err))
			h.redirectWithFlash(w, r, listPath, shared.FlashError, shared.UserSafeMessage(err))
			return
		}

		h.redirectWithFlash(w, r, listPath, shared.FlashSuccess, "User "+deleted.Email+" deleted successfully")
	}
}

func (h *Handler) updateRole(basePath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := shared.IdentityFromContext(r.Context())
		back := basePath + "/users"

		if err := r.ParseForm(); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		rawID := strings.TrimSpace(r.PostFormValue("id"))
		rawRole := strings.TrimSpace(r.PostFormValue("role"))
		if rawID == "" || rawRole == "" {
			h.redirectWithFlash(w, r, back, shared.FlashError, "Invalid request")
			return
		}
		id, ok := parseID(rawID)
		if !ok {
			h.redirectWithFlash(w, r, back, shared.FlashError, "Invalid id")
			return
		}
		role, err := roles.Parse(rawRole)
		if err != nil {
			h.redirectWithFlash(w, r, back, shared.FlashError, "Invalid role")
			return
		}

		updated, err := h.service.ChangeRole(r.Context(), actor, id, role)
		if err != nil {
			if isDenial(err) {
				h.redirectWithFlash(w, r, back, shared.FlashError, err.Error())
				return
			}
			if errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrInvalidRole) {
				h.redirectWithFlash(w, r, back, shared.FlashError, shared.UserSafeMessage(err))
				return
			}
			h.logger.Error("update role", slog.Int64("id", id), slog.Any("error", err))
			h.redirectWithFlash(w, r, back, shared.FlashError, shared.UserSafeMessage(err))
			return
		}

		h.redirectWithFlash(w, r, back, shared.FlashInfo, "Updated role for "+updated.Email+" to "+updated.Role.Label())
	}
}

func (h *Handler) showProfile(w http.ResponseWriter, r *http.Request) {
	actor := shared.IdentityFromContext(r.Context())
	person, err := h.service.GetSelf(r.Context(), actor)
	if err != nil {
		h.logger.Error("load own profile", slog.Any("error", err))
		h.redirectWithFlash(w, r, "/", shared.FlashError, shared.UserSafeMessage(err))
		return
	}
	h.render(w, r, "pages/profile.html", "Profile", map[string]any{
		"Person":   person,
		"Editable": true,
	}, http.StatusOK)
}

type updateInfoForm struct {
	Email string `validate:"required,email"`
}

func (h *Handler) updateOwnInfo(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	// The target record is always the session identity; any posted id is
	// ignored.
	actor := shared.IdentityFromContext(r.Context())
	form := updateInfoForm{Email: strings.TrimSpace(r.PostFormValue("email"))}
	if err := h.validator.Struct(form); err != nil {
		h.redirectWithFlash(w, r, "/user/profile", shared.FlashError, "Please provide a valid email")
		return
	}

	updated, err := h.service.UpdateOwnEmail(r.Context(), actor, form.Email)
	if err != nil {
		if errors.Is(err, shared.ErrEmailTaken) {
			h.redirectWithFlash(w, r, "/user/profile", shared.FlashWarning, shared.UserSafeMessage(err))
			return
		}
		h.logger.Error("update own email", slog.Any("error", err))
		h.redirectWithFlash(w, r, "/user/profile", shared.FlashError, shared.UserSafeMessage(err))
		return
	}

	h.redirectWithFlash(w, r, "/user/profile", shared.FlashInfo, "Updated user "+updated.Email)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
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
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

// parseID validates a route or form identifier: a positive int64. Malformed
// ids never reach the store layer.
func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// isDenial reports whether err is a role-policy denial whose message is
// meant for the user.
func isDenial(err error) bool {
	return errors.Is(err, roles.ErrNotAuthorized) ||
		errors.Is(err, roles.ErrSelfDelete) ||
		errors.Is(err, roles.ErrSelfRole) ||
		errors.Is(err, roles.ErrDeleteSuper) ||
		errors.Is(err, roles.ErrDeleteDenied) ||
		errors.Is(err, roles.ErrAssignAbove) ||
		errors.Is(err, roles.ErrTargetAbove)
}
