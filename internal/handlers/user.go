package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/oshop/backoffice/internal/auth"
	"github.com/oshop/backoffice/internal/services"
	"github.com/oshop/backoffice/internal/session"
	"github.com/oshop/backoffice/internal/store"
	"github.com/oshop/backoffice/internal/web"
	"github.com/oshop/backoffice/types"
)

// Flash messages shown on the page after a redirect.
const (
	msgAlreadyLoggedIn = "You are already logged in!"
	msgLoginSuccess    = "Login successful!"
	msgLogoutSuccess   = "Logout successful!"
	msgUserNotFound    = "User not found"
	msgWrongPassword   = "Incorrect password"
	msgUserCreated     = "User created!"
	msgEmailTaken      = "This email address is already registered!"
	msgCreateFailed    = "The user could not be saved, please try again"
	msgBadFormToken    = "The form has expired, please try again"
	msgLoginRequired   = "You must be logged in to access this page"
	msgForbidden       = "You are not allowed to access this page"
)

// Terminal response body for a login attempt with missing or malformed fields.
const msgFieldsRequired = "all fields must be filled in"

// UserHandler provides the login/logout and user-administration pages.
type UserHandler struct {
	userService *services.UserService
	sessions    *session.Manager
	views       *web.Renderer
}

// NewUserHandler constructs a UserHandler with the provided dependencies.
func NewUserHandler(userService *services.UserService, sessions *session.Manager, views *web.Renderer) *UserHandler {
	return &UserHandler{
		userService: userService,
		sessions:    sessions,
		views:       views,
	}
}

// UserRouter registers the page routes on the given router. The role guard on
// /users is mounted only when enforceRBAC is set; the caller is expected to
// warn when it is off.
func UserRouter(r chi.Router, handler *UserHandler, enforceRBAC bool) {
	r.Get("/", handler.Home)
	r.Get("/login", handler.LoginForm)
	r.Post("/login", handler.Login)
	r.Get("/logout", handler.Logout)
	r.Post("/logout", handler.Logout)

	r.Route("/users", func(r chi.Router) {
		if enforceRBAC {
			r.Use(handler.requireRole(types.RoleAdmin))
		}
		r.Get("/", handler.ListUsers)
		r.Get("/new", handler.AddUserForm)
		r.Post("/", handler.CreateUser)
	})
}

// Home renders the landing page, the redirect target of the auth flows.
func (h *UserHandler) Home(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "home", web.Data{Title: "Home"})
}

// LoginForm shows the login form, unless a user is already authenticated, in
// which case the visitor is sent home with an error message.
func (h *UserHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.sessions.CurrentUser(r); ok {
		h.flashError(w, r, msgAlreadyLoggedIn)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, "login", web.Data{Title: "Log in"})
}

// Login authenticates the posted credentials and redirects.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	form := parseLoginForm(r)
	if !form.complete() {
		// Terminal response: no redirect, and no lookup happens.
		http.Error(w, msgFieldsRequired, http.StatusUnprocessableEntity)
		return
	}

	user, err := h.userService.GetByEmail(r.Context(), form.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.flashError(w, r, msgUserNotFound)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		h.serverError(w, r, err)
		return
	}

	// Wrong password takes the same redirect as an unknown email, but the
	// lookup and the verification stay separate steps.
	if !auth.CheckPassword(form.Password, user.PasswordHash) {
		h.flashError(w, r, msgWrongPassword)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if err := h.sessions.SetCurrentUser(w, r, user); err != nil {
		h.serverError(w, r, err)
		return
	}
	h.flashSuccess(w, r, msgLoginSuccess)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout clears the authenticated slot and redirects home. Logging out an
// anonymous session behaves the same way.
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.ClearCurrentUser(w, r); err != nil {
		h.serverError(w, r, err)
		return
	}
	h.flashSuccess(w, r, msgLogoutSuccess)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ListUsers renders every user account.
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "users_list", web.Data{Title: "Users", Users: users})
}

// AddUserForm renders the add-user form with a fresh anti-forgery token.
func (h *UserHandler) AddUserForm(w http.ResponseWriter, r *http.Request) {
	token, err := h.sessions.IssueCSRFToken(w, r)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "users_add", web.Data{Title: "Add a user", CSRFToken: token})
}

// CreateUser validates the posted form, persists the new account, and
// redirects: to the list on success, back to the form otherwise.
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	form := parseCreateUserForm(r)

	errs := form.validate()
	if !h.sessions.VerifyCSRFToken(r, form.CSRFToken) {
		errs = append(errs, msgBadFormToken)
	}
	if len(errs) > 0 {
		for _, msg := range errs {
			h.flashError(w, r, msg)
		}
		http.Redirect(w, r, "/users/new", http.StatusSeeOther)
		return
	}

	hash, err := auth.HashPassword(form.Password)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	status, _ := strconv.Atoi(form.Status)
	_, err = h.userService.Create(r.Context(), types.User{
		Email:        form.Email,
		FirstName:    form.FirstName,
		LastName:     form.LastName,
		Role:         form.Role,
		Status:       status,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			h.flashError(w, r, msgEmailTaken)
		} else {
			h.logError(r, err)
			h.flashError(w, r, msgCreateFailed)
		}
		http.Redirect(w, r, "/users/new", http.StatusSeeOther)
		return
	}

	h.flashSuccess(w, r, msgUserCreated)
	http.Redirect(w, r, "/users", http.StatusSeeOther)
}

// requireRole guards a route subtree behind the given roles. Kept behind the
// RBAC_ENFORCE flag until the access policy for the back office is settled.
func (h *UserHandler) requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := h.sessions.CurrentUser(r)
			if !ok {
				h.flashError(w, r, msgLoginRequired)
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			h.flashError(w, r, msgForbidden)
			http.Redirect(w, r, "/", http.StatusSeeOther)
		})
	}
}
