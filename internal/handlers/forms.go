package handlers

import (
	"net/http"
	"net/mail"
	"strings"

	"github.com/oshop/backoffice/types"
)

// loginForm is the typed extraction of the login POST body.
type loginForm struct {
	Email    string
	Password string
}

func parseLoginForm(r *http.Request) loginForm {
	return loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
}

// complete reports whether both fields are present and the email is
// well-formed. An incomplete login is rejected before any lookup happens.
func (f loginForm) complete() bool {
	return f.Email != "" && f.Password != "" && validEmail(f.Email)
}

// createUserForm is the typed extraction of the add-user POST body. Status
// stays a raw string until validation has accepted it.
type createUserForm struct {
	LastName  string
	FirstName string
	Email     string
	Password  string
	Role      string
	Status    string
	CSRFToken string
}

func parseCreateUserForm(r *http.Request) createUserForm {
	return createUserForm{
		LastName:  strings.TrimSpace(r.PostFormValue("lastname")),
		FirstName: strings.TrimSpace(r.PostFormValue("firstname")),
		Email:     strings.TrimSpace(r.PostFormValue("email")),
		Password:  r.PostFormValue("password"),
		Role:      r.PostFormValue("role"),
		Status:    r.PostFormValue("status"),
		CSRFToken: r.PostFormValue("csrf_token"),
	}
}

// validate runs every check and accumulates the failures; it never
// short-circuits, so one submission reports everything wrong with it.
func (f createUserForm) validate() []string {
	var errs []string
	if f.Email != "" && !validEmail(f.Email) {
		errs = append(errs, "You must enter a valid email address!")
	}
	if f.LastName == "" || f.FirstName == "" || f.Email == "" || f.Password == "" || f.Role == "" || f.Status == "" {
		errs = append(errs, "All fields must be filled in!")
	}
	if !types.ValidRole(f.Role) {
		errs = append(errs, "The role is not valid!")
	}
	if !types.ValidStatus(f.Status) {
		errs = append(errs, "The status is not valid!")
	}
	return errs
}

func validEmail(address string) bool {
	parsed, err := mail.ParseAddress(address)
	return err == nil && parsed.Address == address
}
