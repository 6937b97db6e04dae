// Package session wraps the visitor session: the authenticated-user slot,
// the one-shot success/error message queues, and the form anti-forgery token.
package session

import (
	"encoding/gob"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/oshop/backoffice/internal/auth"
	"github.com/oshop/backoffice/types"
)

// CookieName is the name of the session cookie.
const CookieName = "oshop_session"

const (
	keyUser    = "authenticatedUser"
	keySuccess = "successMessages"
	keyError   = "errorMessages"
	keyCSRF    = "csrfToken"
)

func init() {
	// The authenticated slot holds a gob-encoded snapshot of the full User.
	gob.Register(types.User{})
}

// Manager exposes typed accessors over a sessions.Store so handlers never
// touch raw session keys.
type Manager struct {
	store sessions.Store
}

func NewManager(store sessions.Store) *Manager {
	return &Manager{store: store}
}

// session returns the visitor's session, new or existing. A cookie that no
// longer decodes yields a fresh session rather than an error.
func (m *Manager) session(r *http.Request) *sessions.Session {
	s, _ := m.store.Get(r, CookieName)
	return s
}

// CurrentUser returns the authenticated user snapshot, if any.
func (m *Manager) CurrentUser(r *http.Request) (types.User, bool) {
	user, ok := m.session(r).Values[keyUser].(types.User)
	return user, ok
}

// SetCurrentUser stores a snapshot of user in the authenticated slot.
func (m *Manager) SetCurrentUser(w http.ResponseWriter, r *http.Request, user types.User) error {
	s := m.session(r)
	s.Values[keyUser] = user
	return s.Save(r, w)
}

// ClearCurrentUser removes the authenticated slot. Clearing an absent slot
// is a no-op, so logout is idempotent. The rest of the session, including
// queued messages, survives.
func (m *Manager) ClearCurrentUser(w http.ResponseWriter, r *http.Request) error {
	s := m.session(r)
	delete(s.Values, keyUser)
	return s.Save(r, w)
}

// AddSuccess queues a one-shot success message for the next rendered page.
func (m *Manager) AddSuccess(w http.ResponseWriter, r *http.Request, msg string) error {
	s := m.session(r)
	s.AddFlash(msg, keySuccess)
	return s.Save(r, w)
}

// AddError queues a one-shot error message for the next rendered page.
func (m *Manager) AddError(w http.ResponseWriter, r *http.Request, msg string) error {
	s := m.session(r)
	s.AddFlash(msg, keyError)
	return s.Save(r, w)
}

// PopFlashes drains both message queues. Messages are returned once and
// cleared from the session.
func (m *Manager) PopFlashes(w http.ResponseWriter, r *http.Request) (success, errs []string, err error) {
	s := m.session(r)
	success = flashStrings(s.Flashes(keySuccess))
	errs = flashStrings(s.Flashes(keyError))
	if len(success) == 0 && len(errs) == 0 {
		return nil, nil, nil
	}
	return success, errs, s.Save(r, w)
}

// IssueCSRFToken generates a fresh anti-forgery token and stores it in the
// session. Reissuing overwrites any previous token.
func (m *Manager) IssueCSRFToken(w http.ResponseWriter, r *http.Request) (string, error) {
	token, err := auth.GenerateCSRFToken()
	if err != nil {
		return "", err
	}
	s := m.session(r)
	s.Values[keyCSRF] = token
	if err := s.Save(r, w); err != nil {
		return "", err
	}
	return token, nil
}

// VerifyCSRFToken reports whether token matches the one stored in the session.
func (m *Manager) VerifyCSRFToken(r *http.Request, token string) bool {
	stored, ok := m.session(r).Values[keyCSRF].(string)
	if !ok {
		return false
	}
	return auth.TokenEqual(stored, token)
}

func flashStrings(flashes []interface{}) []string {
	if len(flashes) == 0 {
		return nil
	}
	out := make([]string, 0, len(flashes))
	for _, f := range flashes {
		if msg, ok := f.(string); ok {
			out = append(out, msg)
		}
	}
	return out
}
