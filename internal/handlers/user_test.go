package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"github.com/oshop/backoffice/internal/services"
	appsession "github.com/oshop/backoffice/internal/session"
	"github.com/oshop/backoffice/internal/store"
	"github.com/oshop/backoffice/internal/web"
	"github.com/oshop/backoffice/types"
	"golang.org/x/crypto/bcrypt"
)

// fakeUserRepo is an in-memory services.UserRepository that counts lookups.
type fakeUserRepo struct {
	users   []types.User
	lookups int
	nextID  int
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	f.lookups++
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUserRepo) List(_ context.Context) ([]types.User, error) {
	return append([]types.User(nil), f.users...), nil
}

func (f *fakeUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	for _, u := range f.users {
		if u.Email == user.Email {
			return types.User{}, store.ErrDuplicateEmail
		}
	}
	f.nextID++
	user.ID = f.nextID
	f.users = append(f.users, user)
	return user, nil
}

type testEnv struct {
	router chi.Router
	repo   *fakeUserRepo
	sm     *appsession.Manager
}

func newTestEnv(t *testing.T, enforceRBAC bool) *testEnv {
	t.Helper()

	cookieStore := sessions.NewCookieStore([]byte("0123456789abcdef0123456789abcdef"))
	cookieStore.Options = &sessions.Options{Path: "/", MaxAge: 3600}
	sm := appsession.NewManager(cookieStore)

	views, err := web.NewRenderer()
	if err != nil {
		t.Fatalf("build renderer: %v", err)
	}

	repo := &fakeUserRepo{}
	handler := NewUserHandler(services.NewUserService(repo), sm, views)

	router := chi.NewRouter()
	UserRouter(router, handler, enforceRBAC)

	return &testEnv{router: router, repo: repo, sm: sm}
}

// seedUser registers a user with the given plaintext password.
func (e *testEnv) seedUser(t *testing.T, email, password, role string) types.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash fixture password: %v", err)
	}
	user, err := e.repo.Create(context.Background(), types.User{
		Email:        email,
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
		Status:       types.StatusActive,
		PasswordHash: string(hash),
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func (e *testEnv) do(t *testing.T, method, path string, form url.Values, cookies []*http.Cookie) *http.Response {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = postForm(path, form)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec.Result()
}

// cookiesOf keeps the most recent value per cookie name, as a browser would.
func cookiesOf(resp *http.Response) []*http.Cookie {
	byName := make(map[string]*http.Cookie)
	var order []string
	for _, c := range resp.Cookies() {
		if _, seen := byName[c.Name]; !seen {
			order = append(order, c.Name)
		}
		byName[c.Name] = c
	}
	out := make([]*http.Cookie, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out
}

func (e *testEnv) currentUser(cookies []*http.Cookie) (types.User, bool) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return e.sm.CurrentUser(req)
}

func (e *testEnv) popFlashes(t *testing.T, cookies []*http.Cookie) (success, errs []string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	success, errs, err := e.sm.PopFlashes(httptest.NewRecorder(), req)
	if err != nil {
		t.Fatalf("pop flashes: %v", err)
	}
	return success, errs
}

// authenticatedCookies builds a session that already holds a user.
func (e *testEnv) authenticatedCookies(t *testing.T, user types.User) []*http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	if err := e.sm.SetCurrentUser(rec, req, user); err != nil {
		t.Fatalf("set current user: %v", err)
	}
	return cookiesOf(rec.Result())
}

func assertRedirect(t *testing.T, resp *http.Response, target string) {
	t.Helper()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected 303 redirect, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != target {
		t.Fatalf("expected redirect to %q, got %q", target, loc)
	}
}

func TestLoginFormRendersForAnonymous(t *testing.T) {
	env := newTestEnv(t, false)

	resp := env.do(t, http.MethodGet, "/login", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !regexp.MustCompile(`name="password"`).Match(body) {
		t.Fatalf("expected the login form to be rendered")
	}
}

func TestLoginFormRedirectsWhenAuthenticated(t *testing.T) {
	env := newTestEnv(t, false)
	user := env.seedUser(t, "admin@oshop.example", "secret", types.RoleAdmin)
	cookies := env.authenticatedCookies(t, user)

	resp := env.do(t, http.MethodGet, "/login", nil, cookies)
	assertRedirect(t, resp, "/")

	_, errs := env.popFlashes(t, cookiesOf(resp))
	if len(errs) != 1 || errs[0] != msgAlreadyLoggedIn {
		t.Fatalf("expected the already-logged-in message, got %v", errs)
	}
}

func TestLoginEmptyFieldsIsTerminal(t *testing.T) {
	env := newTestEnv(t, false)
	env.seedUser(t, "admin@oshop.example", "secret", types.RoleAdmin)

	for _, form := range []url.Values{
		{"email": {""}, "password": {"secret"}},
		{"email": {"admin@oshop.example"}, "password": {""}},
		{"email": {"not-an-email"}, "password": {"secret"}},
	} {
		resp := env.do(t, http.MethodPost, "/login", form, nil)
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d for %v", resp.StatusCode, form)
		}
		if loc := resp.Header.Get("Location"); loc != "" {
			t.Fatalf("terminal response must not redirect, got %q", loc)
		}
	}
	if env.repo.lookups != 0 {
		t.Fatalf("no lookup may happen for incomplete credentials, got %d", env.repo.lookups)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	env := newTestEnv(t, false)

	resp := env.do(t, http.MethodPost, "/login", url.Values{
		"email":    {"a@b.com"},
		"password": {"secret"},
	}, nil)
	assertRedirect(t, resp, "/login")

	cookies := cookiesOf(resp)
	if _, ok := env.currentUser(cookies); ok {
		t.Fatalf("no user may be authenticated")
	}
	_, errs := env.popFlashes(t, cookies)
	if len(errs) != 1 || errs[0] != msgUserNotFound {
		t.Fatalf("expected exactly one user-not-found message, got %v", errs)
	}
}

func TestLoginSuccess(t *testing.T) {
	env := newTestEnv(t, false)
	seeded := env.seedUser(t, "admin@oshop.example", "secret", types.RoleAdmin)

	resp := env.do(t, http.MethodPost, "/login", url.Values{
		"email":    {"admin@oshop.example"},
		"password": {"secret"},
	}, nil)
	assertRedirect(t, resp, "/")

	cookies := cookiesOf(resp)
	got, ok := env.currentUser(cookies)
	if !ok {
		t.Fatalf("expected an authenticated user")
	}
	if got.ID != seeded.ID || got.Email != seeded.Email {
		t.Fatalf("authenticated slot must equal the looked-up user, got %+v", got)
	}
	success, _ := env.popFlashes(t, cookies)
	if len(success) != 1 || success[0] != msgLoginSuccess {
		t.Fatalf("expected a success message, got %v", success)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t, false)
	env.seedUser(t, "admin@oshop.example", "secret", types.RoleAdmin)

	resp := env.do(t, http.MethodPost, "/login", url.Values{
		"email":    {"admin@oshop.example"},
		"password": {"wrong"},
	}, nil)
	assertRedirect(t, resp, "/login")

	cookies := cookiesOf(resp)
	if _, ok := env.currentUser(cookies); ok {
		t.Fatalf("a wrong password must not authenticate")
	}
	_, errs := env.popFlashes(t, cookies)
	if len(errs) != 1 || errs[0] != msgWrongPassword {
		t.Fatalf("expected the incorrect-password message, got %v", errs)
	}
}

func TestLogoutClearsUser(t *testing.T) {
	env := newTestEnv(t, false)
	user := env.seedUser(t, "admin@oshop.example", "secret", types.RoleAdmin)
	cookies := env.authenticatedCookies(t, user)

	resp := env.do(t, http.MethodPost, "/logout", url.Values{}, cookies)
	assertRedirect(t, resp, "/")

	cookies = cookiesOf(resp)
	if _, ok := env.currentUser(cookies); ok {
		t.Fatalf("logout must clear the authenticated slot")
	}
	success, _ := env.popFlashes(t, cookies)
	if len(success) != 1 || success[0] != msgLogoutSuccess {
		t.Fatalf("expected the logout message, got %v", success)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	env := newTestEnv(t, false)

	resp := env.do(t, http.MethodGet, "/logout", nil, nil)
	assertRedirect(t, resp, "/")
	if _, ok := env.currentUser(cookiesOf(resp)); ok {
		t.Fatalf("anonymous logout must stay anonymous")
	}
}

func TestListUsersRendersAll(t *testing.T) {
	env := newTestEnv(t, false)
	env.seedUser(t, "admin@oshop.example", "secret", types.RoleAdmin)
	env.seedUser(t, "lea@oshop.example", "secret", types.RoleCatalogManager)

	resp := env.do(t, http.MethodGet, "/users", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, email := range []string{"admin@oshop.example", "lea@oshop.example"} {
		if !regexp.MustCompile(regexp.QuoteMeta(email)).Match(body) {
			t.Fatalf("expected %s in the list page", email)
		}
	}
}

var csrfInputPattern = regexp.MustCompile(`name="csrf_token" value="([0-9a-f]{64})"`)

func TestAddUserFormEmbedsToken(t *testing.T) {
	env := newTestEnv(t, false)

	resp := env.do(t, http.MethodGet, "/users/new", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	match := csrfInputPattern.FindSubmatch(body)
	if match == nil {
		t.Fatalf("expected a csrf token in the add form")
	}

	// The embedded token must verify against the same session.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookiesOf(resp) {
		req.AddCookie(c)
	}
	if !env.sm.VerifyCSRFToken(req, string(match[1])) {
		t.Fatalf("embedded token must match the session token")
	}
}

// addFormSession renders the add form and returns its cookies and token, the
// way a browser would arrive at the create POST.
func (e *testEnv) addFormSession(t *testing.T) ([]*http.Cookie, string) {
	t.Helper()
	resp := e.do(t, http.MethodGet, "/users/new", nil, nil)
	body, _ := io.ReadAll(resp.Body)
	match := csrfInputPattern.FindSubmatch(body)
	if match == nil {
		t.Fatalf("expected a csrf token in the add form")
	}
	return cookiesOf(resp), string(match[1])
}

func TestCreateUserSuccess(t *testing.T) {
	env := newTestEnv(t, false)
	cookies, token := env.addFormSession(t)

	form := validCreateForm()
	form.Set("csrf_token", token)
	resp := env.do(t, http.MethodPost, "/users", form, cookies)
	assertRedirect(t, resp, "/users")

	if len(env.repo.users) != 1 {
		t.Fatalf("expected one persisted user, got %d", len(env.repo.users))
	}
	created := env.repo.users[0]
	if created.Role != types.RoleCatalogManager || created.Status != types.StatusActive {
		t.Fatalf("unexpected persisted user: %+v", created)
	}
	if created.PasswordHash == "secret" {
		t.Fatalf("password must be stored hashed")
	}
	if bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("secret")) != nil {
		t.Fatalf("persisted hash must verify against the original plaintext")
	}
	if bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("other")) == nil {
		t.Fatalf("persisted hash must not verify against another string")
	}

	success, _ := env.popFlashes(t, cookiesOf(resp))
	if len(success) != 1 || success[0] != msgUserCreated {
		t.Fatalf("expected the user-created message, got %v", success)
	}
}

func TestCreateUserInvalidRole(t *testing.T) {
	env := newTestEnv(t, false)
	cookies, token := env.addFormSession(t)

	form := validCreateForm()
	form.Set("csrf_token", token)
	form.Set("role", "superadmin")
	resp := env.do(t, http.MethodPost, "/users", form, cookies)
	assertRedirect(t, resp, "/users/new")

	if len(env.repo.users) != 0 {
		t.Fatalf("an invalid role must not be persisted")
	}
	_, errs := env.popFlashes(t, cookiesOf(resp))
	if len(errs) == 0 {
		t.Fatalf("expected a role validation error")
	}
}

func TestCreateUserInvalidStatus(t *testing.T) {
	env := newTestEnv(t, false)
	cookies, token := env.addFormSession(t)

	form := validCreateForm()
	form.Set("csrf_token", token)
	form.Set("status", "2")
	resp := env.do(t, http.MethodPost, "/users", form, cookies)
	assertRedirect(t, resp, "/users/new")

	if len(env.repo.users) != 0 {
		t.Fatalf("an invalid status must not be persisted")
	}
	_, errs := env.popFlashes(t, cookiesOf(resp))
	if len(errs) == 0 {
		t.Fatalf("expected a status validation error")
	}
}

func TestCreateUserBadCSRFToken(t *testing.T) {
	env := newTestEnv(t, false)
	cookies, _ := env.addFormSession(t)

	form := validCreateForm()
	form.Set("csrf_token", "0000000000000000000000000000000000000000000000000000000000000000")
	resp := env.do(t, http.MethodPost, "/users", form, cookies)
	assertRedirect(t, resp, "/users/new")

	if len(env.repo.users) != 0 {
		t.Fatalf("a forged form must not be persisted")
	}
	_, errs := env.popFlashes(t, cookiesOf(resp))
	if len(errs) != 1 || errs[0] != msgBadFormToken {
		t.Fatalf("expected the form-token error, got %v", errs)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	env := newTestEnv(t, false)
	env.seedUser(t, "lea@oshop.example", "secret", types.RoleCatalogManager)
	cookies, token := env.addFormSession(t)

	form := validCreateForm()
	form.Set("csrf_token", token)
	resp := env.do(t, http.MethodPost, "/users", form, cookies)
	assertRedirect(t, resp, "/users/new")

	if len(env.repo.users) != 1 {
		t.Fatalf("the duplicate must not be persisted")
	}
	_, errs := env.popFlashes(t, cookiesOf(resp))
	if len(errs) != 1 || errs[0] != msgEmailTaken {
		t.Fatalf("expected the duplicate-email message, got %v", errs)
	}
}

func TestRequireRoleRedirectsAnonymous(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.do(t, http.MethodGet, "/users", nil, nil)
	assertRedirect(t, resp, "/login")

	_, errs := env.popFlashes(t, cookiesOf(resp))
	if len(errs) != 1 || errs[0] != msgLoginRequired {
		t.Fatalf("expected the login-required message, got %v", errs)
	}
}

func TestRequireRoleRejectsWrongRole(t *testing.T) {
	env := newTestEnv(t, true)
	user := env.seedUser(t, "lea@oshop.example", "secret", types.RoleCatalogManager)
	cookies := env.authenticatedCookies(t, user)

	resp := env.do(t, http.MethodGet, "/users", nil, cookies)
	assertRedirect(t, resp, "/")

	_, errs := env.popFlashes(t, cookiesOf(resp))
	if len(errs) != 1 || errs[0] != msgForbidden {
		t.Fatalf("expected the forbidden message, got %v", errs)
	}
}

func TestRequireRoleAdmitsAdmin(t *testing.T) {
	env := newTestEnv(t, true)
	user := env.seedUser(t, "admin@oshop.example", "secret", types.RoleAdmin)
	cookies := env.authenticatedCookies(t, user)

	resp := env.do(t, http.MethodGet, "/users", nil, cookies)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for an admin, got %d", resp.StatusCode)
	}
}

func TestHomeShowsFlashesOnce(t *testing.T) {
	env := newTestEnv(t, false)
	user := env.seedUser(t, "admin@oshop.example", "secret", types.RoleAdmin)
	cookies := env.authenticatedCookies(t, user)

	// Logout queues a message; the next page shows it, the one after does not.
	resp := env.do(t, http.MethodGet, "/logout", nil, cookies)
	cookies = cookiesOf(resp)

	resp = env.do(t, http.MethodGet, "/", nil, cookies)
	body, _ := io.ReadAll(resp.Body)
	if !regexp.MustCompile(regexp.QuoteMeta(msgLogoutSuccess)).Match(body) {
		t.Fatalf("expected the logout message on the next page")
	}

	cookies = cookiesOf(resp)
	resp = env.do(t, http.MethodGet, "/", nil, cookies)
	body, _ = io.ReadAll(resp.Body)
	if regexp.MustCompile(regexp.QuoteMeta(msgLogoutSuccess)).Match(body) {
		t.Fatalf("flash messages must not be shown twice")
	}
}
