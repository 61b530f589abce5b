package auth_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/crewdock/crewdock/internal/auth"
	"github.com/crewdock/crewdock/internal/roles"
	"github.com/crewdock/crewdock/internal/shared"
	"github.com/crewdock/crewdock/internal/view"
	_ "github.com/crewdock/crewdock/testing"
)

// stubAuthRepo is an in-memory auth.Repository.
type stubAuthRepo struct {
	users           map[string]*auth.User
	sessions        map[string]int64
	deletedSessions []string
}

func newStubAuthRepo(users ...*auth.User) *stubAuthRepo {
	repo := &stubAuthRepo{users: make(map[string]*auth.User), sessions: make(map[string]int64)}
	for _, u := range users {
		repo.users[strings.ToLower(u.Email)] = u
	}
	return repo
}

func (s *stubAuthRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	u, ok := s.users[strings.ToLower(email)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func (s *stubAuthRepo) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubAuthRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	s.sessions[id] = userID
	return nil
}

func (s *stubAuthRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	s.deletedSessions = append(s.deletedSessions, id)
	return nil
}

func (s *stubAuthRepo) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

var _ auth.Repository = (*stubAuthRepo)(nil)

func testUser(t *testing.T, id int64, email, password string, role roles.Role) *auth.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return &auth.User{ID: id, Email: email, Name: "Test User", PasswordHash: string(hash), Role: role, IsActive: true}
}

type authFixture struct {
	handler  *auth.Handler
	service  *auth.Service
	repo     *stubAuthRepo
	sessions *shared.SessionManager
	redis    *miniredis.Miniredis
	session  *shared.Session
}

func newAuthFixture(t *testing.T, repo *stubAuthRepo) *authFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := view.NewEngine()
	if err != nil {
		t.Fatalf("parse templates: %v", err)
	}
	sm := shared.NewSessionManager(client, "crewdock_session", time.Hour, false)
	service := auth.NewService(repo)
	handler := auth.NewHandler(logger, service, engine, sm, shared.NewCSRFManager("test-csrf-secret"))

	return &authFixture{handler: handler, service: service, repo: repo, sessions: sm, redis: mr}
}

// serve runs one handler func with a fresh session in context and keeps the
// session for assertions.
func (f *authFixture) serve(t *testing.T, req *http.Request, h http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	sess, err := f.sessions.Load(req.Context(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	f.session = sess
	rec := httptest.NewRecorder()
	h(rec, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
	return rec
}

func loginRequest(email, password string) *http.Request {
	form := url.Values{"email": {email}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestShowLoginRendersForm(t *testing.T) {
	f := newAuthFixture(t, newStubAuthRepo())

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	rec := f.serve(t, req, f.handler.ShowLoginForTest)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `name="email"`) || !strings.Contains(body, `name="password"`) {
		t.Fatal("login form fields missing")
	}
	if !strings.Contains(body, `name="csrf_token"`) {
		t.Fatal("csrf token field missing")
	}
}

func TestShowLoginRedirectsAuthenticatedUsers(t *testing.T) {
	f := newAuthFixture(t, newStubAuthRepo())

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	identity := &shared.Identity{ID: 1, Email: "a@x.com", Role: roles.RoleUser}
	req = req.WithContext(shared.ContextWithIdentity(req.Context(), identity))
	rec := f.serve(t, req, f.handler.ShowLoginForTest)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("want redirect, got %d", rec.Code)
	}
}

func TestLoginSuccessBindsSession(t *testing.T) {
	user := testUser(t, 7, "a@x.com", "correct-horse", roles.RoleAdmin)
	f := newAuthFixture(t, newStubAuthRepo(user))

	rec := f.serve(t, loginRequest("a@x.com", "correct-horse"), f.handler.HandleLoginForTest)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("want redirect, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Fatalf("unexpected redirect target %q", loc)
	}
	if got := f.session.User(); got != "7" {
		t.Fatalf("session not bound to user, got %q", got)
	}
	if _, ok := f.repo.sessions[f.session.ID]; !ok {
		t.Fatal("session record not persisted for auditing")
	}
}

func TestLoginWrongPasswordFailsUniformly(t *testing.T) {
	user := testUser(t, 7, "a@x.com", "correct-horse", roles.RoleUser)
	f := newAuthFixture(t, newStubAuthRepo(user))

	for name, creds := range map[string][2]string{
		"wrong password":  {"a@x.com", "battery-staple"},
		"unknown account": {"nobody@x.com", "correct-horse"},
	} {
		rec := f.serve(t, loginRequest(creds[0], creds[1]), f.handler.HandleLoginForTest)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: want 400, got %d", name, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Invalid email or password") {
			t.Fatalf("%s: expected the uniform failure notice", name)
		}
		if f.session.User() != "" {
			t.Fatalf("%s: session must stay anonymous", name)
		}
	}
}

func TestLoginInactiveAccountFailsLikeWrongPassword(t *testing.T) {
	user := testUser(t, 7, "a@x.com", "correct-horse", roles.RoleUser)
	user.IsActive = false
	f := newAuthFixture(t, newStubAuthRepo(user))

	rec := f.serve(t, loginRequest("a@x.com", "correct-horse"), f.handler.HandleLoginForTest)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid email or password") {
		t.Fatal("inactive accounts must fail indistinguishably")
	}
}

func TestLoginPreservesEmailOnFailure(t *testing.T) {
	f := newAuthFixture(t, newStubAuthRepo())

	rec := f.serve(t, loginRequest("typo@x.com", "whatever-pass"), f.handler.HandleLoginForTest)

	body := rec.Body.String()
	if !strings.Contains(body, "typo@x.com") {
		t.Fatal("submitted email must be preserved in the form")
	}
	if strings.Contains(body, "whatever-pass") {
		t.Fatal("password must never be echoed back")
	}
}

func TestAuthenticateUniformError(t *testing.T) {
	user := testUser(t, 7, "a@x.com", "correct-horse", roles.RoleUser)
	inactive := testUser(t, 8, "b@x.com", "correct-horse", roles.RoleUser)
	inactive.IsActive = false
	service := auth.NewService(newStubAuthRepo(user, inactive))

	cases := map[string][2]string{
		"unknown email":  {"nobody@x.com", "correct-horse"},
		"wrong password": {"a@x.com", "nope"},
		"inactive":       {"b@x.com", "correct-horse"},
	}
	for name, creds := range cases {
		_, err := service.Authenticate(context.Background(), creds[0], creds[1])
		if err != shared.ErrInvalidCredentials {
			t.Fatalf("%s: want ErrInvalidCredentials, got %v", name, err)
		}
	}

	got, err := service.Authenticate(context.Background(), "a@x.com", "correct-horse")
	if err != nil {
		t.Fatalf("valid credentials: %v", err)
	}
	if got.ID != 7 {
		t.Fatalf("wrong account returned: %+v", got)
	}
}
