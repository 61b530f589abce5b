package shared_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/crewdock/crewdock/internal/shared"
	_ "github.com/crewdock/crewdock/testing"
)

func newTestManager(t *testing.T) (*shared.SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return shared.NewSessionManager(client, "crewdock_session", time.Hour, false), mr
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "crewdock_session" {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func TestSessionRoundTrip(t *testing.T) {
	sm, _ := newTestManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sess.Set("theme", "dark")
	sess.SetUser("7")

	rec := httptest.NewRecorder()
	if err := sm.Commit(ctx, rec, req, sess); err != nil {
		t.Fatalf("commit: %v", err)
	}
	cookie := sessionCookie(t, rec)

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	next.AddCookie(cookie)
	restored, err := sm.Load(ctx, next)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if restored.ID != sess.ID {
		t.Fatalf("session id changed: %q vs %q", restored.ID, sess.ID)
	}
	if restored.Get("theme") != "dark" || restored.User() != "7" {
		t.Fatalf("state lost across requests: %+v", restored)
	}
}

func TestFlashesAreOneShot(t *testing.T) {
	sm, _ := newTestManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, _ := sm.Load(ctx, req)
	sess.AddFlash(shared.FlashMessage{Kind: shared.FlashSuccess, Message: "saved"})
	sess.AddFlash(shared.FlashMessage{Kind: shared.FlashError, Message: "but also this"})

	rec := httptest.NewRecorder()
	if err := sm.Commit(ctx, rec, req, sess); err != nil {
		t.Fatalf("commit: %v", err)
	}
	cookie := sessionCookie(t, rec)

	// First read drains the whole queue.
	next := httptest.NewRequest(http.MethodGet, "/", nil)
	next.AddCookie(cookie)
	restored, _ := sm.Load(ctx, next)
	msgs := restored.PopFlashes()
	if len(msgs) != 2 || msgs[0].Message != "saved" {
		t.Fatalf("unexpected flashes: %v", msgs)
	}
	if err := sm.Commit(ctx, httptest.NewRecorder(), next, restored); err != nil {
		t.Fatalf("commit after pop: %v", err)
	}

	// Second read sees nothing.
	again := httptest.NewRequest(http.MethodGet, "/", nil)
	again.AddCookie(cookie)
	final, _ := sm.Load(ctx, again)
	if left := final.PopFlashes(); left != nil {
		t.Fatalf("flashes must not survive a second read: %v", left)
	}
}

func TestDestroyRemovesSession(t *testing.T) {
	sm, mr := newTestManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, _ := sm.Load(ctx, req)
	sess.SetUser("7")
	if err := sm.Commit(ctx, httptest.NewRecorder(), req, sess); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !mr.Exists("crewdock:sess:" + sess.ID) {
		t.Fatal("session not stored")
	}

	sm.Destroy(sess)
	rec := httptest.NewRecorder()
	if err := sm.Commit(ctx, rec, req, sess); err != nil {
		t.Fatalf("commit destroy: %v", err)
	}
	if mr.Exists("crewdock:sess:" + sess.ID) {
		t.Fatal("destroyed session still in redis")
	}
	cookie := sessionCookie(t, rec)
	if cookie.MaxAge != -1 {
		t.Fatalf("cookie not expired: %+v", cookie)
	}
}

func TestStaleCookieStartsFreshSession(t *testing.T) {
	sm, _ := newTestManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "crewdock_session", Value: "gone-from-redis"})

	sess, err := sm.Load(ctx, req)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sess.ID != "gone-from-redis" {
		t.Fatalf("stale cookie id should be reused, got %q", sess.ID)
	}
	if sess.User() != "" {
		t.Fatal("fresh session must be anonymous")
	}
}

func TestCSRFTokenStableAndVerifiable(t *testing.T) {
	cm := shared.NewCSRFManager("secret-key")
	ctx := context.Background()
	sess := &shared.Session{ID: "s1"}

	token, err := cm.EnsureToken(ctx, sess)
	if err != nil || token == "" {
		t.Fatalf("ensure token: %q, %v", token, err)
	}
	second, _ := cm.EnsureToken(ctx, sess)
	if second != token {
		t.Fatal("token must be stable within a session")
	}
	if err := cm.VerifyToken(ctx, sess, token); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := cm.VerifyToken(ctx, sess, "forged"); err != shared.ErrCSRFTokenMismatch {
		t.Fatalf("want mismatch, got %v", err)
	}
	if err := cm.VerifyToken(ctx, sess, ""); err != shared.ErrCSRFTokenMissing {
		t.Fatalf("want missing, got %v", err)
	}
}
