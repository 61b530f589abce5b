package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/crewdock/crewdock/jobs"
	_ "github.com/crewdock/crewdock/testing"
)

type fakePruner struct {
	removed int64
	err     error
	called  bool
	cutoff  time.Time
}

func (f *fakePruner) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	f.called = true
	f.cutoff = before
	return f.removed, f.err
}

func TestWelcomeEmailTaskCarriesPayload(t *testing.T) {
	task, err := jobs.NewWelcomeEmailTask(jobs.WelcomeEmailPayload{Email: "a@x.com", Name: "Ada"})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if task.Type() != jobs.TaskTypeWelcomeEmail {
		t.Fatalf("unexpected task type %q", task.Type())
	}
	var payload jobs.WelcomeEmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Email != "a@x.com" || payload.Name != "Ada" {
		t.Fatalf("payload mangled: %+v", payload)
	}
}

func TestWelcomeEmailBadPayloadSkipsRetry(t *testing.T) {
	mailer := jobs.NewMailer("localhost", 1025, "noreply@crewdock.local", nil)
	task := asynq.NewTask(jobs.TaskTypeWelcomeEmail, []byte("{not json"))

	err := mailer.HandleWelcomeEmail(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("malformed payload must not be retried, got %v", err)
	}
}

func TestSessionPurgeDelegatesToPruner(t *testing.T) {
	pruner := &fakePruner{removed: 3}
	handler := jobs.NewSessionPurgeHandler(pruner, nil)

	start := time.Now()
	if err := handler.Handle(context.Background(), jobs.NewSessionPurgeTask()); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !pruner.called {
		t.Fatal("pruner not invoked")
	}
	if pruner.cutoff.Before(start) {
		t.Fatalf("cutoff should be current time, got %v", pruner.cutoff)
	}
}

func TestSessionPurgePropagatesErrors(t *testing.T) {
	want := errors.New("connection refused")
	handler := jobs.NewSessionPurgeHandler(&fakePruner{err: want}, nil)

	if err := handler.Handle(context.Background(), jobs.NewSessionPurgeTask()); !errors.Is(err, want) {
		t.Fatalf("error must propagate for retry, got %v", err)
	}
}
