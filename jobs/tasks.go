package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/smtp"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeWelcomeEmail is the task type for the new-account email.
	TaskTypeWelcomeEmail = "mail:welcome"
	// TaskTypeSessionPurge is the task type for expired-session cleanup.
	TaskTypeSessionPurge = "sessions:purge"
)

// WelcomeEmailPayload describes the information required to greet a new user.
type WelcomeEmailPayload struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// NewWelcomeEmailTask constructs an Asynq task for the welcome email.
func NewWelcomeEmailTask(payload WelcomeEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeWelcomeEmail, data), nil
}

// NewSessionPurgeTask constructs the cron task removing expired sessions.
func NewSessionPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskTypeSessionPurge, nil)
}

// Mailer delivers transactional email over SMTP.
type Mailer struct {
	addr   string
	from   string
	logger *slog.Logger
}

// NewMailer constructs a Mailer for the given SMTP endpoint.
func NewMailer(host string, port int, from string, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{addr: fmt.Sprintf("%s:%d", host, port), from: from, logger: logger}
}

// HandleWelcomeEmail processes TaskTypeWelcomeEmail tasks.
func (m *Mailer) HandleWelcomeEmail(ctx context.Context, t *asynq.Task) error {
	var payload WelcomeEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Welcome to Crewdock\r\n\r\nHi %s,\r\n\r\nAn account has been created for you. Sign in to get started.\r\n",
		m.from, payload.Email, payload.Name)
	if err := smtp.SendMail(m.addr, nil, m.from, []string{payload.Email}, []byte(body)); err != nil {
		return fmt.Errorf("jobs: send welcome email: %w", err)
	}
	m.logger.Info("welcome email sent", slog.String("to", payload.Email))
	return nil
}

// SessionPruner removes expired session rows.
type SessionPruner interface {
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

// SessionPurgeHandler wires TaskTypeSessionPurge to the auth repository.
type SessionPurgeHandler struct {
	pruner SessionPruner
	logger *slog.Logger
}

// NewSessionPurgeHandler constructs a SessionPurgeHandler.
func NewSessionPurgeHandler(pruner SessionPruner, logger *slog.Logger) *SessionPurgeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionPurgeHandler{pruner: pruner, logger: logger}
}

// Handle processes TaskTypeSessionPurge tasks.
func (h *SessionPurgeHandler) Handle(ctx context.Context, t *asynq.Task) error {
	removed, err := h.pruner.DeleteExpiredSessions(ctx, time.Now())
	if err != nil {
		return err
	}
	if removed > 0 {
		h.logger.Info("expired sessions purged", slog.Int64("count", removed))
	}
	return nil
}
