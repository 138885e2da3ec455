package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/custshop/custshop/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeCartPurge removes stale cart lines.
	TaskTypeCartPurge = "cart:purge"
	// TaskTypeIdempotencyCleanup removes expired idempotency keys.
	TaskTypeIdempotencyCleanup = "idempotency:cleanup"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	if payload.To == "" {
		return nil, errors.New("jobs: email recipient required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}

// Mailer delivers a rendered message.
type Mailer interface {
	Send(ctx context.Context, msg SendEmailPayload) error
}

// EmailJob processes TaskTypeSendEmail tasks.
type EmailJob struct {
	Mailer  Mailer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle delivers one queued email. Malformed payloads are not retried.
func (j *EmailJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Mailer == nil {
		return errors.New("send email: handler not configured")
	}
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode email payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.To == "" {
		return fmt.Errorf("email without recipient: %w", asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskTypeSendEmail)
	defer func() { err = tracker.End(err) }()

	if err := j.Mailer.Send(ctx, payload); err != nil {
		loggerOr(j.Logger).Warn("send email", slog.String("to", payload.To), slog.Any("error", err))
		return err
	}
	loggerOr(j.Logger).Info("email sent", slog.String("to", payload.To), slog.String("subject", payload.Subject))
	return nil
}

func loggerOr(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
