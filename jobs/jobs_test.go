package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/custshop/custshop/internal/jobs"
)

type fakeMailer struct {
	sent []SendEmailPayload
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg SendEmailPayload) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func TestEmailJobDelivers(t *testing.T) {
	mailer := &fakeMailer{}
	job := &EmailJob{Mailer: mailer, Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}
	task, err := NewSendEmailTask(SendEmailPayload{To: "a@example.com", Subject: "Hi", Body: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, TaskTypeSendEmail, task.Type())

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "Hi", mailer.sent[0].Subject)

	mailer.err = errors.New("relay down")
	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestEmailJobSkipsMalformedPayloads(t *testing.T) {
	job := &EmailJob{Mailer: &fakeMailer{}}
	err := job.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	err = job.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte(`{"subject":"x"}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	_, err = NewSendEmailTask(SendEmailPayload{Subject: "x"})
	assert.Error(t, err)
}

func TestCleanupJobRetention(t *testing.T) {
	var got []time.Duration
	job := &CleanupJob{
		Name:      TaskTypeCartPurge,
		Retention: 720 * time.Hour,
		Remove: func(_ context.Context, olderThan time.Duration) (int64, error) {
			got = append(got, olderThan)
			return 4, nil
		},
		Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry()),
	}
	ctx := context.Background()
	require.NoError(t, job.Handle(ctx, NewCartPurgeTask(0)))
	require.NoError(t, job.Handle(ctx, NewCartPurgeTask(time.Hour)))
	require.NoError(t, job.Handle(ctx, asynq.NewTask(TaskTypeCartPurge, nil)))
	assert.Equal(t, []time.Duration{720 * time.Hour, time.Hour, 720 * time.Hour}, got)

	assert.ErrorIs(t, job.Handle(ctx, asynq.NewTask(TaskTypeCartPurge, []byte("nope"))), asynq.SkipRetry)

	job.Retention = 0
	assert.ErrorIs(t, job.Handle(ctx, NewIdempotencyCleanupTask(0)), asynq.SkipRetry)

	boom := errors.New("db down")
	failing := &CleanupJob{Name: TaskTypeIdempotencyCleanup, Retention: time.Hour,
		Remove: func(context.Context, time.Duration) (int64, error) { return 0, boom }}
	assert.ErrorIs(t, failing.Handle(ctx, NewIdempotencyCleanupTask(0)), boom)
	assert.Equal(t, TaskTypeIdempotencyCleanup, failing.TaskHandler().Type)
}

func TestSMTPMailerRendersMessage(t *testing.T) {
	_, err := NewSMTPMailer(SMTPConfig{Port: 25, From: "x@y"})
	assert.Error(t, err)

	m, err := NewSMTPMailer(SMTPConfig{Host: "mail.local", Port: 1025, From: "shop@example.com", Username: "u", Password: "p"})
	require.NoError(t, err)
	m.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	var addr string
	var to []string
	var body string
	var authed bool
	m.send = func(a string, auth smtp.Auth, from string, rcpt []string, msg []byte) error {
		addr, to, body, authed = a, rcpt, string(msg), auth != nil
		return nil
	}
	require.NoError(t, m.Send(context.Background(), SendEmailPayload{To: "b@example.com", Subject: "Order CS-000001", Body: "line1\nline2"}))
	assert.Equal(t, "mail.local:1025", addr)
	assert.Equal(t, []string{"b@example.com"}, to)
	assert.True(t, authed)
	assert.Contains(t, body, "Subject: Order CS-000001\r\n")
	assert.Contains(t, body, "Date: Fri, 02 Jan 2026 03:04:05 +0000\r\n")
	assert.True(t, strings.HasSuffix(body, "\r\n\r\nline1\r\nline2"))

	err = m.Send(context.Background(), SendEmailPayload{To: "b@example.com\r\nBcc: evil@example.com", Subject: "x"})
	assert.Error(t, err)

	m.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("refused") }
	assert.Error(t, m.Send(context.Background(), SendEmailPayload{To: "b@example.com"}))
}

func TestNewWorkerRegistersCron(t *testing.T) {
	opts := asynq.RedisClientOpt{Addr: "127.0.0.1:0"}
	w, err := NewWorker(WorkerConfig{
		RedisOpts: opts,
		Handlers:  []TaskHandler{{Type: TaskTypeCartPurge, Handler: func(context.Context, *asynq.Task) error { return nil }}},
		Cron:      []CronRegistration{{Spec: "@every 1h", Task: NewCartPurgeTask(0)}},
	})
	require.NoError(t, err)
	assert.NotNil(t, w.scheduler)

	_, err = NewWorker(WorkerConfig{RedisOpts: opts, Cron: []CronRegistration{{Spec: "not a cron", Task: NewCartPurgeTask(0)}}})
	assert.Error(t, err)
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, nil).MountRoutes(r)
	res := httptest.NewRecorder()
	r.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, res.Code)
	var body queueHealth
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, QueueDefault, body.Queue)
}
