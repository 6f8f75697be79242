package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeBillingRun is the task type for the monthly billing run.
	TaskTypeBillingRun = "billing:monthly_run"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// BillingRunPayload selects the period to bill. A zero month and year means
// the month before the task runs, which is what the monthly cron wants.
type BillingRunPayload struct {
	Month     int    `json:"month"`
	Year      int    `json:"year"`
	RequestID string `json:"request_id,omitempty"`
}

// NewBillingRunTask constructs an Asynq task for one billing run.
func NewBillingRunTask(payload BillingRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeBillingRun, data), nil
}

// NewMailHandler adapts a Mailer to an Asynq handler for send-email tasks.
func NewMailHandler(mailer *Mailer, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SendEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if err := mailer.Send(payload.To, payload.Subject, payload.Body); err != nil {
			logger.Error("send email", slog.String("to", payload.To), slog.Any("error", err))
			return err
		}
		logger.Info("email sent", slog.String("to", payload.To), slog.String("subject", payload.Subject))
		return nil
	}
}
