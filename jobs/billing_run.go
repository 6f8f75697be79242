package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fleetbill/fleetbill/internal/billing"
	"github.com/fleetbill/fleetbill/internal/observability"
)

// BillingRunner generates the monthly bills for one period.
type BillingRunner interface {
	GenerateMonthlyBills(ctx context.Context, month, year int) (*billing.RunResult, error)
}

// Notifier sends the post-run summary email.
type Notifier interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// BillingRunJob executes queued billing runs and reports the outcome.
type BillingRunJob struct {
	runner   BillingRunner
	notifier Notifier
	notifyTo string
	metrics  *observability.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewBillingRunJob constructs the job. The notifier and metrics are
// optional; without them the outcome is only logged.
func NewBillingRunJob(runner BillingRunner, notifier Notifier, notifyTo string, metrics *observability.Metrics, logger *slog.Logger) *BillingRunJob {
	return &BillingRunJob{
		runner:   runner,
		notifier: notifier,
		notifyTo: notifyTo,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Handle processes one TaskTypeBillingRun task. A payload with a zero period
// bills the month that just ended, which is how the monthly cron enqueues it.
func (j *BillingRunJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload BillingRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	month, year := payload.Month, payload.Year
	if month == 0 && year == 0 {
		month, year = billing.PreviousPeriod(j.now().UTC())
	}

	start := j.now()
	result, err := j.runner.GenerateMonthlyBills(ctx, month, year)
	if err != nil {
		j.metrics.ObserveBillingRun("error", j.now().Sub(start))
		j.logger.Error("billing run aborted",
			slog.Int("month", month),
			slog.Int("year", year),
			slog.Any("error", err))
		return err
	}
	outcome := "ok"
	if len(result.Failures) > 0 {
		outcome = "partial"
	}
	j.metrics.ObserveBillingRun(outcome, j.now().Sub(start))

	j.logger.Info("billing run completed",
		slog.String("run_id", result.RunID),
		slog.Int("companies_billed", len(result.Totals)),
		slog.Int("failures", len(result.Failures)))

	if j.notifier != nil && j.notifyTo != "" {
		subject := fmt.Sprintf("Monthly billing run %04d-%02d", year, month)
		if _, err := j.notifier.EnqueueSendEmail(ctx, SendEmailPayload{
			To:      j.notifyTo,
			Subject: subject,
			Body:    summarize(result),
		}); err != nil {
			j.logger.Warn("enqueue billing summary email", slog.Any("error", err))
		}
	}
	return nil
}

func summarize(result *billing.RunResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Billing run %s for %04d-%02d\n\n", result.RunID, result.Year, result.Month)
	if len(result.Totals) == 0 {
		b.WriteString("No companies billed.\n")
	}
	for _, total := range result.Totals {
		fmt.Fprintf(&b, "%s: %.2f (%s to %s)\n",
			total.CompanyName,
			total.TotalCost,
			total.PeriodFrom.Format("2006-01-02"),
			total.PeriodTo.Format("2006-01-02"))
	}
	if len(result.Failures) > 0 {
		b.WriteString("\nFailed resellers:\n")
		for _, failure := range result.Failures {
			fmt.Fprintf(&b, "%s: %v\n", failure.Reseller, failure.Err)
		}
	}
	return b.String()
}
