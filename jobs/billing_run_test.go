package jobs

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/fleetbill/fleetbill/internal/billing"
	"github.com/fleetbill/fleetbill/internal/ledger"
)

type fakeRunner struct {
	month, year int
	result      *billing.RunResult
	err         error
}

func (r *fakeRunner) GenerateMonthlyBills(ctx context.Context, month, year int) (*billing.RunResult, error) {
	r.month, r.year = month, year
	if r.err != nil {
		return nil, r.err
	}
	return r.result, nil
}

type fakeNotifier struct {
	payloads []SendEmailPayload
}

func (n *fakeNotifier) EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error) {
	n.payloads = append(n.payloads, payload)
	return &asynq.TaskInfo{ID: "mail-1"}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func billingTask(t *testing.T, payload BillingRunPayload) *asynq.Task {
	t.Helper()
	task, err := NewBillingRunTask(payload)
	require.NoError(t, err)
	return task
}

func TestBillingRunJobHandlesExplicitPeriod(t *testing.T) {
	runner := &fakeRunner{result: &billing.RunResult{
		RunID: "run-1",
		Month: 6,
		Year:  2024,
		Totals: []ledger.CompanyTotal{
			{CompanyName: "Acme Fleet", TotalCost: 70},
		},
	}}
	notifier := &fakeNotifier{}
	job := NewBillingRunJob(runner, notifier, "billing@fleetbill.io", nil, discardLogger())

	err := job.Handle(context.Background(), billingTask(t, BillingRunPayload{Month: 6, Year: 2024}))
	require.NoError(t, err)
	require.Equal(t, 6, runner.month)
	require.Equal(t, 2024, runner.year)

	require.Len(t, notifier.payloads, 1)
	require.Equal(t, "billing@fleetbill.io", notifier.payloads[0].To)
	require.Contains(t, notifier.payloads[0].Body, "Acme Fleet")
}

func TestBillingRunJobDefaultsToPreviousMonth(t *testing.T) {
	runner := &fakeRunner{result: &billing.RunResult{RunID: "run-2"}}
	job := NewBillingRunJob(runner, nil, "", nil, discardLogger())
	job.now = func() time.Time { return time.Date(2024, time.July, 1, 6, 0, 0, 0, time.UTC) }

	err := job.Handle(context.Background(), billingTask(t, BillingRunPayload{}))
	require.NoError(t, err)
	require.Equal(t, 6, runner.month)
	require.Equal(t, 2024, runner.year)
}

func TestBillingRunJobPropagatesRunError(t *testing.T) {
	runner := &fakeRunner{err: billing.ErrInvalidYear}
	job := NewBillingRunJob(runner, nil, "", nil, discardLogger())

	err := job.Handle(context.Background(), billingTask(t, BillingRunPayload{Month: 6, Year: 2019}))
	require.ErrorIs(t, err, billing.ErrInvalidYear)
}

func TestBillingRunJobSkipsMalformedPayload(t *testing.T) {
	runner := &fakeRunner{}
	job := NewBillingRunJob(runner, nil, "", nil, discardLogger())

	task := asynq.NewTask(TaskTypeBillingRun, []byte("{not json"))
	err := job.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Zero(t, runner.month)
}

func TestBillingRunJobReportsFailures(t *testing.T) {
	runner := &fakeRunner{result: &billing.RunResult{
		RunID: "run-3",
		Failures: []billing.ResellerFailure{
			{Reseller: "fleetbill", Err: billing.ErrInvalidMonth},
		},
	}}
	notifier := &fakeNotifier{}
	job := NewBillingRunJob(runner, notifier, "billing@fleetbill.io", nil, discardLogger())

	err := job.Handle(context.Background(), billingTask(t, BillingRunPayload{Month: 6, Year: 2024}))
	require.NoError(t, err)
	require.Len(t, notifier.payloads, 1)
	require.Contains(t, notifier.payloads[0].Body, "Failed resellers")
	require.Contains(t, notifier.payloads[0].Body, "fleetbill")
}

func TestEnqueueMonthlyBilling(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	taskID, err := client.EnqueueMonthlyBilling(context.Background(), 6, 2024)
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	defer inspector.Close()
	info, err := inspector.GetTaskInfo(QueueDefault, taskID)
	require.NoError(t, err)
	require.Equal(t, TaskTypeBillingRun, info.Type)

	var payload BillingRunPayload
	require.NoError(t, json.Unmarshal(info.Payload, &payload))
	require.Equal(t, 6, payload.Month)
	require.Equal(t, 2024, payload.Year)
}
