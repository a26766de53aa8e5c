package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kolosafo/bookflow/internal/ai"
	"github.com/kolosafo/bookflow/internal/dispatch"
	"github.com/kolosafo/bookflow/internal/email"
	"github.com/kolosafo/bookflow/internal/handler"
	"github.com/kolosafo/bookflow/internal/plan"
	"github.com/kolosafo/bookflow/internal/push"
	"github.com/kolosafo/bookflow/internal/store"
	ws "github.com/kolosafo/bookflow/internal/websocket"
)

// Maintenance job handler names.
const (
	jobOTPSweep        = "otp_sweep"
	jobPruneExecutions = "prune_executions"
	jobPlanRefresh     = "plan_refresh"
)

// Maintenance retention windows.
const (
	otpMaxAge       = 24 * time.Hour
	executionMaxAge = 7 * 24 * time.Hour
)

type jobDeps struct {
	users     *store.UserStore
	usage     *store.UsageStore
	otps      *store.OTPStore
	summaries *store.SummaryStore
	ai        *ai.Client
	mailer    *email.Client
	pusher    *push.Client
	hub       *ws.Hub
	logger    *slog.Logger
}

func registerJobs(d *dispatch.Dispatcher, deps jobDeps) {
	d.Register(handler.JobSummarizeBook, handler.SummarizeBookJob(
		deps.summaries, deps.users, deps.ai, deps.hub, deps.pusher, deps.logger,
	))
	d.Register(handler.JobGrantFreeTrial, handler.GrantFreeTrialJob(
		deps.users, deps.mailer, deps.logger,
	))
	d.Register(handler.JobReadingReminder, handler.ReadingReminderJob(
		deps.users, deps.pusher, deps.logger,
	))

	d.Register(jobOTPSweep, func(ctx context.Context, _ json.RawMessage) error {
		n, err := deps.otps.DeleteOlderThan(otpMaxAge)
		if err != nil {
			return err
		}
		deps.logger.Info("otp sweep", "deleted", n)
		return nil
	})

	d.Register(jobPruneExecutions, func(ctx context.Context, _ json.RawMessage) error {
		n, err := d.Store().PruneExecutions(executionMaxAge)
		if err != nil {
			return err
		}
		deps.logger.Info("execution log prune", "deleted", n)
		return nil
	})

	d.Register(jobPlanRefresh, func(ctx context.Context, _ json.RawMessage) error {
		ids, err := deps.users.ExpireLapsed(time.Now())
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := deps.usage.Refill(id, plan.Free); err != nil {
				deps.logger.Error("refill lapsed user", "user_id", id, "error", err)
			}
		}
		deps.logger.Info("plan refresh", "expired", len(ids))
		return nil
	})
}

// ScheduleMaintenance upserts the recurring maintenance jobs. Cron specs are
// standard five-field expressions.
func ScheduleMaintenance(d *dispatch.Dispatcher) error {
	if err := d.ScheduleCron("maintenance:otp-sweep", jobOTPSweep, "0 2 * * *"); err != nil {
		return err
	}
	if err := d.ScheduleCron("maintenance:execution-prune", jobPruneExecutions, "0 0 * * 1"); err != nil {
		return err
	}
	return d.ScheduleCron("maintenance:plan-refresh", jobPlanRefresh, "30 0 * * *")
}
