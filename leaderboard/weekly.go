package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/airylvat/trivia-league/db"
	"github.com/airylvat/trivia-league/logging"
	"github.com/airylvat/trivia-league/metrics"
	"github.com/robfig/cron/v3"
)

// Alerter notifies admins.
type Alerter interface {
	SendAlert(ctx context.Context, subject, message string) error
}

// Weekly exports the current week's standings on a cron schedule.
type Weekly struct {
	cron     *cron.Cron
	exporter *Exporter
	alerter  Alerter
	now      func() time.Time
	logger   *logging.Logger
}

// NewWeekly schedules the export with a standard five-field cron spec
// evaluated in UTC.
func NewWeekly(spec string, exporter *Exporter, alerter Alerter, logger *logging.Logger) (*Weekly, error) {
	if logger == nil {
		logger = logging.Default()
	}
	w := &Weekly{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		exporter: exporter,
		alerter:  alerter,
		now:      time.Now,
		logger:   logger.Component("weekly"),
	}
	if _, err := w.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_, _ = w.RunOnce(ctx, "schedule")
	}); err != nil {
		return nil, fmt.Errorf("invalid weekly export schedule %q: %w", spec, err)
	}
	return w, nil
}

// Next is the next scheduled run.
func (w *Weekly) Next() time.Time {
	entries := w.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	if !entries[0].Next.IsZero() {
		return entries[0].Next
	}
	return entries[0].Schedule.Next(w.now().UTC())
}

// RunOnce exports the current week and tells the admins where it went.
func (w *Weekly) RunOnce(ctx context.Context, trigger string) (string, error) {
	week := db.WeekKey(w.now())
	location, err := w.exporter.Export(ctx, week)
	if err != nil {
		metrics.ExportsTotal.WithLabelValues(trigger, "error").Inc()
		w.logger.Error("weekly export failed", "week", week, "error", err.Error())
		w.alert(ctx, "weekly export failed", fmt.Sprintf("Weekly export failed for %s: %v", week, err))
		return "", err
	}
	metrics.ExportsTotal.WithLabelValues(trigger, "ok").Inc()
	w.alert(ctx, "weekly export", fmt.Sprintf("Weekly export complete for %s: %s", week, location))
	return location, nil
}

func (w *Weekly) alert(ctx context.Context, subject, message string) {
	if w.alerter == nil {
		return
	}
	if err := w.alerter.SendAlert(ctx, subject, message); err != nil {
		w.logger.Error("failed to alert admins", "error", err.Error())
	}
}

// Run starts the schedule and blocks until ctx is done, then waits for a
// running export to finish.
func (w *Weekly) Run(ctx context.Context) error {
	w.cron.Start()
	w.logger.Info("weekly export scheduled", "next", w.Next())
	<-ctx.Done()
	<-w.cron.Stop().Done()
	return nil
}
