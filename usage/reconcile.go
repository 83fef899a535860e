package usage

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CounterReconciler raises wallpaper download counters to their event counts.
type CounterReconciler interface {
	ReconcileDownloadCounts(ctx context.Context) (int64, error)
}

// Reconciler runs a CounterReconciler on a cron schedule.
type Reconciler struct {
	cron    *cron.Cron
	target  CounterReconciler
	timeout time.Duration
	log     logrus.FieldLogger
}

// NewReconciler schedules target with a standard cron spec or descriptor,
// e.g. "@every 15m".
func NewReconciler(schedule string, target CounterReconciler, log logrus.FieldLogger) (*Reconciler, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Reconciler{cron: cron.New(), target: target, timeout: time.Minute, log: log}
	if _, err := r.cron.AddFunc(schedule, r.RunOnce); err != nil {
		return nil, err
	}
	return r, nil
}

// RunOnce reconciles immediately.
func (r *Reconciler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	n, err := r.target.ReconcileDownloadCounts(ctx)
	if err != nil {
		r.log.WithError(err).Warn("download counter reconciliation failed")
		return
	}
	if n > 0 {
		r.log.WithField("wallpapers", n).Info("download counters reconciled")
	}
}

func (r *Reconciler) Start() { r.cron.Start() }

// Stop halts scheduling and waits for a running job to finish.
func (r *Reconciler) Stop() {
	<-r.cron.Stop().Done()
}
