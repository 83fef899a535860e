// Package usage records issued download grants.
package usage

import (
	"context"
	"sync"
	"time"

	"github.com/PaulFidika/wallkit/core"
	"github.com/PaulFidika/wallkit/metrics"
	"github.com/sirupsen/logrus"
)

const DefaultTimeout = 5 * time.Second

// AsyncRecorder writes each event from its own goroutine. The work outlives
// the request and is bounded by a timeout; failures are logged and dropped,
// so the log and counters can trail the grants actually issued.
type AsyncRecorder struct {
	sink    core.DownloadSink
	timeout time.Duration
	metrics *metrics.Downloads
	log     logrus.FieldLogger
	wg      sync.WaitGroup
}

func NewAsyncRecorder(sink core.DownloadSink, timeout time.Duration, m *metrics.Downloads, log logrus.FieldLogger) *AsyncRecorder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AsyncRecorder{sink: sink, timeout: timeout, metrics: m, log: log}
}

func (r *AsyncRecorder) RecordDownload(ctx context.Context, ev core.DownloadEvent) {
	detached := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(detached, r.timeout)
		defer cancel()
		record(ctx, r.sink, ev, r.metrics, r.log)
	}()
}

// Wait blocks until in-flight writes finish. Used on shutdown and in tests.
func (r *AsyncRecorder) Wait() { r.wg.Wait() }

func record(ctx context.Context, sink core.DownloadSink, ev core.DownloadEvent, m *metrics.Downloads, log logrus.FieldLogger) {
	log = log.WithFields(logrus.Fields{"event_id": ev.ID, "user_id": ev.UserID, "resource_id": ev.ResourceID})
	if err := sink.InsertDownload(ctx, ev); err != nil {
		m.RecordFailed("insert")
		log.WithError(err).Warn("download event insert failed")
	}
	if err := sink.IncrementDownloads(ctx, ev.ResourceID); err != nil {
		m.RecordFailed("increment")
		log.WithError(err).Warn("download counter increment failed")
	}
}
