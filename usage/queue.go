package usage

import (
	"context"
	"sync"
	"time"

	"github.com/PaulFidika/wallkit/core"
	"github.com/PaulFidika/wallkit/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/sirupsen/logrus"
)

const (
	enqueueTimeout = 2 * time.Second
	maxAttempts    = 5
)

// RecordDownloadArgs is the river job carrying one download event.
type RecordDownloadArgs struct {
	Event core.DownloadEvent `json:"event"`
}

func (RecordDownloadArgs) Kind() string { return "record_download" }

func (RecordDownloadArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: maxAttempts}
}

// RecordDownloadWorker applies queued events. The insert is idempotent on the
// event id. The increment is not: if a job increments and then fails to be
// marked complete, its retry counts the download again.
type RecordDownloadWorker struct {
	river.WorkerDefaults[RecordDownloadArgs]
	Sink core.DownloadSink
}

func (w *RecordDownloadWorker) Work(ctx context.Context, job *river.Job[RecordDownloadArgs]) error {
	if err := w.Sink.InsertDownload(ctx, job.Args.Event); err != nil {
		return err
	}
	return w.Sink.IncrementDownloads(ctx, job.Args.Event.ResourceID)
}

// JobInserter is the part of *river.Client[pgx.Tx] the recorder needs.
type JobInserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

var _ JobInserter = (*river.Client[pgx.Tx])(nil)

// QueueRecorder enqueues events for RecordDownloadWorker from a goroutine, so
// a slow database never holds up the grant response. Enqueue failures are
// logged and swallowed like any other recording failure.
type QueueRecorder struct {
	client  JobInserter
	metrics *metrics.Downloads
	log     logrus.FieldLogger
	wg      sync.WaitGroup
}

func NewQueueRecorder(client JobInserter, m *metrics.Downloads, log logrus.FieldLogger) *QueueRecorder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &QueueRecorder{client: client, metrics: m, log: log}
}

func (q *QueueRecorder) RecordDownload(ctx context.Context, ev core.DownloadEvent) {
	detached := context.WithoutCancel(ctx)
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ctx, cancel := context.WithTimeout(detached, enqueueTimeout)
		defer cancel()
		if _, err := q.client.Insert(ctx, RecordDownloadArgs{Event: ev}, nil); err != nil {
			q.metrics.RecordFailed("enqueue")
			q.log.WithError(err).WithField("event_id", ev.ID).Warn("download event enqueue failed")
		}
	}()
}

// Wait blocks until pending enqueues finish. The server calls it before
// stopping the river client.
func (q *QueueRecorder) Wait() { q.wg.Wait() }

// NewWorkers registers the usage workers with river.
func NewWorkers(sink core.DownloadSink) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker(workers, &RecordDownloadWorker{Sink: sink})
	return workers
}
