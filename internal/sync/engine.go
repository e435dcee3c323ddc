// Package sync implements the incremental sync engine: job lifecycle,
// the worker pool, and the per-table watermark-driven pipeline. A
// bounded set of goroutines drains a buffered channel of per-table
// jobs, each goroutine owning its own database connection end to end.
package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/mlsmithjr/gurglefish/internal/metrics"
	"github.com/mlsmithjr/gurglefish/internal/reconcile"
	"github.com/mlsmithjr/gurglefish/internal/types"
)

// SchemaFactory builds and connects one SchemaDriver, used once per
// worker so each holds its own exclusive database connection (spec
// §5's "no cross-worker sharing" rule).
type SchemaFactory func(ctx context.Context) (types.SchemaDriver, error)

// Engine runs a full sync pass over every enabled table.
type Engine struct {
	Remote        types.RemoteClient
	Store         types.FieldMapStore
	NewSchemaConn SchemaFactory
	Workers       int
	ForceScrub    bool

	log *log.Entry
}

// New constructs an Engine. workers is clamped to [1,4] by the caller
// via ConnectionProfile.WorkerCount.
func New(remote types.RemoteClient, store types.FieldMapStore, newSchemaConn SchemaFactory, workers int) *Engine {
	if workers < 1 {
		workers = 1
	}
	if workers > 4 {
		workers = 4
	}
	return &Engine{
		Remote:        remote,
		Store:         store,
		NewSchemaConn: newSchemaConn,
		Workers:       workers,
		log:           log.WithField("component", "sync"),
	}
}

// tableJob is one unit of work: a single enabled table to sync.
type tableJob struct {
	config types.TableConfig
}

// Run drives the full sync pass: build the work queue from the
// enabled tables in the stored configuration, start the worker pool,
// wait for drain, then close out the job. Job bookkeeping
// (StartSyncJob/FinishSyncJob/CleanHouse) happens on a dedicated
// driver connection since the worker connections are scoped to the
// lifetime of a single goroutine.
func (e *Engine) Run(ctx context.Context) error {
	configs, err := e.Store.GetConfiguredTables()
	if err != nil {
		return errors.Wrap(err, "sync: read configured tables")
	}
	if configs == nil {
		return errors.New("sync: no configuration found; run --init first")
	}

	var enabled []types.TableConfig
	for _, c := range configs {
		if c.Enabled {
			enabled = append(enabled, c)
		}
	}
	if len(enabled) == 0 {
		e.log.Warn("no tables enabled for sync")
		return nil
	}

	bookDriver, err := e.NewSchemaConn(ctx)
	if err != nil {
		return errors.Wrap(err, "sync: connect bookkeeping driver")
	}
	defer bookDriver.Close(ctx)

	jobID, err := bookDriver.StartSyncJob(ctx)
	if err != nil {
		return errors.Wrap(err, "sync: start_sync_job")
	}

	e.log.Info("building table sync queue")
	jobs := make(chan tableJob, len(enabled))
	for _, cfg := range enabled {
		jobs <- tableJob{config: cfg}
	}
	close(jobs)

	e.log.Infof("allocating %d worker(s)", e.Workers)
	var wg sync.WaitGroup
	var totalCalls int64
	var mu sync.Mutex

	for i := 0; i < e.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			e.runWorker(ctx, workerID, jobID, jobs, &mu, &totalCalls)
		}(i)
	}
	wg.Wait()

	e.log.Infof("total API calls used during sync: %d", totalCalls)

	if err := bookDriver.FinishSyncJob(ctx, jobID); err != nil {
		e.log.WithError(err).Warn("finish_sync_job failed")
	}
	if err := bookDriver.CleanHouse(ctx, time.Now().AddDate(0, -2, 0)); err != nil {
		e.log.WithError(err).Warn("clean_house failed")
	}
	return nil
}

func (e *Engine) runWorker(ctx context.Context, workerID int, jobID int64, jobs <-chan tableJob, mu *sync.Mutex, totalCalls *int64) {
	wlog := e.log.WithField("worker", workerID)

	schemaDriver, err := e.NewSchemaConn(ctx)
	if err != nil {
		wlog.WithError(err).Error("connect worker schema driver")
		return
	}
	defer schemaDriver.Close(ctx)

	reconciler := reconcile.New(e.Remote, schemaDriver, e.Store)

	for job := range jobs {
		if ctx.Err() != nil {
			return
		}
		before := e.Remote.APICalls()
		if err := e.syncTable(ctx, wlog, schemaDriver, reconciler, jobID, job.config); err != nil {
			wlog.WithError(err).Errorf("sync of %s failed", job.config.Name)
			metrics.SyncErrors.WithLabelValues(job.config.Name).Inc()
			// A single sobject's failure never aborts the job.
		}
		after := e.Remote.APICalls()

		mu.Lock()
		*totalCalls += after - before
		mu.Unlock()
	}
}

func formatSOQLTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000-0700")
}

func buildSOQL(baseSelect string, watermark *time.Time) (soql string, isResumed bool) {
	if watermark != nil {
		return fmt.Sprintf("%s where SystemModStamp >= %s order by SystemModStamp ASC",
			baseSelect, formatSOQLTimestamp(*watermark)), true
	}
	return baseSelect + " order by SystemModStamp ASC", false
}
