package sync

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/mlsmithjr/gurglefish/internal/metrics"
	"github.com/mlsmithjr/gurglefish/internal/reconcile"
	"github.com/mlsmithjr/gurglefish/internal/transform"
	"github.com/mlsmithjr/gurglefish/internal/types"
)

const commitBatchSize = 10000

// syncTable runs the full pipeline for one table: schema reconcile,
// watermark lookup, query (REST or bulk), per-record apply, batched
// commit, optional scrub, and stats write. Errors are returned to
// runWorker, which logs them and moves on to the next table: a failed
// sobject never aborts the job.
func (e *Engine) syncTable(ctx context.Context, wlog *log.Entry, schemaDriver types.SchemaDriver, reconciler *reconcile.Reconciler, jobID int64, cfg types.TableConfig) error {
	name := cfg.CanonicalName()
	timer := time.Now()
	callsBefore := e.Remote.APICalls()
	defer func() {
		metrics.SyncDuration.WithLabelValues(name).Observe(time.Since(timer).Seconds())
	}()

	exists, err := schemaDriver.TableExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		// A brand-new table is bootstrapped straight from the current
		// remote field list, so there is nothing left to diff: running
		// UpdateSObjectDefinition against a table that does not exist
		// yet would try to ALTER a table before it exists.
		if err := reconciler.CreateTable(ctx, name); err != nil {
			return err
		}
	} else {
		wlog.Infof("checking %s schema for changes", name)
		result, err := reconciler.UpdateSObjectDefinition(ctx, name, cfg.AutoCreateColumns, cfg.AutoDropColumns)
		if err != nil {
			return err
		}
		if !result.OK {
			wlog.Warnf("sync of %s skipped due to schema warnings", name)
			return nil
		}
	}

	watermark, err := schemaDriver.MaxTimestamp(ctx, name)
	if err != nil {
		return err
	}

	baseSelect, ok, err := reconciler.Store.GetSelect(name)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Errorf("no persisted select statement for %s", name)
	}

	cols, _, err := reconciler.Store.GetColumnMap(name)
	if err != nil {
		return err
	}

	soql, resumed := buildSOQL(baseSelect, watermark)
	if resumed {
		wlog.Infof("start sync %s changes after %s", name, watermark)
	} else {
		wlog.Infof("start full download of %s", name)
	}

	recordCount, err := e.Remote.RecordCount(ctx, name, "")
	if err != nil {
		wlog.WithError(err).Warnf("record_count for %s failed, proceeding without PK chunking", name)
	}

	stream, err := e.openStream(ctx, name, soql, cfg, recordCount, resumed, cols)
	if err != nil {
		return err
	}

	stats := types.SyncStats{
		JobID:     jobID,
		TableName: name,
		SyncStart: time.Now(),
		SyncSince: watermark,
	}

	if err := e.drainStream(ctx, wlog, schemaDriver, stream, name, cols, &stats); err != nil {
		return err
	}
	if err := stream.Err(); err != nil {
		// SyncThread.run treats a result set too large for the REST
		// query endpoint as a skip, not a job failure: the operator's
		// fix is to flip the table's use_bulkapi flag, not an automatic
		// retry (a 431 is cheap to hit again and rows already upserted
		// this pass stay committed either way).
		if errors.Is(err, types.ErrQueryTooLarge) {
			wlog.Errorf("query for %s too large for REST API - switch to bulkapi to continue", name)
			return nil
		}
		return err
	}

	if cfg.AutoScrub == types.ScrubAlways || e.ForceScrub {
		deleted, err := e.scrubTable(ctx, schemaDriver, name)
		if err != nil {
			wlog.WithError(err).Warnf("scrub of %s failed", name)
		} else {
			stats.Deletes += deleted
		}
	}

	stats.SyncEnd = time.Now()
	stats.APICalls = int(e.Remote.APICalls() - callsBefore)

	wlog.Infof("end sync %s: %d inserts, %d updates, %d deletes", name, stats.Inserts, stats.Updates, stats.Deletes)

	if stats.HasChanges() {
		if err := schemaDriver.InsertSyncStats(ctx, stats); err != nil {
			return err
		}
	}

	metrics.SyncInserts.WithLabelValues(name).Add(float64(stats.Inserts))
	metrics.SyncUpdates.WithLabelValues(name).Add(float64(stats.Updates))
	metrics.SyncDeletes.WithLabelValues(name).Add(float64(stats.Deletes))
	metrics.APICallsTotal.WithLabelValues(name).Add(float64(stats.APICalls))
	return nil
}

const bulkQueryThreshold = 200000
const pkChunkSize = 5000

func (e *Engine) openStream(ctx context.Context, name, soql string, cfg types.TableConfig, recordCount int, includeDeleted bool, cols []types.ColumnMap) (types.RecordStream, error) {
	if cfg.UseBulkAPI {
		e.Remote.EnablePKChunking(recordCount > bulkQueryThreshold, pkChunkSize)
		return e.Remote.BulkQuery(ctx, name, soql, 0)
	}
	return e.Remote.Query(ctx, soql, includeDeleted)
}

// fixBulkDatetimes rewrites datetime fields retrieved via the bulk API
// from epoch-millis back into the same ISO8601 shape the REST API
// returns, matching ExportThread.run's dtmap conversion: Salesforce's
// Bulk API v1 always emits datetime fields as millis-since-epoch, JSON
// contentType notwithstanding.
func fixBulkDatetimes(rec types.Record, cols []types.ColumnMap) {
	for _, col := range cols {
		if col.Recipe != types.RecipeTimestamp {
			continue
		}
		v, ok := rec[col.RemoteField]
		if !ok || v == nil {
			continue
		}
		ms, ok := v.(float64)
		if !ok {
			continue
		}
		t := time.UnixMilli(int64(ms)).UTC()
		rec[col.RemoteField] = t.Format("2006-01-02T15:04:05.000-0700")
	}
}

// drainStream walks the record stream, applying deletes for tombstones
// and change-minimal upserts for everything else, committing every
// commitBatchSize changed rows plus a final commit, matching
// SyncThread.run's loop.
func (e *Engine) drainStream(ctx context.Context, wlog *log.Entry, schemaDriver types.SchemaDriver, stream types.RecordStream, table string, cols []types.ColumnMap, stats *types.SyncStats) error {
	tx, err := schemaDriver.Begin(ctx)
	if err != nil {
		return err
	}

	counter := 0
	for stream.Next(ctx) {
		rec := stream.Record()
		delete(rec, "attributes")
		fixBulkDatetimes(rec, cols)

		if isDeleted, _ := rec["IsDeleted"].(bool); isDeleted {
			id, _ := rec["Id"].(string)
			n, err := schemaDriver.Delete(ctx, tx, table, types.CanonicalID(id))
			if err != nil {
				tx.Rollback(ctx)
				return err
			}
			stats.Deletes += n
			continue
		}

		row := transform.Apply(rec, cols)
		inserted, updated, err := schemaDriver.Upsert(ctx, tx, table, row)
		if err != nil {
			tx.Rollback(ctx)
			return err
		}
		if inserted {
			stats.Inserts++
		}
		if updated {
			stats.Updates++
		}

		if inserted || updated {
			counter++
			if counter%5000 == 0 {
				wlog.Infof("%s processed %d", table, counter)
			}
			if counter%commitBatchSize == 0 {
				if err := tx.Commit(ctx); err != nil {
					return err
				}
				tx, err = schemaDriver.Begin(ctx)
				if err != nil {
					return err
				}
			}
		}
	}

	return tx.Commit(ctx)
}
