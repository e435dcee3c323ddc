package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/mlsmithjr/gurglefish/internal/types"
)

// epoch is the sync_since sentinel recorded when a table has never
// been synced.
var epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// StartSyncJob inserts a gf_mdata_sync_jobs row and returns its id.
func (d *Driver) StartSyncJob(ctx context.Context) (int64, error) {
	var id int64
	err := d.pool.QueryRow(ctx,
		fmt.Sprintf("insert into %s (date_start) values ($1) returning id", d.table("gf_mdata_sync_jobs").Qualified()),
		time.Now()).Scan(&id)
	if err != nil {
		return 0, errors.Wrapf(types.ErrDBError, "start_sync_job: %v", err)
	}
	return id, nil
}

// FinishSyncJob stamps the job's end time.
func (d *Driver) FinishSyncJob(ctx context.Context, jobID int64) error {
	_, err := d.pool.Exec(ctx,
		fmt.Sprintf("update %s set date_finish=$1 where id=$2", d.table("gf_mdata_sync_jobs").Qualified()),
		time.Now(), jobID)
	if err != nil {
		return errors.Wrapf(types.ErrDBError, "finish_sync_job: %v", err)
	}
	return nil
}

// InsertSyncStats records one table's per-run counters.
func (d *Driver) InsertSyncStats(ctx context.Context, stats types.SyncStats) error {
	since := epoch
	if stats.SyncSince != nil {
		since = *stats.SyncSince
	}
	_, err := d.pool.Exec(ctx,
		fmt.Sprintf(`insert into %s
			(jobid, table_name, inserts, updates, deletes, sync_start, sync_end, sync_since, api_calls)
			values ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, d.table("gf_mdata_sync_stats").Qualified()),
		stats.JobID, stats.TableName, stats.Inserts, stats.Updates, stats.Deletes,
		stats.SyncStart, stats.SyncEnd, since, stats.APICalls)
	if err != nil {
		return errors.Wrapf(types.ErrDBError, "insert_sync_stats %s: %v", stats.TableName, err)
	}
	return nil
}

// CleanHouse deletes job rows (and their cascaded stats) older than
// before.
func (d *Driver) CleanHouse(ctx context.Context, before time.Time) error {
	_, err := d.pool.Exec(ctx,
		fmt.Sprintf("delete from %s where date_start < $1", d.table("gf_mdata_sync_jobs").Qualified()), before)
	if err != nil {
		return errors.Wrapf(types.ErrDBError, "clean_house: %v", err)
	}
	return nil
}
