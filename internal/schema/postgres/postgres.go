// Package postgres implements types.SchemaDriver against PostgreSQL
// with jackc/pgx/v5's pgxpool, the primary SchemaDriver this project
// ships. Each sync worker owns its own exclusive database connection,
// so a Driver is constructed per worker rather than shared.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/mlsmithjr/gurglefish/internal/ident"
	"github.com/mlsmithjr/gurglefish/internal/types"
)

// Driver is a types.SchemaDriver backed by one pgxpool.Pool; callers
// that want the "one exclusive connection per worker" rule construct
// one Driver per worker. Connect opens the pool with pgxpool's default
// size; it does not limit it to one connection.
type Driver struct {
	pool   *pgxpool.Pool
	schema string
	log    *log.Entry
}

// New returns an unconnected Driver; call Connect to establish the
// pool.
func New() *Driver {
	return &Driver{log: log.WithField("component", "schema.postgres")}
}

func (d *Driver) table(name string) ident.Table {
	return ident.NewTable(d.schema, name)
}

// Connect opens the pool and bootstraps the gf_mdata_* metadata
// tables.
func (d *Driver) Connect(ctx context.Context, profile types.ConnectionProfile) error {
	port := profile.DBPort
	if port == "" {
		port = "5432"
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		profile.DBUser, profile.DBPass, profile.DBHost, port, profile.DBName)

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return errors.Wrapf(types.ErrConnectFailure, "connect to %s@%s: %v", profile.DBName, profile.DBHost, err)
	}
	d.pool = pool
	d.schema = profile.EffectiveSchema()

	if err := d.verifyDBSetup(ctx); err != nil {
		pool.Close()
		return err
	}
	return nil
}

// Close releases the pool.
func (d *Driver) Close(ctx context.Context) error {
	if d.pool != nil {
		d.pool.Close()
	}
	return nil
}

func (d *Driver) verifyDBSetup(ctx context.Context) error {
	if err := d.ExecDDL(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{d.schema}.Sanitize())); err != nil {
		return errors.Wrap(err, "create schema")
	}

	exists, err := d.TableExists(ctx, "gf_mdata_sync_stats")
	if err != nil {
		return err
	}
	if !exists {
		ddl := fmt.Sprintf(`create table %s (
  id         serial primary key,
  jobid      integer,
  table_name text not null,
  inserts    numeric(8) not null,
  updates    numeric(8) not null,
  deletes    numeric(8) not null,
  api_calls  numeric(8) not null,
  sync_start timestamp not null default now(),
  sync_end   timestamp not null default now(),
  sync_since timestamp not null)`, d.table("gf_mdata_sync_stats").Qualified())
		if err := d.ExecDDL(ctx, ddl); err != nil {
			return errors.Wrap(err, "create gf_mdata_sync_stats")
		}
	}

	exists, err = d.TableExists(ctx, "gf_mdata_schema_chg")
	if err != nil {
		return err
	}
	if !exists {
		ddl := fmt.Sprintf(`create table %s (
  id         serial primary key,
  table_name text not null,
  col_name   text not null,
  operation  text not null,
  date_added timestamp not null default now())`, d.table("gf_mdata_schema_chg").Qualified())
		if err := d.ExecDDL(ctx, ddl); err != nil {
			return errors.Wrap(err, "create gf_mdata_schema_chg")
		}
	}

	exists, err = d.TableExists(ctx, "gf_mdata_sync_jobs")
	if err != nil {
		return err
	}
	if !exists {
		ddl := fmt.Sprintf(`create table %s (
  id          serial primary key,
  date_start  timestamp not null default now(),
  date_finish timestamp)`, d.table("gf_mdata_sync_jobs").Qualified())
		if err := d.ExecDDL(ctx, ddl); err != nil {
			return errors.Wrap(err, "create gf_mdata_sync_jobs")
		}
		fk := fmt.Sprintf(
			"alter table %s add constraint gf_mdata_sync_stats_job_fk foreign key (jobid) references %s(id) on delete cascade",
			d.table("gf_mdata_sync_stats").Qualified(), d.table("gf_mdata_sync_jobs").Qualified())
		if err := d.ExecDDL(ctx, fk); err != nil {
			return errors.Wrap(err, "add sync_stats job fk")
		}
	}

	return nil
}

// ExecDDL runs a DDL statement outside a transaction.
func (d *Driver) ExecDDL(ctx context.Context, ddl string) error {
	if _, err := d.pool.Exec(ctx, ddl); err != nil {
		return errors.Wrapf(types.ErrDBError, "exec ddl %q: %v", ddl, err)
	}
	return nil
}

// TableExists reports whether table exists in the configured schema.
func (d *Driver) TableExists(ctx context.Context, table string) (bool, error) {
	var count int
	err := d.pool.QueryRow(ctx,
		"select count(*) from information_schema.tables where table_name=$1 and table_schema=$2",
		table, d.schema).Scan(&count)
	if err != nil {
		return false, errors.Wrapf(types.ErrDBError, "table_exists %s: %v", table, err)
	}
	return count > 0, nil
}

// GetDBColumns returns the lower-case column names currently present
// on table, used by SchemaReconciler to diff against the remote field
// list.
func (d *Driver) GetDBColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := d.pool.Query(ctx,
		"select column_name from information_schema.columns where table_name=$1 and table_schema=$2 order by column_name",
		table, d.schema)
	if err != nil {
		return nil, errors.Wrapf(types.ErrDBError, "get_db_columns %s: %v", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// GetTableFields returns the table's columns ordered by position, the
// metadata the export engine (internal/export) needs to lay out each
// export row.
func (d *Driver) GetTableFields(ctx context.Context, table string) ([]types.TableField, error) {
	rows, err := d.pool.Query(ctx,
		"select column_name, data_type, ordinal_position from information_schema.columns "+
			"where table_name=$1 and table_schema=$2 order by ordinal_position",
		table, d.schema)
	if err != nil {
		return nil, errors.Wrapf(types.ErrDBError, "get_table_fields %s: %v", table, err)
	}
	defer rows.Close()

	var fields []types.TableField
	for rows.Next() {
		var f types.TableField
		if err := rows.Scan(&f.ColumnName, &f.DataType, &f.OrdinalPosition); err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

// MaxTimestamp returns the table's current SystemModStamp high-water
// mark, the incremental sync watermark.
func (d *Driver) MaxTimestamp(ctx context.Context, table string) (*time.Time, error) {
	var ts *time.Time
	err := d.pool.QueryRow(ctx,
		fmt.Sprintf("select max(systemmodstamp) from %s", d.table(table).Qualified())).Scan(&ts)
	if err != nil {
		return nil, errors.Wrapf(types.ErrDBError, "max_timestamp %s: %v", table, err)
	}
	return ts, nil
}

// pgxTx adapts *pgx.Tx (acquired from the pool) to types.Tx.
type pgxTx struct {
	tx pgx.Tx
}

func (t *pgxTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgxTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// Begin starts a transaction a worker will reuse across many upserts,
// committing every 10,000 changed rows per the sync engine's batching
// rule.
func (d *Driver) Begin(ctx context.Context) (types.Tx, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrapf(types.ErrDBError, "begin tx: %v", err)
	}
	return &pgxTx{tx: tx}, nil
}

func asPgxTx(tx types.Tx) pgx.Tx {
	return tx.(*pgxTx).tx
}
