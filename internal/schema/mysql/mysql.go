// Package mysql implements types.SchemaDriver against MySQL with
// go-sql-driver/mysql, a secondary target alongside Postgres. The
// connection sets sql_mode=ansi so identifiers can be double-quoted
// here exactly as they are for Postgres, letting internal/ident's
// Table/Column helpers stay shared unmodified across both drivers.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // register driver
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/mlsmithjr/gurglefish/internal/ident"
	"github.com/mlsmithjr/gurglefish/internal/typemap"
	"github.com/mlsmithjr/gurglefish/internal/types"
)

// Driver is a types.SchemaDriver backed by database/sql + the MySQL
// driver, a supplemental target alongside the primary Postgres driver.
type Driver struct {
	db     *sql.DB
	schema string
	log    *log.Entry
}

// New returns an unconnected Driver.
func New() *Driver {
	return &Driver{log: log.WithField("component", "schema.mysql")}
}

func (d *Driver) table(name string) ident.Table {
	return ident.NewTable(d.schema, name)
}

// Connect opens the pool and bootstraps the gf_mdata_* tables.
func (d *Driver) Connect(ctx context.Context, profile types.ConnectionProfile) error {
	port := profile.DBPort
	if port == "" {
		port = "3306"
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?sql_mode=ansi&parseTime=true",
		profile.DBUser, profile.DBPass, profile.DBHost, port, profile.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return errors.Wrapf(types.ErrConnectFailure, "open mysql %s@%s: %v", profile.DBName, profile.DBHost, err)
	}
	if err := db.PingContext(ctx); err != nil {
		return errors.Wrapf(types.ErrConnectFailure, "ping mysql %s@%s: %v", profile.DBName, profile.DBHost, err)
	}
	d.db = db
	d.schema = profile.EffectiveSchema()

	return d.verifyDBSetup(ctx)
}

// Close releases the pool.
func (d *Driver) Close(ctx context.Context) error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

func (d *Driver) verifyDBSetup(ctx context.Context) error {
	exists, err := d.TableExists(ctx, "gf_mdata_sync_jobs")
	if err != nil {
		return err
	}
	if !exists {
		if err := d.ExecDDL(ctx, fmt.Sprintf(`create table %s (
  id          integer primary key auto_increment,
  date_start  timestamp not null default current_timestamp,
  date_finish timestamp null)`, d.table("gf_mdata_sync_jobs").Qualified())); err != nil {
			return errors.Wrap(err, "create gf_mdata_sync_jobs")
		}
	}

	exists, err = d.TableExists(ctx, "gf_mdata_sync_stats")
	if err != nil {
		return err
	}
	if !exists {
		if err := d.ExecDDL(ctx, fmt.Sprintf(`create table %s (
  id         integer primary key auto_increment,
  jobid      integer,
  table_name varchar(255) not null,
  inserts    integer not null,
  updates    integer not null,
  deletes    integer not null,
  api_calls  integer not null,
  sync_start timestamp not null default current_timestamp,
  sync_end   timestamp not null default current_timestamp,
  sync_since timestamp not null,
  foreign key (jobid) references %s(id) on delete cascade)`,
			d.table("gf_mdata_sync_stats").Qualified(), d.table("gf_mdata_sync_jobs").Qualified())); err != nil {
			return errors.Wrap(err, "create gf_mdata_sync_stats")
		}
	}

	exists, err = d.TableExists(ctx, "gf_mdata_schema_chg")
	if err != nil {
		return err
	}
	if !exists {
		if err := d.ExecDDL(ctx, fmt.Sprintf(`create table %s (
  id         integer primary key auto_increment,
  table_name varchar(255) not null,
  col_name   varchar(255) not null,
  operation  varchar(16) not null,
  date_added timestamp not null default current_timestamp)`, d.table("gf_mdata_schema_chg").Qualified())); err != nil {
			return errors.Wrap(err, "create gf_mdata_schema_chg")
		}
	}
	return nil
}

// ExecDDL runs a DDL statement.
func (d *Driver) ExecDDL(ctx context.Context, ddl string) error {
	if _, err := d.db.ExecContext(ctx, ddl); err != nil {
		return errors.Wrapf(types.ErrDBError, "exec ddl %q: %v", ddl, err)
	}
	return nil
}

// TableExists reports whether table exists in the configured schema.
func (d *Driver) TableExists(ctx context.Context, table string) (bool, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		"select count(*) from information_schema.tables where table_name=? and table_schema=?",
		table, d.schema).Scan(&count)
	if err != nil {
		return false, errors.Wrapf(types.ErrDBError, "table_exists %s: %v", table, err)
	}
	return count > 0, nil
}

// GetDBColumns returns the table's column names.
func (d *Driver) GetDBColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		"select column_name from information_schema.columns where table_name=? and table_schema=? order by column_name",
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

// GetTableFields returns the table's columns ordered by position.
func (d *Driver) GetTableFields(ctx context.Context, table string) ([]types.TableField, error) {
	rows, err := d.db.QueryContext(ctx,
		"select column_name, data_type, ordinal_position from information_schema.columns "+
			"where table_name=? and table_schema=? order by ordinal_position",
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

// MaxTimestamp returns the table's current SystemModStamp watermark.
func (d *Driver) MaxTimestamp(ctx context.Context, table string) (*time.Time, error) {
	var ts sql.NullTime
	err := d.db.QueryRowContext(ctx,
		fmt.Sprintf("select max(systemmodstamp) from %s", d.table(table).Qualified())).Scan(&ts)
	if err != nil {
		return nil, errors.Wrapf(types.ErrDBError, "max_timestamp %s: %v", table, err)
	}
	if !ts.Valid {
		return nil, nil
	}
	return &ts.Time, nil
}

// MakeCreateTable builds the column map and CREATE TABLE DDL for a new
// sobject, sharing the same type mapping policy as the Postgres
// driver (internal/typemap).
func (d *Driver) MakeCreateTable(sobject types.SObjectDescriptor) (string, []types.ColumnMap, string) {
	name := strings.ToLower(sobject.Name)
	cols, err := typemap.MapSObject(sobject)
	if err != nil {
		return name, nil, ""
	}
	lines := make([]string, 0, len(cols))
	for _, c := range cols {
		lines = append(lines, fmt.Sprintf("  %s %s", ident.Column(c.LocalField), mysqlDML(c)))
	}
	ddl := fmt.Sprintf("create table %s (\n%s\n)\n", d.table(name).Qualified(), strings.Join(lines, ",\n"))
	return name, cols, ddl
}

// mysqlDML adjusts the shared DML fragment for MySQL's dialect: "char
// (n) primary key" needs no rewrite, but Postgres's bare "numeric"
// (used for percent fields) requires explicit precision in MySQL.
func mysqlDML(c types.ColumnMap) string {
	if c.DMLFragment == "numeric" {
		return "numeric(18,2)"
	}
	return c.DMLFragment
}
