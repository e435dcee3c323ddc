package mysql

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"

	"github.com/mlsmithjr/gurglefish/internal/types"
)

// ImportNative loads gzipped tab-delimited rows into table via LOAD
// DATA LOCAL INFILE, registering gzipped as an in-memory reader handle
// so no temp file touches disk, the driver's documented alternative to
// Postgres's COPY FROM STDIN.
func (d *Driver) ImportNative(ctx context.Context, table string, gzipped io.Reader) error {
	gz, err := gzip.NewReader(gzipped)
	if err != nil {
		return errors.Wrap(err, "open gzip import stream")
	}
	defer gz.Close()

	handle := fmt.Sprintf("gurglefish-import-%s", table)
	mysqldriver.RegisterReaderHandler(handle, func() io.Reader { return gz })
	defer mysqldriver.DeregisterReaderHandler(handle)

	loadSQL := fmt.Sprintf("LOAD DATA LOCAL INFILE 'Reader::%s' INTO TABLE %s FIELDS TERMINATED BY '\\t'",
		handle, d.table(table).Qualified())
	if _, err := d.db.ExecContext(ctx, loadSQL); err != nil {
		return errors.Wrapf(types.ErrDBError, "load_data %s: %v", table, err)
	}
	return nil
}

// ExportNative streams table as gzipped tab-delimited rows. MySQL has
// no client-streamed equivalent to Postgres's COPY TO STDOUT (SELECT
// INTO OUTFILE writes to a server-local path), so this selects the
// rows in column order and writes them out in the same tab-delimited
// export format.
func (d *Driver) ExportNative(ctx context.Context, table string, gzipped io.Writer) error {
	fields, err := d.GetTableFields(ctx, table)
	if err != nil {
		return err
	}
	colNames := make([]string, len(fields))
	for i, f := range fields {
		colNames[i] = f.ColumnName
	}

	rows, err := d.db.QueryContext(ctx, fmt.Sprintf("select * from %s", d.table(table).Qualified()))
	if err != nil {
		return errors.Wrapf(types.ErrDBError, "export query %s: %v", table, err)
	}
	defer rows.Close()

	gz, _ := gzip.NewWriterLevel(gzipped, gzip.BestSpeed)
	defer gz.Close()

	values := make([]interface{}, len(colNames))
	ptrs := make([]interface{}, len(colNames))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		if err := writeExportRow(gz, values); err != nil {
			return err
		}
	}
	return rows.Err()
}

func writeExportRow(w io.Writer, values []interface{}) error {
	for i, v := range values {
		if i > 0 {
			if _, err := w.Write([]byte{'\t'}); err != nil {
				return err
			}
		}
		if _, err := w.Write([]byte(formatExportValue(v))); err != nil {
			return err
		}
	}
	_, err := w.Write([]byte{'\n'})
	return err
}

func formatExportValue(v interface{}) string {
	if v == nil {
		return `\N`
	}
	switch t := v.(type) {
	case bool:
		if t {
			return "True"
		}
		return "False"
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
