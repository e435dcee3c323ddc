package postgres

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/mlsmithjr/gurglefish/internal/types"
)

// ImportNative loads gzipped tab-delimited rows into table via the
// Postgres COPY protocol (see DESIGN.md for why gzip is stdlib here).
func (d *Driver) ImportNative(ctx context.Context, table string, gzipped io.Reader) error {
	gz, err := gzip.NewReader(gzipped)
	if err != nil {
		return errors.Wrap(err, "open gzip import stream")
	}
	defer gz.Close()

	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return errors.Wrapf(types.ErrDBError, "acquire conn for import %s: %v", table, err)
	}
	defer conn.Release()

	copySQL := fmt.Sprintf("COPY %s FROM STDIN WITH (FORMAT text)", d.table(table).Qualified())
	if _, err := conn.Conn().PgConn().CopyFrom(ctx, gz, copySQL); err != nil {
		return errors.Wrapf(types.ErrDBError, "copy_from %s: %v", table, err)
	}
	return nil
}

// ExportNative streams table as gzipped tab-delimited rows via COPY
// TO STDOUT.
func (d *Driver) ExportNative(ctx context.Context, table string, gzipped io.Writer) error {
	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return errors.Wrapf(types.ErrDBError, "acquire conn for export %s: %v", table, err)
	}
	defer conn.Release()

	gz, _ := gzip.NewWriterLevel(gzipped, gzip.BestSpeed)
	defer gz.Close()

	copySQL := fmt.Sprintf("COPY %s TO STDOUT WITH (FORMAT text)", d.table(table).Qualified())
	if _, err := conn.Conn().PgConn().CopyTo(ctx, gz, copySQL); err != nil {
		return errors.Wrapf(types.ErrDBError, "copy_to %s: %v", table, err)
	}
	return nil
}
