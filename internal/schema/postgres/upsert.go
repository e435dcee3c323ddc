package postgres

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/mlsmithjr/gurglefish/internal/types"
)

// diffUpsert is the change-minimal upsert decision, split out as a
// pure function so it can be unit tested without a database: given the
// incoming row and the current row (nil if absent), it decides whether
// to INSERT (using only columns present in both the row and the live
// table), UPDATE (only the changed columns), or do nothing.
//
// existingCols restricts an insert to columns the live table actually
// has, so a row transformed against a newer column map than the table
// has been altered to never fails with an unknown-column error.
func diffUpsert(table string, row types.Row, current map[string]interface{}, existingCols map[string]bool) (sql string, args []interface{}, inserted, updated, noop bool) {
	if current == nil {
		var names []string
		for k, v := range row {
			lname := strings.ToLower(k)
			if existingCols[lname] {
				names = append(names, lname)
				args = append(args, v)
			}
		}
		placeholders := make([]string, len(args))
		for i := range placeholders {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		}
		sql = fmt.Sprintf("insert into %s (%s) values (%s)",
			table, strings.Join(names, ","), strings.Join(placeholders, ","))
		return sql, args, true, false, false
	}

	var pkey interface{}
	var sets []string
	for k, v := range row {
		lname := strings.ToLower(k)
		if lname == "id" {
			pkey = v
			continue
		}
		if existing, ok := current[lname]; ok {
			if existing != v {
				sets = append(sets, fmt.Sprintf("%s=$%d", lname, len(args)+1))
				args = append(args, v)
			}
		}
	}
	if len(sets) == 0 {
		// Overlapping SystemModStamp windows in the incremental query
		// legitimately produce a re-fetched row with nothing changed.
		return "", nil, false, false, true
	}
	args = append(args, pkey)
	sql = fmt.Sprintf("update %s set %s where id=$%d", table, strings.Join(sets, ","), len(args))
	return sql, args, false, true, false
}

// Upsert implements SchemaDriver.Upsert against a transaction acquired
// from Begin.
func (d *Driver) Upsert(ctx context.Context, tx types.Tx, table string, row types.Row) (bool, bool, error) {
	id, ok := row["Id"]
	if !ok {
		id, ok = row["id"]
	}
	if !ok {
		return false, false, errors.Wrapf(types.ErrSchemaError, "upsert %s: row has no Id", table)
	}

	pgtx := asPgxTx(tx)
	qualified := d.table(table).Qualified()

	rows, err := pgtx.Query(ctx, fmt.Sprintf("select * from %s where id=$1", qualified), id)
	if err != nil {
		return false, false, errors.Wrapf(types.ErrDBError, "upsert lookup %s: %v", table, err)
	}
	current, err := scanOneRow(rows)
	rows.Close()
	if err != nil {
		return false, false, errors.Wrapf(types.ErrDBError, "upsert scan %s: %v", table, err)
	}

	var existingCols map[string]bool
	if current == nil {
		fields, err := d.GetTableFields(ctx, table)
		if err != nil {
			return false, false, err
		}
		existingCols = make(map[string]bool, len(fields))
		for _, f := range fields {
			existingCols[strings.ToLower(f.ColumnName)] = true
		}
	}

	sql, args, inserted, updated, noop := diffUpsert(qualified, row, current, existingCols)
	if noop {
		return false, false, nil
	}

	if _, err := pgtx.Exec(ctx, sql, args...); err != nil {
		return false, false, errors.Wrapf(types.ErrDBError, "upsert exec %s: %v", table, err)
	}
	return inserted, updated, nil
}

func scanOneRow(rows pgx.Rows) (map[string]interface{}, error) {
	if !rows.Next() {
		return nil, rows.Err()
	}
	values, err := rows.Values()
	if err != nil {
		return nil, err
	}
	fds := rows.FieldDescriptions()
	current := make(map[string]interface{}, len(fds))
	for i, fd := range fds {
		current[strings.ToLower(string(fd.Name))] = values[i]
	}
	return current, nil
}

// Delete removes the row with the given id, returning the number of
// rows affected (0 or 1), matching Driver.delete.
func (d *Driver) Delete(ctx context.Context, tx types.Tx, table string, id string) (int, error) {
	pgtx := asPgxTx(tx)
	tag, err := pgtx.Exec(ctx, fmt.Sprintf("delete from %s where id=$1", d.table(table).Qualified()), id)
	if err != nil {
		return 0, errors.Wrapf(types.ErrDBError, "delete %s/%s: %v", table, id, err)
	}
	return int(tag.RowsAffected()), nil
}

// DumpIDs streams the table's ids, one per line in ascending order, to
// w for the scrub backstop's set-difference comparison; writes to w go
// through a bufio.Writer that is flushed before returning.
func (d *Driver) DumpIDs(ctx context.Context, table string, w io.Writer) error {
	rows, err := d.pool.Query(ctx, fmt.Sprintf("select id from %s order by id", d.table(table).Qualified()))
	if err != nil {
		return errors.Wrapf(types.ErrDBError, "dump_ids %s: %v", table, err)
	}
	defer rows.Close()

	bw := bufio.NewWriter(w)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		if _, err := bw.WriteString(id + "\n"); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return bw.Flush()
}
