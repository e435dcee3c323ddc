package mysql

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/mlsmithjr/gurglefish/internal/types"
)

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Commit(ctx context.Context) error   { return t.tx.Commit() }
func (t *sqlTx) Rollback(ctx context.Context) error { return t.tx.Rollback() }

// Begin starts a transaction a worker reuses across many upserts,
// committing every 10,000 changed rows per the sync engine's batching
// rule.
func (d *Driver) Begin(ctx context.Context) (types.Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrapf(types.ErrDBError, "begin tx: %v", err)
	}
	return &sqlTx{tx: tx}, nil
}

func asSQLTx(tx types.Tx) *sql.Tx {
	return tx.(*sqlTx).tx
}

// Upsert implements SchemaDriver.Upsert, the same change-minimal diff
// contract as the Postgres driver.
func (d *Driver) Upsert(ctx context.Context, tx types.Tx, table string, row types.Row) (bool, bool, error) {
	id, ok := row["Id"]
	if !ok {
		id, ok = row["id"]
	}
	if !ok {
		return false, false, errors.Wrapf(types.ErrSchemaError, "upsert %s: row has no Id", table)
	}

	sqltx := asSQLTx(tx)
	qualified := d.table(table).Qualified()

	rows, err := sqltx.QueryContext(ctx, fmt.Sprintf("select * from %s where id=?", qualified), id)
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

	sqlStmt, args, inserted, updated, noop := diffUpsert(qualified, row, current, existingCols)
	if noop {
		return false, false, nil
	}

	if _, err := sqltx.ExecContext(ctx, sqlStmt, args...); err != nil {
		return false, false, errors.Wrapf(types.ErrDBError, "upsert exec %s: %v", table, err)
	}
	return inserted, updated, nil
}

func scanOneRow(rows *sql.Rows) (map[string]interface{}, error) {
	if !rows.Next() {
		return nil, rows.Err()
	}
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	values := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	current := make(map[string]interface{}, len(cols))
	for i, c := range cols {
		current[strings.ToLower(c)] = values[i]
	}
	return current, nil
}

// diffUpsert mirrors the Postgres driver's decision logic with '?'
// placeholders in place of '$n'.
func diffUpsert(table string, row types.Row, current map[string]interface{}, existingCols map[string]bool) (sqlStmt string, args []interface{}, inserted, updated, noop bool) {
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
			placeholders[i] = "?"
		}
		sqlStmt = fmt.Sprintf("insert into %s (%s) values (%s)",
			table, strings.Join(names, ","), strings.Join(placeholders, ","))
		return sqlStmt, args, true, false, false
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
				sets = append(sets, lname+"=?")
				args = append(args, v)
			}
		}
	}
	if len(sets) == 0 {
		return "", nil, false, false, true
	}
	args = append(args, pkey)
	sqlStmt = fmt.Sprintf("update %s set %s where id=?", table, strings.Join(sets, ","))
	return sqlStmt, args, false, true, false
}

// Delete removes the row with the given id.
func (d *Driver) Delete(ctx context.Context, tx types.Tx, table string, id string) (int, error) {
	sqltx := asSQLTx(tx)
	res, err := sqltx.ExecContext(ctx, fmt.Sprintf("delete from %s where id=?", d.table(table).Qualified()), id)
	if err != nil {
		return 0, errors.Wrapf(types.ErrDBError, "delete %s/%s: %v", table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// DumpIDs streams the table's ids, one per line in ascending order, to
// w for the scrub backstop's set-difference comparison.
func (d *Driver) DumpIDs(ctx context.Context, table string, w io.Writer) error {
	rows, err := d.db.QueryContext(ctx, fmt.Sprintf("select id from %s order by id", d.table(table).Qualified()))
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
