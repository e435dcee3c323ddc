package mysql

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/mlsmithjr/gurglefish/internal/ident"
	"github.com/mlsmithjr/gurglefish/internal/typemap"
	"github.com/mlsmithjr/gurglefish/internal/types"
)

// AlterTableAddColumns adds each new field as a column and records the
// change for audit.
func (d *Driver) AlterTableAddColumns(ctx context.Context, table string, fields []types.FieldDescriptor) ([]types.ColumnMap, error) {
	var added []types.ColumnMap
	for _, field := range fields {
		col, ok, err := typemap.MapField(table, field)
		if err != nil {
			return added, err
		}
		if !ok {
			continue
		}

		ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			d.table(table).Qualified(), ident.QuoteColumn(col.LocalField), mysqlDML(col))
		if _, err := d.db.ExecContext(ctx, ddl); err != nil {
			return added, errors.Wrapf(types.ErrSchemaError, "add column %s.%s: %v", table, col.LocalField, err)
		}
		if _, err := d.db.ExecContext(ctx,
			fmt.Sprintf("insert into %s (table_name, col_name, operation) values (?,?,'create')",
				d.table("gf_mdata_schema_chg").Qualified()),
			table, col.LocalField); err != nil {
			return added, errors.Wrap(err, "record schema change")
		}
		added = append(added, col)
	}
	return added, nil
}

// AlterTableDropColumns drops each named column and records the
// change for audit.
func (d *Driver) AlterTableDropColumns(ctx context.Context, table string, names []string) error {
	for _, name := range names {
		ddl := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.table(table).Qualified(), ident.QuoteColumn(name))
		if _, err := d.db.ExecContext(ctx, ddl); err != nil {
			return errors.Wrapf(types.ErrSchemaError, "drop column %s.%s: %v", table, name, err)
		}
		if _, err := d.db.ExecContext(ctx,
			fmt.Sprintf("insert into %s (table_name, col_name, operation) values (?,?,'drop')",
				d.table("gf_mdata_schema_chg").Qualified()),
			table, name); err != nil {
			return errors.Wrap(err, "record schema change")
		}
	}
	return nil
}

// MaintainIndexes creates an index for every externalId, idLookup, or
// SystemModStamp field. MySQL (unlike Postgres) has no "CREATE INDEX
// IF NOT EXISTS", so a duplicate-key error is treated as already-done.
func (d *Driver) MaintainIndexes(ctx context.Context, table string, fields []types.FieldDescriptor) error {
	for _, field := range fields {
		if field.Name == "Id" {
			continue
		}
		if !field.IsExternalID && !field.IsIDLookup && field.Name != "SystemModStamp" {
			continue
		}
		idxName := ident.IndexName(table, field.Name)
		ddl := fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
			ident.QuoteColumn(idxName), d.table(table).Qualified(), ident.QuoteColumn(field.Name))
		if _, err := d.db.ExecContext(ctx, ddl); err != nil && !isDuplicateKeyError(err) {
			return errors.Wrapf(types.ErrSchemaError, "create index %s: %v", idxName, err)
		}
	}
	return nil
}

func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate key name") || strings.Contains(msg, "already exists")
}
