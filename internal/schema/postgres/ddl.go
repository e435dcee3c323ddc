package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/mlsmithjr/gurglefish/internal/ident"
	"github.com/mlsmithjr/gurglefish/internal/typemap"
	"github.com/mlsmithjr/gurglefish/internal/types"
)

// MakeCreateTable builds the column map and CREATE TABLE DDL for a
// newly-discovered sobject. It issues no I/O — callers run ExecDDL
// separately, keeping statement construction independent of execution.
func (d *Driver) MakeCreateTable(sobject types.SObjectDescriptor) (string, []types.ColumnMap, string) {
	name := strings.ToLower(sobject.Name)
	cols, err := typemap.MapSObject(sobject)
	if err != nil {
		// MapField only errors on a genuinely unknown field type. The
		// empty column list returned here is what the caller
		// (Reconciler.CreateTable) reports as ErrSchemaError.
		return name, nil, ""
	}

	lines := make([]string, 0, len(cols))
	for _, c := range cols {
		lines = append(lines, fmt.Sprintf("  %s %s", strings.ToLower(c.LocalField), c.DMLFragment))
	}
	ddl := fmt.Sprintf("create table %s (\n%s\n)\n", d.table(name).Qualified(), strings.Join(lines, ",\n"))
	return name, cols, ddl
}

// AlterTableAddColumns adds each new field as a column, recording the
// change in gf_mdata_schema_chg for audit, matching
// alter_table_add_columns.
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
			d.table(table).Qualified(), ident.QuoteColumn(col.LocalField), col.DMLFragment)
		if _, err := d.pool.Exec(ctx, ddl); err != nil {
			return added, errors.Wrapf(types.ErrSchemaError, "add column %s.%s: %v", table, col.LocalField, err)
		}
		if _, err := d.pool.Exec(ctx,
			fmt.Sprintf("insert into %s (table_name, col_name, operation) values ($1,$2,'create')",
				d.table("gf_mdata_schema_chg").Qualified()),
			table, col.LocalField); err != nil {
			return added, errors.Wrap(err, "record schema change")
		}
		added = append(added, col)
	}
	return added, nil
}

// AlterTableDropColumns drops each named column, recording the change
// for audit, matching alter_table_drop_columns.
func (d *Driver) AlterTableDropColumns(ctx context.Context, table string, names []string) error {
	for _, name := range names {
		ddl := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.table(table).Qualified(), ident.QuoteColumn(name))
		if _, err := d.pool.Exec(ctx, ddl); err != nil {
			return errors.Wrapf(types.ErrSchemaError, "drop column %s.%s: %v", table, name, err)
		}
		if _, err := d.pool.Exec(ctx,
			fmt.Sprintf("insert into %s (table_name, col_name, operation) values ($1,$2,'drop')",
				d.table("gf_mdata_schema_chg").Qualified()),
			table, name); err != nil {
			return errors.Wrap(err, "record schema change")
		}
	}
	return nil
}

// MaintainIndexes creates an index for every externalId, idLookup, or
// SystemModStamp field, matching maintain_indexes (Id itself is
// skipped: it is already the primary key).
func (d *Driver) MaintainIndexes(ctx context.Context, table string, fields []types.FieldDescriptor) error {
	for _, field := range fields {
		if field.Name == "Id" {
			continue
		}
		if !field.IsExternalID && !field.IsIDLookup && field.Name != "SystemModStamp" {
			continue
		}
		idxName := ident.IndexName(table, field.Name)
		ddl := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			ident.QuoteColumn(idxName), d.table(table).Qualified(), ident.QuoteColumn(field.Name))
		if _, err := d.pool.Exec(ctx, ddl); err != nil {
			return errors.Wrapf(types.ErrSchemaError, "create index %s: %v", idxName, err)
		}
	}
	return nil
}
