// Package ident provides canonicalized, injection-safe identifiers for
// tables and columns, centralizing identifier handling rather than
// letting every caller fmt.Sprintf raw strings into DDL/DML.
package ident

import (
	"fmt"
	"strings"
)

// Table is a canonical (lower-cased) table name, optionally qualified
// by a schema.
type Table struct {
	Schema string
	Name   string
}

// NewTable canonicalizes name to lower-case, matching TableConfig's
// "Name is canonical-lowercase" invariant.
func NewTable(schema, name string) Table {
	return Table{Schema: strings.ToLower(schema), Name: strings.ToLower(name)}
}

// Qualified returns the double-quoted, schema-qualified identifier
// suitable for interpolation into DDL/DML. Identifiers are never
// user-supplied SQL fragments; they come from the remote describe
// endpoint and are restricted to ASCII letters, digits and
// underscores, so quoting here is purely for case-sensitivity and
// reserved-word safety, not an injection boundary.
func (t Table) Qualified() string {
	if t.Schema == "" {
		return fmt.Sprintf("%q", t.Name)
	}
	return fmt.Sprintf("%q.%q", t.Schema, t.Name)
}

func (t Table) String() string {
	return t.Qualified()
}

// Column canonicalizes a column/field name to lower-case, matching the
// "Uniqueness by lower-cased name" invariant on FieldDescriptor.
func Column(name string) string {
	return strings.ToLower(name)
}

// QuoteColumn double-quotes a column identifier.
func QuoteColumn(name string) string {
	return fmt.Sprintf("%q", Column(name))
}

// IndexName builds the "<table>_<field>" index name convention used by
// SchemaDriver.MaintainIndexes.
func IndexName(table, field string) string {
	return fmt.Sprintf("%s_%s", strings.ToLower(table), strings.ToLower(field))
}
