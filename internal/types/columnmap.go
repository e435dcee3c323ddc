package types

import "strings"

// RecipeKind is the transformer conversion kind attached to a column,
// the symmetric counterpart of the SQL type fragment TypeMapper also
// produces for the same field.
type RecipeKind string

const (
	RecipeID        RecipeKind = "ID"
	RecipeInt       RecipeKind = "INT"
	RecipeBool      RecipeKind = "BOOL"
	RecipeDate      RecipeKind = "DATE"
	RecipeTimestamp RecipeKind = "TIMESTAMP"
	RecipeDecimal   RecipeKind = "DECIMAL"
	RecipeString    RecipeKind = "STRING"
)

// ColumnMap is the persisted, one-to-one mapping between a physical
// local column and the remote field it mirrors.
type ColumnMap struct {
	TableName    string
	RemoteField  string
	LocalField   string
	FieldType    FieldType
	FieldLen     int
	DMLFragment  string
	Recipe       RecipeKind
}

// RemoteFieldLower is used when diffing ColumnMap sets against a
// remote field set: both sides compare on lower-cased names.
func (c ColumnMap) RemoteFieldLower() string {
	return strings.ToLower(c.RemoteField)
}
