// Package typemap maps a remote field descriptor to a local column
// definition and a transformer recipe entry, shared by every
// SchemaDriver implementation so all drivers apply one type-mapping
// policy.
package typemap

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/mlsmithjr/gurglefish/internal/types"
)

// MapField returns the ColumnMap for a single remote field, or ok=false
// for the two field types that never produce a column: address
// (decomposed into its constituent scalars at the caller, so it should
// never even reach here — this is a defensive no-op) and base64/
// anyType (unsupported payloads).
//
// sobject is the canonical (lower-case) table name the column belongs
// to; it is stamped onto the returned ColumnMap.TableName.
func MapField(sobject string, field types.FieldDescriptor) (types.ColumnMap, bool, error) {
	localField := field.Name
	fieldLen := field.Length

	var dml string
	var recipe types.RecipeKind

	switch field.Type {
	case types.FieldPicklist, types.FieldMultipicklist, types.FieldEmail, types.FieldPhone, types.FieldURL:
		dml = fmt.Sprintf("varchar(%d)", fieldLen)
		recipe = types.RecipeString
	case types.FieldString, types.FieldEncryptedString, types.FieldTextarea, types.FieldCombobox:
		dml = "text"
		recipe = types.RecipeString
	case types.FieldDatetime:
		dml = "timestamp"
		recipe = types.RecipeTimestamp
	case types.FieldDate:
		dml = "date"
		recipe = types.RecipeDate
	case types.FieldTime:
		dml = "time"
		recipe = types.RecipeString
	case types.FieldID:
		dml = "char(15) primary key"
		fieldLen = 15
		recipe = types.RecipeID
	case types.FieldReference:
		dml = "char(15)"
		fieldLen = 15
		recipe = types.RecipeID
	case types.FieldBoolean:
		dml = "boolean"
		recipe = types.RecipeBool
	case types.FieldDouble:
		dml = fmt.Sprintf("numeric(%d,%d)", field.Precision, field.Scale)
		fieldLen = field.Precision + field.Scale + 1
		recipe = types.RecipeDecimal
	case types.FieldCurrency:
		dml = "numeric(18,2)"
		recipe = types.RecipeDecimal
	case types.FieldInt:
		dml = "integer"
		fieldLen = 15
		recipe = types.RecipeInt
	case types.FieldPercent:
		dml = "numeric"
		fieldLen = 9
		recipe = types.RecipeDecimal
	case types.FieldBase64, types.FieldAnyType:
		return types.ColumnMap{}, false, nil
	case types.FieldAddress:
		return types.ColumnMap{}, false, nil
	default:
		return types.ColumnMap{}, false, errors.Wrapf(types.ErrSchemaError,
			"field %s on sobject %s has unknown type %q", field.Name, sobject, field.Type)
	}

	return types.ColumnMap{
		TableName:   sobject,
		RemoteField: field.Name,
		LocalField:  localField,
		FieldType:   field.Type,
		FieldLen:    fieldLen,
		DMLFragment: dml,
		Recipe:      recipe,
	}, true, nil
}

// MapSObject runs MapField over every field in the descriptor,
// returning the ordered column list and failing fast on the first
// SchemaError.
func MapSObject(sobject types.SObjectDescriptor) ([]types.ColumnMap, error) {
	name := sobject.Name
	cols := make([]types.ColumnMap, 0, len(sobject.Fields))
	for _, field := range sobject.Fields {
		col, ok, err := MapField(name, field)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		cols = append(cols, col)
	}
	return cols, nil
}
