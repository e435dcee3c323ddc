package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlsmithjr/gurglefish/internal/types"
)

func col(field string, recipe types.RecipeKind, fieldLen int) types.ColumnMap {
	return types.ColumnMap{RemoteField: field, LocalField: field, Recipe: recipe, FieldLen: fieldLen}
}

func TestApply_IDCanonicalizesTo15Chars(t *testing.T) {
	row := Apply(types.Record{"Id": "001xx000003DGb2AAG"}, []types.ColumnMap{col("Id", types.RecipeID, 15)})
	assert.Equal(t, "001xx000003DGb2", row["Id"])
}

func TestApply_MissingOrNullValueIsNilNotZero(t *testing.T) {
	cols := []types.ColumnMap{col("Region__c", types.RecipeString, 40)}
	assert.Nil(t, Apply(types.Record{}, cols)["Region__c"])
	assert.Nil(t, Apply(types.Record{"Region__c": nil}, cols)["Region__c"])
}

func TestApply_StringTruncatesAndStripsNULs(t *testing.T) {
	row := Apply(types.Record{"Name": "abc\x00def"}, []types.ColumnMap{col("Name", types.RecipeString, 5)})
	assert.Equal(t, "abcde", row["Name"])
}

func TestApply_DecimalTruncatesTextualRepresentation(t *testing.T) {
	row := Apply(types.Record{"Amount": "123.456789"}, []types.ColumnMap{col("Amount", types.RecipeDecimal, 6)})
	assert.Equal(t, "123.45", row["Amount"])
}

func TestApply_IntAcceptsFloat64FromJSON(t *testing.T) {
	row := Apply(types.Record{"Qty": float64(42)}, []types.ColumnMap{col("Qty", types.RecipeInt, 0)})
	assert.Equal(t, int64(42), row["Qty"])
}

func TestApply_TimestampFromBulkEpochAlreadyFixedUpstreamParsesISO(t *testing.T) {
	row := Apply(types.Record{"SystemModStamp": "2024-01-02T03:04:05.000+0000"},
		[]types.ColumnMap{col("SystemModStamp", types.RecipeTimestamp, 0)})
	got, ok := row["SystemModStamp"].(time.Time)
	require.True(t, ok)
	assert.Equal(t, 2024, got.Year())
	assert.Equal(t, 3, got.Hour())
}

func TestApply_BoolPassesThrough(t *testing.T) {
	row := Apply(types.Record{"IsActive": true}, []types.ColumnMap{col("IsActive", types.RecipeBool, 0)})
	assert.Equal(t, true, row["IsActive"])
}
