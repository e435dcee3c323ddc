package typemap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlsmithjr/gurglefish/internal/types"
)

func TestMapField_AddressAndOpaqueTypesProduceNoColumn(t *testing.T) {
	for _, ft := range []types.FieldType{types.FieldAddress, types.FieldBase64, types.FieldAnyType} {
		col, ok, err := MapField("account", types.FieldDescriptor{Name: "X", Type: ft})
		require.NoError(t, err)
		assert.False(t, ok, "field type %s should map to zero columns", ft)
		assert.Zero(t, col)
	}
}

func TestMapField_UnknownTypeIsSchemaError(t *testing.T) {
	_, _, err := MapField("account", types.FieldDescriptor{Name: "Weird__c", Type: "frobnicate"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrSchemaError)
}

func TestMapField_IDBecomesPrimaryKeyAndTruncatesLength(t *testing.T) {
	col, ok, err := MapField("account", types.FieldDescriptor{Name: "Id", Type: types.FieldID, Length: 18})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.RecipeID, col.Recipe)
	assert.Equal(t, 15, col.FieldLen)
	assert.Contains(t, col.DMLFragment, "primary key")
}

func TestMapField_ReferenceAlsoCanonicalizesTo15(t *testing.T) {
	col, ok, err := MapField("contact", types.FieldDescriptor{Name: "AccountId", Type: types.FieldReference, Length: 18})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.RecipeID, col.Recipe)
	assert.Equal(t, 15, col.FieldLen)
}

func TestMapField_DoubleUsesPrecisionAndScale(t *testing.T) {
	col, ok, err := MapField("opportunity", types.FieldDescriptor{
		Name: "Probability", Type: types.FieldDouble, Precision: 5, Scale: 2,
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.RecipeDecimal, col.Recipe)
	assert.Equal(t, "numeric(5,2)", col.DMLFragment)
	assert.Equal(t, 8, col.FieldLen)
}

func TestMapSObject_SkipsAddressFieldsDroppedUpstream(t *testing.T) {
	sobj := types.NewSObjectDescriptor("account", []types.FieldDescriptor{
		{Name: "Id", Type: types.FieldID, Length: 18},
		{Name: "BillingAddress", Type: types.FieldAddress},
		{Name: "Name", Type: types.FieldString},
	})
	cols, err := MapSObject(sobj)
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "Id", cols[0].RemoteField)
	assert.Equal(t, "Name", cols[1].RemoteField)
}
