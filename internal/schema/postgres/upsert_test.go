package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlsmithjr/gurglefish/internal/types"
)

func TestDiffUpsert_NoExistingRowInserts(t *testing.T) {
	row := types.Row{"id": "001xx000003DGb2", "name": "X"}
	existing := map[string]bool{"id": true, "name": true}

	sql, args, inserted, updated, noop := diffUpsert("account", row, nil, existing)

	require.False(t, noop)
	assert.True(t, inserted)
	assert.False(t, updated)
	assert.Contains(t, sql, "insert into account")
	assert.Len(t, args, 2)
}

func TestDiffUpsert_InsertOnlyUsesColumnsTheLiveTableHas(t *testing.T) {
	row := types.Row{"id": "001xx000003DGb2", "name": "X", "region": "west"}
	existing := map[string]bool{"id": true, "name": true} // region not yet added to the table

	sql, args, inserted, _, noop := diffUpsert("account", row, nil, existing)

	require.False(t, noop)
	assert.True(t, inserted)
	assert.NotContains(t, sql, "region")
	assert.Len(t, args, 2)
}

func TestDiffUpsert_UnchangedRowIsNoop(t *testing.T) {
	row := types.Row{"id": "001xx000003DGb2", "name": "X"}
	current := map[string]interface{}{"id": "001xx000003DGb2", "name": "X"}

	sql, args, inserted, updated, noop := diffUpsert("account", row, current, nil)

	assert.True(t, noop)
	assert.False(t, inserted)
	assert.False(t, updated)
	assert.Empty(t, sql)
	assert.Nil(t, args)
}

func TestDiffUpsert_ChangedFieldUpdatesOnlyThatColumn(t *testing.T) {
	row := types.Row{"id": "001xx000003DGb2", "name": "Y", "region": "west"}
	current := map[string]interface{}{"id": "001xx000003DGb2", "name": "X", "region": "west"}

	sql, args, inserted, updated, noop := diffUpsert("account", row, current, nil)

	require.False(t, noop)
	assert.False(t, inserted)
	assert.True(t, updated)
	assert.Contains(t, sql, "set name=$1")
	assert.NotContains(t, sql, "region=")
	require.Len(t, args, 2)
	assert.Equal(t, "Y", args[0])
	assert.Equal(t, "001xx000003DGb2", args[1])
}
