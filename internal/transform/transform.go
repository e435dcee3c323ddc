// Package transform implements the transformer recipe dispatch table:
// each ColumnMap already carries the RecipeKind its value needs at
// apply time, so Apply walks the persisted column map and dispatches
// to the matching conversion function below, in place of a per-sobject
// generated-and-dynamically-loaded transformer module.
package transform

import (
	"strconv"
	"strings"
	"time"

	"github.com/mlsmithjr/gurglefish/internal/types"
)

// Apply runs a record through the persisted column map, producing a
// local row with exactly one entry per column (nil where the remote
// value was absent or null).
func Apply(rec types.Record, cols []types.ColumnMap) types.Row {
	row := make(types.Row, len(cols))
	for _, col := range cols {
		row[col.LocalField] = applyOne(rec, col)
	}
	return row
}

func applyOne(rec types.Record, col types.ColumnMap) interface{} {
	val, present := rec[col.RemoteField]
	if !present || val == nil {
		return nil
	}

	switch col.Recipe {
	case types.RecipeID:
		return applyID(val)
	case types.RecipeInt:
		return applyInt(val)
	case types.RecipeBool:
		return applyBool(val)
	case types.RecipeDate:
		return applyDate(val)
	case types.RecipeTimestamp:
		return applyTimestamp(val)
	case types.RecipeDecimal:
		return applyDecimal(val, col.FieldLen)
	case types.RecipeString:
		return applyString(val, col.FieldLen)
	default:
		return val
	}
}

// applyID truncates to the 15-char canonical prefix.
func applyID(val interface{}) interface{} {
	s, ok := val.(string)
	if !ok {
		return val
	}
	return types.CanonicalID(s)
}

func applyInt(val interface{}) interface{} {
	switch v := val.(type) {
	case float64:
		return int64(v)
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil
		}
		return n
	default:
		return v
	}
}

func applyBool(val interface{}) interface{} {
	if b, ok := val.(bool); ok {
		return b
	}
	return val
}

func applyDate(val interface{}) interface{} {
	s, ok := val.(string)
	if !ok {
		return val
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return t
}

func applyTimestamp(val interface{}) interface{} {
	s, ok := val.(string)
	if !ok {
		return val
	}
	if len(s) >= 19 {
		s = s[:19]
	}
	t, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		return nil
	}
	return t
}

// applyDecimal truncates the textual representation to fieldlen, to
// avoid overflowing a numeric(precision,scale) column.
func applyDecimal(val interface{}, fieldLen int) interface{} {
	var s string
	switch v := val.(type) {
	case string:
		s = v
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return val
	}
	if fieldLen > 0 && len(s) > fieldLen {
		s = s[:fieldLen]
	}
	return s
}

// applyString truncates to fieldlen and strips NULs and literal tab
// escapes so a value can never corrupt the tab-delimited export format.
func applyString(val interface{}, fieldLen int) interface{} {
	s, ok := val.(string)
	if !ok {
		return val
	}
	if fieldLen > 0 && len(s) > fieldLen {
		s = s[:fieldLen]
	}
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, `\t`, " ")
	return s
}
