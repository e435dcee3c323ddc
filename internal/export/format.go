package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/mlsmithjr/gurglefish/internal/types"
)

// formatExportRow renders one row in the tab-delimited, backslash
// escaped shape ImportNative expects, column order following the
// table's ordinal position rather than map iteration order.
func formatExportRow(row types.Row, tableFields []types.TableField, colByLocal map[string]types.ColumnMap) string {
	parts := make([]string, 0, len(tableFields))
	for _, tf := range tableFields {
		col, ok := colByLocal[strings.ToLower(tf.ColumnName)]
		if !ok {
			parts = append(parts, `\N`)
			continue
		}
		val, present := row[col.LocalField]
		if !present {
			parts = append(parts, `\N`)
			continue
		}
		parts = append(parts, formatExportValue(val))
	}
	return strings.Join(parts, "\t") + "\n"
}

func formatExportValue(val interface{}) string {
	switch v := val.(type) {
	case nil:
		return `\N`
	case bool:
		if v {
			return "True"
		}
		return "False"
	case time.Time:
		return v.Format(time.RFC3339)
	case string:
		return escapeExportString(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// escapeExportString backslash-escapes the characters that would
// otherwise corrupt a tab-delimited COPY/LOAD DATA line.
func escapeExportString(s string) string {
	if !strings.ContainsAny(s, "\\\n\r\t") {
		return s
	}
	r := strings.NewReplacer(
		`\`, `\\`,
		"\n", `\n`,
		"\r", `\r`,
		"\t", `\t`,
	)
	return r.Replace(s)
}
