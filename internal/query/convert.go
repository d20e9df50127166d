package query

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"sqlmodel/internal/dialect"
	"sqlmodel/internal/value"
)

// ToValue promotes Go natives to the value union. value.Value passes
// through; nil becomes SQL NULL.
func ToValue(v any) value.Value {
	switch t := v.(type) {
	case nil:
		return value.Null()
	case value.Value:
		return t
	case bool:
		return value.Bool(t)
	case int8:
		return value.TinyInt(t)
	case int16:
		return value.SmallInt(t)
	case int32:
		return value.Int(t)
	case int:
		return value.BigInt(int64(t))
	case int64:
		return value.BigInt(t)
	case float32:
		return value.Float(t)
	case float64:
		return value.Double(t)
	case string:
		return value.Text(t)
	case []byte:
		return value.Bytes(t)
	case uuid.UUID:
		return value.UUID(t)
	case decimal.Decimal:
		return value.Decimal(t.String())
	case []value.Value:
		return value.Array(t)
	default:
		return value.Null()
	}
}

// RenumberPlaceholders shifts every numbered placeholder in sql by
// offset so composed fragments keep a 1-based, contiguous parameter
// list. MySQL's bare ? carries no number and is returned unchanged.
func RenumberPlaceholders(d dialect.Dialect, sql string, offset int) string {
	if offset == 0 || d == dialect.MySQL {
		return sql
	}
	marker := byte('$')
	if d == dialect.SQLite {
		marker = '?'
	}
	var out strings.Builder
	out.Grow(len(sql))
	inString := false
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		if ch == '\'' {
			inString = !inString
		}
		if inString || ch != marker {
			out.WriteByte(ch)
			continue
		}
		j := i + 1
		for j < len(sql) && sql[j] >= '0' && sql[j] <= '9' {
			j++
		}
		if j == i+1 {
			out.WriteByte(ch)
			continue
		}
		n, _ := strconv.Atoi(sql[i+1 : j])
		out.WriteByte(marker)
		out.WriteString(strconv.Itoa(n + offset))
		i = j - 1
	}
	return out.String()
}
