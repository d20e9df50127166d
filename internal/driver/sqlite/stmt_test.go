package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountPlaceholders(t *testing.T) {
	cases := []struct {
		sql  string
		want int
	}{
		{"SELECT 1", 0},
		{"SELECT * FROM t WHERE a = ?", 1},
		{"SELECT * FROM t WHERE a = ? AND b = ?", 2},
		{"INSERT INTO t VALUES (?1, ?2, ?3)", 3},
		// Repeated explicit indexes bind once.
		{"SELECT * FROM t WHERE a = ?1 OR b = ?1", 1},
		// Placeholders inside string literals do not count.
		{"SELECT '?' FROM t WHERE a = ?", 1},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, countPlaceholders(tc.sql), "sql %q", tc.sql)
	}
}
