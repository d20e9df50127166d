package introspect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlmodel/internal/dialect"
)

func TestNormalizeCheck(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"CHECK ((age > 0))", "age > 0"},
		{"CHECK(age > 0)", "age > 0"},
		{"(age > 0)", "age > 0"},
		{"age > 0", "age > 0"},
		// Outer parens of independent groups must survive.
		{"CHECK ((a > 0) AND (b > 0))", "(a > 0) AND (b > 0)"},
		{"check (`age` > 0)", "`age` > 0"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeCheck(tc.in), "input %q", tc.in)
	}
}

func TestRegistryResolution(t *testing.T) {
	Register(dialect.Dialect("testonly"), func() Introspecter { return nil })
	in, err := NewIntrospecter(dialect.Dialect("testonly"))
	require.NoError(t, err)
	assert.Nil(t, in)

	_, err = NewIntrospecter(dialect.Dialect("unregistered"))
	assert.Error(t, err)
}
