package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/devstream/errors"
)

func TestCompareStrings(t *testing.T) {
	tests := []struct {
		a, op, b string
		want     bool
	}{
		{"14.1.0", ">=", "14.1", true},
		{"13.9", "<", "14.0", true},
		{"14.1", "==", "14.1.0", true},
		{"14.1", "=", "14.1.0", true},
		{"14.1.2", "!=", "14.1", true},
		{"14.1.0", ">", "14.1", false},
		{"14.1.0", "<=", "14.1", true},
		{"2.0", ">", "10.0", false},
		{"10.0", ">", "9.9.9", true},
		{"0", "==", "0.0.0", true},
	}

	for _, tt := range tests {
		got, err := CompareStrings(tt.a, tt.op, tt.b)
		require.NoError(t, err, "%s %s %s", tt.a, tt.op, tt.b)
		assert.Equal(t, tt.want, got, "%s %s %s", tt.a, tt.op, tt.b)
	}
}

func TestUnknownComparator(t *testing.T) {
	_, err := CompareStrings("1.0", "~=", "1.0")
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
	assert.ErrorIs(t, err, errors.ErrUnknownComparator)
}

func TestInvalidVersion(t *testing.T) {
	_, err := CompareStrings("1.x", ">=", "1.0")
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))

	_, err = CompareStrings("", ">=", "1.0")
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestGreaterOrEqual(t *testing.T) {
	ok, err := GreaterOrEqual("14.1.0", "14.0")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = GreaterOrEqual("13.9.0", "14.0")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseComparatorRoundTrip(t *testing.T) {
	for _, op := range []string{"==", "!=", "<", "<=", ">", ">="} {
		cmp, err := ParseComparator(op)
		require.NoError(t, err)
		assert.Equal(t, op, cmp.String())
	}

	// Alias normalizes to the canonical form
	cmp, err := ParseComparator("=")
	require.NoError(t, err)
	assert.Equal(t, "==", cmp.String())
}
