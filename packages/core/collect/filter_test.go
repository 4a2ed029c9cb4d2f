package collect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkerFilterExpressions(t *testing.T) {
	tests := []struct {
		expr    string
		markers []string
		want    bool
	}{
		{"slow", []string{"slow"}, true},
		{"slow", []string{"smoke"}, false},
		{"slow", nil, false},
		{"not slow", nil, true},
		{"not slow", []string{"slow"}, false},
		{"slow and db", []string{"slow", "db"}, true},
		{"slow and db", []string{"slow"}, false},
		{"slow or db", []string{"db"}, true},
		{"slow or db", []string{"net"}, false},
		{"not (slow or db)", []string{"net"}, true},
		{"not (slow or db)", []string{"db"}, false},
		{"slow and not db", []string{"slow"}, true},
		{"slow and not db", []string{"slow", "db"}, false},
		// and binds tighter than or
		{"a or b and c", []string{"a"}, true},
		{"a or b and c", []string{"b"}, false},
		{"a or b and c", []string{"b", "c"}, true},
	}

	for _, tt := range tests {
		f, err := CompileMarkerFilter(tt.expr)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.want, f.Match(tt.markers), "%s against %v", tt.expr, tt.markers)
	}
}

func TestMarkerFilterInvalid(t *testing.T) {
	for _, expr := range []string{
		"slow and",
		"not",
		"(slow",
		"slow or or db",
	} {
		_, err := CompileMarkerFilter(expr)
		assert.Error(t, err, expr)
	}
}

func TestMarkerFilterEmptyMatchesAll(t *testing.T) {
	f, err := CompileMarkerFilter("")
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.True(t, f.Match([]string{"anything"}))
}
