package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	s := New([]Field{
		{Name: "bytes", Type: "number"},
		{Name: "host.name", Type: "string"},
		{Name: "timestamp", Type: "date"},
	})

	field, ok := s.Lookup("host.name")
	require.True(t, ok)
	require.Equal(t, "string", field.Type)

	_, ok = s.Lookup("missing")
	require.False(t, ok)

	require.Equal(t, 3, s.Len())
}

func TestNamesDeclarationOrder(t *testing.T) {
	s := New([]Field{
		{Name: "zeta", Type: "number"},
		{Name: "alpha", Type: "number"},
		{Name: "mid", Type: "string"},
	})

	require.Equal(t, []string{"zeta", "alpha", "mid"}, s.Names())
}

func TestNewCopiesFields(t *testing.T) {
	fields := []Field{{Name: "bytes", Type: "number"}}
	s := New(fields)

	fields[0].Type = "string"

	field, ok := s.Lookup("bytes")
	require.True(t, ok)
	require.Equal(t, "number", field.Type)
}
