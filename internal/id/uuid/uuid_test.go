package uuid

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New()
	seen := make(map[string]struct{})
	for range 50 {
		id, err := gen.NewID()
		require.NoError(t, err)
		parsed, err := uuid.Parse(id)
		require.NoError(t, err)
		require.Equal(t, uuid.Version(4), parsed.Version())
		seen[id] = struct{}{}
	}
	require.Len(t, seen, 50)
}

func TestValid(t *testing.T) {
	t.Parallel()

	require.True(t, Valid("3f2b8c1e-9a4d-4e5f-8b6a-1c2d3e4f5a6b"))
	require.False(t, Valid(""))
	require.False(t, Valid("not-a-uuid"))
	require.False(t, Valid("{3f2b8c1e-9a4d-4e5f-8b6a-1c2d3e4f5a6b}"))
	require.False(t, Valid("urn:uuid:3f2b8c1e-9a4d-4e5f-8b6a-1c2d3e4f5a6b"))
}
