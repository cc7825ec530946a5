package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const helloDigest = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

func TestHashKnownDigest(t *testing.T) {
	t.Parallel()

	got, err := New().Hash([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, helloDigest, got)
}

func TestHashDistinguishesInputs(t *testing.T) {
	t.Parallel()

	a, err := Hasher{}.Hash([]byte("<html>a</html>"))
	require.NoError(t, err)
	b, err := Hasher{}.Hash([]byte("<html>b</html>"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.Len(t, a, 64)
}
