package download

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssemblePartsJoinsInOrder(t *testing.T) {
	t.Parallel()

	fileName := filepath.Join(t.TempDir(), "vid1.webm")
	for i, chunk := range []string{"ab", "cd", "e"} {
		require.NoError(t, os.WriteFile(partName(fileName, int64(i)), []byte(chunk), 0o0600))
	}

	require.NoError(t, assembleParts(fileName, 3))

	data, err := os.ReadFile(fileName)
	require.NoError(t, err)
	assert.Equal(t, "abcde", string(data))
	for i := range int64(3) {
		assert.NoFileExists(t, partName(fileName, i))
	}
}

func TestAssemblePartsRemovesLeftoversOnFailure(t *testing.T) {
	t.Parallel()

	fileName := filepath.Join(t.TempDir(), "vid2.webm")
	require.NoError(t, os.WriteFile(partName(fileName, 0), []byte("ab"), 0o0600))
	require.NoError(t, os.WriteFile(partName(fileName, 2), []byte("ef"), 0o0600))

	require.Error(t, assembleParts(fileName, 3))
	for i := range int64(3) {
		assert.NoFileExists(t, partName(fileName, i))
	}
}
