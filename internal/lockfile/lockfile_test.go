package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_Exclusive(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("pid=%d\n", os.Getpid()), string(raw))

	_, err = Acquire(dir)
	var lerr *LockError
	require.ErrorAs(t, err, &lerr)
	assert.Contains(t, lerr.Holder, fmt.Sprintf("pid=%d", os.Getpid()))

	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())
	assert.NoFileExists(t, filepath.Join(dir, FileName))

	again, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func TestAcquire_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	lock, err := Acquire(dir)
	require.NoError(t, err)
	defer lock.Release()
	assert.DirExists(t, dir)
}
