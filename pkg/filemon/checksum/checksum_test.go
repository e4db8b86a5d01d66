package checksum

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigest_KnownValue(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	e := New()
	sum, ok := e.Digest(path)
	require.True(t, ok)
	assert.Equal(t, "5eb63bbbe01eeed093cb22bb8f5acdc3", sum)
	assert.Equal(t, int64(1), e.Calls())
	assert.Zero(t, e.Failures())
}

func TestDigest_EmptyFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.js")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	sum, ok := New().Digest(path)
	require.True(t, ok)
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", sum)
}

func TestDigest_MissingFile(t *testing.T) {
	t.Parallel()

	var outcomes []bool
	e := New()
	e.OnDigest = func(ok bool) { outcomes = append(outcomes, ok) }

	sum, ok := e.Digest(filepath.Join(t.TempDir(), "gone.css"))
	assert.False(t, ok)
	assert.Empty(t, sum)
	assert.Equal(t, int64(1), e.Calls())
	assert.Equal(t, int64(1), e.Failures())
	assert.Equal(t, []bool{false}, outcomes)
}

func TestDigest_Directory(t *testing.T) {
	t.Parallel()

	_, ok := New().Digest(t.TempDir())
	assert.False(t, ok)
}

func TestDigest_Concurrent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("same"), 0o644))

	e := New()
	var wg sync.WaitGroup
	sums := make([]string, 16)
	for i := range sums {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sums[i], _ = e.Digest(path)
		}(i)
	}
	wg.Wait()

	for _, s := range sums {
		assert.Equal(t, sums[0], s)
	}
	assert.Equal(t, int64(len(sums)), e.Calls())
}
