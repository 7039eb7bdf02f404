package blob

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFSBackend_PutThenGet(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFSBackend(dir)
	assert.NoError(t, err)

	objID := "abcd1234abcd1234abcd1234abcd1234abcd1234"
	err = b.Put(KindFS, "store1", objID, strings.NewReader("hello world"), 11)
	assert.NoError(t, err)

	rc, err := b.Get(KindFS, "store1", objID)
	assert.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	assert.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestFSBackend_Put_ShardsByIDPrefix(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFSBackend(dir)
	assert.NoError(t, err)

	objID := "ab1234567890123456789012345678901234cdef"
	err = b.Put(KindBlocks, "store1", objID, strings.NewReader("x"), 1)
	assert.NoError(t, err)

	want := filepath.Join(dir, "storage", "blocks", "store1", "ab", "1234567890123456789012345678901234cdef")
	_, statErr := os.Stat(want)
	assert.NoError(t, statErr)
}

func TestFSBackend_Get_MissingReturnsNotFoundError(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFSBackend(dir)
	assert.NoError(t, err)

	_, err = b.Get(KindFS, "store1", "0000000000000000000000000000000000000099")
	assert.Error(t, err)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestFSBackend_Get_FallsBackToLegacyLayout(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFSBackend(dir)
	assert.NoError(t, err)

	objID := "1111222233334444555566667777888899990000"
	legacyDir := filepath.Join(dir, "fs", "11")
	assert.NoError(t, os.MkdirAll(legacyDir, 0o750))
	assert.NoError(t, os.WriteFile(filepath.Join(legacyDir, objID[2:]), []byte("legacy content"), 0o640))

	rc, err := b.Get(KindFS, "store1", objID)
	assert.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	assert.NoError(t, err)
	assert.Equal(t, "legacy content", string(data))
}

func TestFSBackend_Exists(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFSBackend(dir)
	assert.NoError(t, err)

	objID := "aaaa111122223333444455556666777788889999"
	ok, err := b.Exists(KindFS, "store1", objID)
	assert.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, b.Put(KindFS, "store1", objID, strings.NewReader("y"), 1))
	ok, err = b.Exists(KindFS, "store1", objID)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestIdToPath_RejectsShortID(t *testing.T) {
	_, _, err := idToPath("ab")
	assert.Error(t, err)
}
