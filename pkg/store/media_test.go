package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestMediaSaveLayout(t *testing.T) {
	m := NewMedia(t.TempDir())
	m.now = func() time.Time { return time.Date(2024, 5, 7, 10, 0, 0, 0, time.UTC) }

	rel, err := m.Save("IMG_0001.JPEG", []byte("jpeg bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rel, "shots/2024/05/"), rel)
	assert.True(t, strings.HasSuffix(rel, ".jpg"), rel)

	b, err := os.ReadFile(filepath.Join(m.Root(), filepath.FromSlash(rel)))
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(b))

	again, err := m.Save("IMG_0001.JPEG", []byte("jpeg bytes"))
	require.NoError(t, err)
	assert.NotEqual(t, rel, again)
}

func TestMediaSniffsExtension(t *testing.T) {
	m := NewMedia(t.TempDir())
	rel, err := m.Save("blob", pngHeader)
	require.NoError(t, err)
	assert.Equal(t, ".png", filepath.Ext(rel))

	rel, err = m.Save("", []byte("plain text"))
	require.NoError(t, err)
	assert.Equal(t, ".bin", filepath.Ext(rel))
}

func TestMediaSaveRejectsEmpty(t *testing.T) {
	m := NewMedia(t.TempDir())
	_, err := m.Save("a.png", nil)
	assert.Error(t, err)
}

func TestMediaReadRemove(t *testing.T) {
	m := NewMedia(t.TempDir())
	rel, err := m.Save("a.png", pngHeader)
	require.NoError(t, err)

	b, err := m.Read(rel)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, b)

	require.NoError(t, m.Remove(rel))
	_, err = m.Read(rel)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, m.Remove(rel))
}

func TestMediaRejectsTraversal(t *testing.T) {
	m := NewMedia(t.TempDir())
	for _, rel := range []string{"", "../secret", "shots/../../etc/passwd", "/", "a/./b"} {
		_, err := m.Read(rel)
		assert.ErrorIs(t, err, ErrInvalidPath, rel)
		assert.ErrorIs(t, m.Remove(rel), ErrInvalidPath, rel)
	}
}

func TestMediaList(t *testing.T) {
	m := NewMedia(t.TempDir())
	a, err := m.Save("a.png", pngHeader)
	require.NoError(t, err)
	b, err := m.Save("b.png", pngHeader)
	require.NoError(t, err)

	list, err := m.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a, b}, list)

	empty, err := NewMedia(filepath.Join(t.TempDir(), "none")).List()
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMediaModTime(t *testing.T) {
	m := NewMedia(t.TempDir())
	rel, err := m.Save("a.png", pngHeader)
	require.NoError(t, err)

	old := time.Now().Add(-3 * time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(filepath.Join(m.Root(), filepath.FromSlash(rel)), old, old))
	got, err := m.ModTime(rel)
	require.NoError(t, err)
	assert.True(t, got.Equal(old), got)

	_, err = m.ModTime("shots/none.png")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.ModTime("../escape")
	assert.ErrorIs(t, err, ErrInvalidPath)
}
