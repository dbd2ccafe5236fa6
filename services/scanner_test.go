package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultExtensions = []string{".png", ".jpg", ".jpeg", ".bmp"}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.JPG", "a.png", "c.jpeg", "d.Bmp", "notes.txt", "e.gif", "noext"} {
		touch(t, filepath.Join(dir, name))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.png"), 0o755))
	touch(t, filepath.Join(dir, "nested.png", "inner.png"))

	images, err := ListImages(dir, defaultExtensions)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "a.png"),
		filepath.Join(dir, "b.JPG"),
		filepath.Join(dir, "c.jpeg"),
		filepath.Join(dir, "d.Bmp"),
	}, images)
}

func TestListImagesExtensionForms(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "x.webp"))
	touch(t, filepath.Join(dir, "y.png"))

	images, err := ListImages(dir, []string{"WEBP", " "})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "x.webp")}, images)
}

func TestListImagesEmpty(t *testing.T) {
	images, err := ListImages(t.TempDir(), defaultExtensions)
	require.NoError(t, err)
	assert.Empty(t, images)
}

func TestListImagesErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := ListImages(filepath.Join(dir, "missing"), defaultExtensions)
	assert.ErrorIs(t, err, os.ErrNotExist)

	file := filepath.Join(dir, "file.png")
	touch(t, file)
	_, err = ListImages(file, defaultExtensions)
	assert.ErrorIs(t, err, ErrNotDirectory)
}
