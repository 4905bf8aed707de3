package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeDataset creates a dataset directory with the given labels and image
// files. Image contents are placeholders.
func writeDataset(t *testing.T, dir, labels string, images ...string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, LabelsFile), []byte(labels), 0o644))
	for _, img := range images {
		require.NoError(t, os.WriteFile(filepath.Join(dir, img), []byte("img"), 0o644))
	}
	return dir
}

func TestLoad(t *testing.T) {
	dir := writeDataset(t, t.TempDir(), "a.jpg\tHello\nb.jpg\tWorld\n", "a.jpg", "b.jpg")

	samples, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, Sample{Filename: "a.jpg", ImagePath: filepath.Join(dir, "a.jpg"), GroundTruth: "Hello"}, samples[0])
	assert.Equal(t, "b.jpg", samples[1].Filename)
}

func TestLoadEmptyLabels(t *testing.T) {
	dir := writeDataset(t, t.TempDir(), "")
	samples, err := Load(dir)
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestLoadReportsAllMissingImages(t *testing.T) {
	dir := writeDataset(t, t.TempDir(), "a.jpg\tx\nb.jpg\ty\nc.jpg\tz\n", "b.jpg")

	_, err := Load(dir)
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Msg, "a.jpg, c.jpg")
}

func TestLoadNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"))
	assert.True(t, errors.Is(err, ErrNotFound))

	dir := t.TempDir()
	_, err = Load(dir)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "labels file not found")
}

func TestLoadMalformed(t *testing.T) {
	dir := writeDataset(t, t.TempDir(), "a.jpg Hello\n", "a.jpg")
	_, err := Load(dir)
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 1, fe.Line)
}

func TestRange(t *testing.T) {
	samples := []Sample{{Filename: "1"}, {Filename: "2"}, {Filename: "3"}}

	got, err := Range(samples, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []Sample{{Filename: "2"}, {Filename: "3"}}, got)

	got, err = Range(samples, 2, 100)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = Range(samples, 5, 6)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = Range(samples, 0, 1)
	assert.Error(t, err)
	_, err = Range(samples, 3, 2)
	assert.Error(t, err)
}
