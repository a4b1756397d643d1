package camera

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarttraffic/trafficd/internal/model"
)

func writeSpoolFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func TestDirectorySource_GrabExistingFile(t *testing.T) {
	dir := t.TempDir()
	writeSpoolFile(t, dir, "frame1.jpg", []byte("jpeg-bytes"))

	src := NewDirectorySource(0, dir, 640, 480)
	frame, err := src.Grab(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, frame.SourceID)
	assert.Equal(t, []byte("jpeg-bytes"), frame.Data)
	assert.NotEmpty(t, frame.ID)
}

func TestDirectorySource_WaitsForNewFile(t *testing.T) {
	dir := t.TempDir()
	src := NewDirectorySource(0, dir, 640, 480)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		writeSpoolFile(t, dir, "late.png", []byte("png-bytes"))
	}()

	frame, err := src.Grab(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), frame.Data)
}

func TestDirectorySource_DoesNotReconsumeSameFile(t *testing.T) {
	dir := t.TempDir()
	writeSpoolFile(t, dir, "only.jpg", []byte("once"))

	src := NewDirectorySource(0, dir, 640, 480)
	_, err := src.Grab(context.Background())
	require.NoError(t, err)

	// Same file again: grab must wait and then fail on context expiry.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = src.Grab(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrSourceFailed))
}

func TestDirectorySource_IgnoresNonImageFiles(t *testing.T) {
	dir := t.TempDir()
	writeSpoolFile(t, dir, "notes.txt", []byte("not a frame"))

	src := NewDirectorySource(0, dir, 640, 480)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := src.Grab(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrSourceFailed))
}

func TestDirectorySource_MissingSpoolDir(t *testing.T) {
	src := NewDirectorySource(0, "/nonexistent/spool", 640, 480)
	_, err := src.Grab(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrSourceFailed))
}

func TestSyntheticSource_FramesDiffer(t *testing.T) {
	src := NewSyntheticSource(2, 32, 24)

	a, err := src.Grab(context.Background())
	require.NoError(t, err)
	b, err := src.Grab(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, a.SourceID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.Data, b.Data)
	assert.Equal(t, 32, a.Width)
	assert.Equal(t, 24, a.Height)
}
