package mesh

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelevantEvent(t *testing.T) {
	tests := []struct {
		event fsnotify.Event
		want  bool
	}{
		{fsnotify.Event{Name: "/d/femur.stl", Op: fsnotify.Write}, true},
		{fsnotify.Event{Name: "/d/FEMUR.STL", Op: fsnotify.Create}, true},
		{fsnotify.Event{Name: "/d/femur.stl", Op: fsnotify.Remove}, true},
		{fsnotify.Event{Name: "/d/femur.stl", Op: fsnotify.Rename}, true},
		{fsnotify.Event{Name: "/d/femur.stl", Op: fsnotify.Chmod}, false},
		{fsnotify.Event{Name: "/d/notes.txt", Op: fsnotify.Write}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, relevantEvent(tt.event), "%s %s", tt.event.Op, tt.event.Name)
	}
}

func TestNewWatcher_MissingDirectory(t *testing.T) {
	_, err := NewWatcher([]string{filepath.Join(t.TempDir(), "gone")}, 0, func(context.Context) {})
	assert.True(t, IsInputError(err))
}

func TestWatcher_DebouncesBurst(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	w, err := NewWatcher([]string{dir}, 100*time.Millisecond, func(context.Context) { calls.Add(1) })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Several writes in quick succession settle into one run.
	for i := 0; i < 3; i++ {
		writeMesh(t, dir, "femur.stl", unitCube())
		time.Sleep(10 * time.Millisecond)
	}
	writeRaw(t, dir, "notes.txt", "ignored")

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}
