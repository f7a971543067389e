package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/reload-entangle/internal/common"
	"github.com/tanq16/reload-entangle/internal/server"
)

func hub(t *testing.T) *server.Server {
	t.Helper()
	s, err := server.Launch(context.Background(), server.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFlushReportsDifferences(t *testing.T) {
	dir := t.TempDir()
	kept := filepath.Join(dir, "com", "acme", "Kept.class")
	changed := filepath.Join(dir, "com", "acme", "Changed.class")
	gone := filepath.Join(dir, "com", "acme", "Gone.class")
	write(t, kept, "v1")
	write(t, changed, "v1")
	write(t, gone, "v1")

	h := hub(t)
	w, err := New(Config{Dir: dir, Pattern: "**/*.class", Ignore: []string{"**/generated/**"}}, h)
	require.NoError(t, err)
	sub := h.Subscribe()
	defer sub.Close()

	added := filepath.Join(dir, "com", "acme", "Added.class")
	write(t, added, "v1")
	write(t, changed, "v2")
	require.NoError(t, os.Remove(gone))
	write(t, filepath.Join(dir, "generated", "Skip.class"), "v1")
	write(t, filepath.Join(dir, "com", "acme", "Notes.txt"), "v1")

	req, err := w.Flush(context.Background())
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, map[string]common.ChangeType{
		added:   common.ChangeAdded,
		changed: common.ChangeModified,
		gone:    common.ChangeRemoved,
	}, req.ChangedFiles)

	select {
	case msg := <-sub.C():
		assert.True(t, common.SameMessage(req, msg))
	case <-time.After(3 * time.Second):
		t.Fatal("request was not sent")
	}

	req, err = w.Flush(context.Background())
	require.NoError(t, err)
	assert.Nil(t, req)
}

func TestFlushAwaitsResult(t *testing.T) {
	dir := t.TempDir()
	h := hub(t)
	w, err := New(Config{Dir: dir, Pattern: "**/*.class", ResultTimeout: 3 * time.Second}, h)
	require.NoError(t, err)

	agent := h.Subscribe()
	go func() {
		defer agent.Close()
		for msg := range agent.C() {
			if req, ok := msg.(*common.ReloadClassesRequest); ok {
				h.Send(context.Background(), common.NewAgentReloadClassesResult(req.ID(), nil))
				return
			}
		}
	}()

	write(t, filepath.Join(dir, "Foo.class"), "v1")
	req, err := w.Flush(context.Background())
	require.NoError(t, err)
	require.NotNil(t, req)
}

func TestFlushTimesOutWithoutAgent(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Config{Dir: dir, Pattern: "**/*.class", ResultTimeout: 50 * time.Millisecond}, hub(t))
	require.NoError(t, err)

	write(t, filepath.Join(dir, "Foo.class"), "v1")
	req, err := w.Flush(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotNil(t, req)
}

func TestRunPublishesDebouncedChanges(t *testing.T) {
	dir := t.TempDir()
	h := hub(t)
	w, err := New(Config{Dir: dir, Pattern: "**/*.class", Debounce: 20 * time.Millisecond}, h)
	require.NoError(t, err)
	sub := h.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	foo := filepath.Join(dir, "Foo.class")
	write(t, foo, "v1")

	timeout := time.After(3 * time.Second)
	for {
		select {
		case msg := <-sub.C():
			if req, ok := msg.(*common.ReloadClassesRequest); ok {
				assert.Equal(t, common.ChangeAdded, req.ChangedFiles[foo])
				return
			}
		case <-timeout:
			t.Fatal("no reload request published")
		}
	}
}
