package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestPathIgnorer(t *testing.T) {
	ignorer := NewPathIgnorer([]string{"META-INF/**", " *.tmp ", ""})

	assert.True(t, ignorer.IsIgnored("META-INF/MANIFEST.MF"))
	assert.True(t, ignorer.IsIgnored("build.tmp"))
	assert.False(t, ignorer.IsIgnored("com/example/Foo.class"))
	assert.False(t, NewPathIgnorer(nil).IsIgnored("anything"))
}

func TestBuildFileManifest(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "com", "example", "Foo.class"), "foo")
	writeFile(t, filepath.Join(root, "com", "example", "Foo.kt"), "source")
	writeFile(t, filepath.Join(root, "META-INF", "Bar.class"), "bar")

	manifest, err := BuildFileManifest(root, "**/*.class", NewPathIgnorer([]string{"META-INF"}))
	require.NoError(t, err)

	require.Len(t, manifest, 1)
	hash, err := ComputeFileHash(filepath.Join(root, "com", "example", "Foo.class"))
	require.NoError(t, err)
	assert.Equal(t, hash, manifest[filepath.Join(root, "com", "example", "Foo.class")])
}

func TestDiffManifests(t *testing.T) {
	previous := map[string]string{
		"/out/Kept.class":    "1",
		"/out/Changed.class": "1",
		"/out/Deleted.class": "1",
	}
	current := map[string]string{
		"/out/Kept.class":    "1",
		"/out/Changed.class": "2",
		"/out/New.class":     "1",
	}

	assert.Equal(t, map[string]ChangeType{
		"/out/Changed.class": ChangeModified,
		"/out/Deleted.class": ChangeRemoved,
		"/out/New.class":     ChangeAdded,
	}, DiffManifests(previous, current))
	assert.Empty(t, DiffManifests(current, current))
}
