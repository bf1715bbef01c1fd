package fallback

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/benmeehan/device-agent/pkg/file"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArtifact(t *testing.T, root, version, content string) {
	t.Helper()
	dir := filepath.Join(root, "com.example.DeviceAgent", version)
	require.NoError(t, os.MkdirAll(dir, 0700))
	if content != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "examples.txt"), []byte(content), 0600))
	}
}

func TestFileProvider_ExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "help.txt")
	require.NoError(t, os.WriteFile(path, []byte("usage: send a script"), 0600))

	p := NewFileProvider(path, "", "", "", file.NewFileService(), zerolog.Nop())

	content, ok := p.Content(4096)
	assert.True(t, ok)
	assert.Equal(t, "usage: send a script", string(content))

	content, ok = p.Content(5)
	assert.True(t, ok)
	assert.Equal(t, "usage", string(content))
}

func TestFileProvider_PicksNewestVersion(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, root, "1.0.1", "old")
	writeArtifact(t, root, "1.10.0", "newest")
	writeArtifact(t, root, "1.9.3", "middle")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "com.example.DeviceAgent", "not-a-version"), 0700))

	p := NewFileProvider("", root, "com.example.DeviceAgent", "examples.txt", file.NewFileService(), zerolog.Nop())

	content, ok := p.Content(4096)
	assert.True(t, ok)
	assert.Equal(t, "newest", string(content))
}

func TestFileProvider_SkipsVersionsWithoutFile(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, root, "1.0.1", "present")
	writeArtifact(t, root, "2.0.0", "")

	p := NewFileProvider("", root, "com.example.DeviceAgent", "examples.txt", file.NewFileService(), zerolog.Nop())

	path, err := p.Resolve()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "com.example.DeviceAgent", "1.0.1", "examples.txt"), path)
}

func TestFileProvider_Missing(t *testing.T) {
	p := NewFileProvider("", t.TempDir(), "com.example.DeviceAgent", "examples.txt", file.NewFileService(), zerolog.Nop())

	_, ok := p.Content(4096)
	assert.False(t, ok)

	p = NewFileProvider(filepath.Join(t.TempDir(), "nope.txt"), "", "", "", file.NewFileService(), zerolog.Nop())
	_, ok = p.Content(4096)
	assert.False(t, ok)

	p = NewFileProvider("", "", "", "", file.NewFileService(), zerolog.Nop())
	_, err := p.Resolve()
	assert.Error(t, err)
}
