package chart

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeChart creates a chart directory with a Chart.yaml below root and
// returns its path.
func writeChart(t *testing.T, root, dir, name, version string) string {
	t.Helper()

	chartDir := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(chartDir, 0o750))

	descriptor := "apiVersion: v2\nname: " + name + "\nversion: " + version + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(chartDir, DescriptorFile), []byte(descriptor), 0o600))

	return chartDir
}

func TestReleaseTag(t *testing.T) {
	c := Chart{Name: "foo", Version: "1.0.0"}
	assert.Equal(t, "foo-1.0.0", c.ReleaseTag())
}

func TestReadDescriptor(t *testing.T) {
	root := t.TempDir()
	dir := writeChart(t, root, "foo", "foo", "1.2.3")

	c, err := ReadDescriptor(dir)
	require.NoError(t, err)
	assert.Equal(t, "foo", c.Name)
	assert.Equal(t, "1.2.3", c.Version)
	assert.Equal(t, dir, c.Dir)
}

func TestReadDescriptor_Missing(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "docs")
	require.NoError(t, os.MkdirAll(dir, 0o750))

	_, err := ReadDescriptor(dir)
	require.ErrorIs(t, err, ErrNoDescriptor)
}

func TestReadDescriptor_Malformed(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "broken")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DescriptorFile), []byte(":: not yaml ::"), 0o600))

	_, err := ReadDescriptor(dir)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoDescriptor)
}

func TestReadDescriptor_MissingNameOrVersion(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "anon")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DescriptorFile), []byte("apiVersion: v2\nname: anon\n"), 0o600))

	_, err := ReadDescriptor(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing name or version")
}
