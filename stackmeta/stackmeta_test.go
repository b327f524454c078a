package stackmeta

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStackIDString(t *testing.T) {
	require.Equal(t, "HDP-1.3.0", StackID{Name: "HDP", Version: "1.3.0"}.String())
	require.True(t, StackID{}.IsZero())
	require.False(t, StackID{Name: "HDP"}.IsZero())
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider()
	stack := StackID{Name: "HDP", Version: "1.3.0"}

	repos, err := p.Repositories(stack)
	require.NoError(t, err)
	require.Nil(t, repos, "unknown stack must resolve to a nil map, not an error")

	p.AddOS(stack, "centos6", "ubuntu22")
	repos, err = p.Repositories(stack)
	require.NoError(t, err)
	require.Len(t, repos, 2)
	require.NotEmpty(t, repos["centos6"])

	// Callers get a copy, not the provider's table.
	delete(repos, "centos6")
	repos, err = p.Repositories(stack)
	require.NoError(t, err)
	require.Contains(t, repos, "centos6")
}

func TestDirProvider(t *testing.T) {
	dir := t.TempDir()
	def := `stack:
  name: HDP
  version: "1.3.0"
repositories:
  centos6:
    - id: HDP-1.3.0
      name: HDP
      base_url: http://repo.example.com/hdp/centos6
  ubuntu22:
    - id: HDP-1.3.0
      name: HDP
      base_url: http://repo.example.com/hdp/ubuntu22
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "HDP-1.3.0.yaml"), []byte(def), 0o644))

	p, err := NewDirProvider(dir)
	require.NoError(t, err)

	repos, err := p.Repositories(StackID{Name: "HDP", Version: "1.3.0"})
	require.NoError(t, err)
	require.Len(t, repos, 2)
	require.Equal(t, "http://repo.example.com/hdp/centos6", repos["centos6"][0].BaseURL)

	// Unknown stack: no file means no supported platforms, not an error.
	repos, err = p.Repositories(StackID{Name: "HDP", Version: "9.9.9"})
	require.NoError(t, err)
	require.Nil(t, repos)

	// Repeated lookups are served from cache, including misses.
	repos, err = p.Repositories(StackID{Name: "HDP", Version: "1.3.0"})
	require.NoError(t, err)
	require.Len(t, repos, 2)
}

func TestDirProviderDeclarationMismatch(t *testing.T) {
	dir := t.TempDir()
	def := `stack:
  name: HDP
  version: "2.0.0"
repositories: {}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "HDP-1.3.0.yaml"), []byte(def), 0o644))

	p, err := NewDirProvider(dir)
	require.NoError(t, err)

	_, err = p.Repositories(StackID{Name: "HDP", Version: "1.3.0"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "declares HDP-2.0.0")
}

func TestNewDirProviderMissingDir(t *testing.T) {
	_, err := NewDirProvider(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}
