package mirror_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metatoaster/effs"
	"github.com/metatoaster/effs/mirror"
)

func TestApplyListsFilesAndDirsOmitsOther(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(dir, "a.txt"), filepath.Join(dir, "link")))

	tuples, err := mirror.Mirror{}.Apply(dir, "")
	require.NoError(t, err)

	byName := map[string]effs.Tuple{}
	for _, tpl := range tuples {
		byName[tpl.Name] = tpl
	}

	require.Contains(t, byName, "a.txt")
	assert.Equal(t, effs.KindFilter, byName["a.txt"].Entry.Kind)

	require.Contains(t, byName, "sub")
	assert.Equal(t, effs.KindDir, byName["sub"].Entry.Kind)

	assert.NotContains(t, byName, "link")
}

func TestApplyFileFilterReadsContent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello\n"), 0o644))

	tuples, err := mirror.Mirror{}.Apply(dir, "")
	require.NoError(t, err)

	var fileEntry effs.Entry
	for _, tpl := range tuples {
		if tpl.Name == "a.txt" {
			fileEntry = tpl.Entry
		}
	}
	require.Equal(t, effs.KindFilter, fileEntry.Kind)

	data, err := fileEntry.Filter.Filtrate().Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestApplyRejectsNonDirectoryRequest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hi"), 0o644))

	_, err := mirror.Mirror{}.Apply(dir, "a.txt")
	var badPath *effs.BadRequestPathError
	require.ErrorAs(t, err, &badPath)
}
