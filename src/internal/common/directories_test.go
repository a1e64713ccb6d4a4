package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAndGetWorkingDir(t *testing.T) {
	tempDir := t.TempDir()
	currentDir, _ := os.Getwd()

	t.Run("empty_uses_current", func(t *testing.T) {
		got, err := ValidateAndGetWorkingDir("")
		require.NoError(t, err)
		assert.Equal(t, currentDir, got)
	})

	t.Run("valid_absolute", func(t *testing.T) {
		got, err := ValidateAndGetWorkingDir(tempDir)
		require.NoError(t, err)
		assert.True(t, filepath.IsAbs(got))
	})

	t.Run("nonexistent", func(t *testing.T) {
		_, err := ValidateAndGetWorkingDir(filepath.Join(tempDir, "missing"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not exist")
	})

	t.Run("file_instead_of_dir", func(t *testing.T) {
		f := filepath.Join(tempDir, "f.txt")
		require.NoError(t, os.WriteFile(f, []byte("x"), 0644))
		_, err := ValidateAndGetWorkingDir(f)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a directory")
	})
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	got, err := ExpandPath("~")
	require.NoError(t, err)
	assert.Equal(t, home, got)

	got, err = ExpandPath("~/sub")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "sub"), got)

	got, err = ExpandPath("/etc")
	require.NoError(t, err)
	assert.Equal(t, "/etc", got)
}

func TestAbsPath(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	got, err := AbsPath("testdata/../x.ts")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "x.ts"), got)

	_, err = AbsPath("")
	assert.Error(t, err)
}

func TestReadDocumentFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.ts")
	content := "  line one\r\n\tline two  \n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	data, err := ReadDocumentFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
	assert.True(t, IsRegularFile(path))

	_, err = ReadDocumentFile(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is a directory")
	assert.False(t, IsRegularFile(dir))

	_, err = ReadDocumentFile(filepath.Join(dir, "missing.ts"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.False(t, IsRegularFile(filepath.Join(dir, "missing.ts")))
}
