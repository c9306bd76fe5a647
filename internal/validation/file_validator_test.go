package validation

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"langworker/internal/shared/testutil"
)

func TestFileValidator_ValidateSourceFile(t *testing.T) {
	tests := []struct {
		name          string
		setupFunc     func(t *testing.T) string
		wantErr       bool
		errorContains string
	}{
		{
			name: "valid file",
			setupFunc: func(t *testing.T) string {
				file := filepath.Join(t.TempDir(), "words.tsv")
				require.NoError(t, os.WriteFile(file, []byte("hello\t1\n"), 0o644))
				return file
			},
		},
		{
			name: "non-existent file",
			setupFunc: func(t *testing.T) string {
				return "/non/existent/words.tsv"
			},
			wantErr:       true,
			errorContains: "does not exist",
		},
		{
			name: "directory",
			setupFunc: func(t *testing.T) string {
				return t.TempDir()
			},
			wantErr:       true,
			errorContains: "is a directory",
		},
		{
			name: "empty file",
			setupFunc: func(t *testing.T) string {
				file := filepath.Join(t.TempDir(), "rules.yaml")
				require.NoError(t, os.WriteFile(file, nil, 0o644))
				return file
			},
			wantErr:       true,
			errorContains: "is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := testutil.NewTestLogger(t)
			err := NewFileValidator(logger).ValidateSourceFile(tt.setupFunc(t))
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestFileValidator_ValidateOutputDirectory(t *testing.T) {
	v := NewFileValidator(nil)

	dir := filepath.Join(t.TempDir(), "nested", "out")
	require.NoError(t, v.ValidateOutputDirectory(dir))
	assert.DirExists(t, dir)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "write probe is removed")

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	assert.Error(t, v.ValidateOutputDirectory(filepath.Join(file, "sub")))
}

func TestFileValidator_ValidateArchiveOutput(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	v := NewFileValidator(logger)
	dir := t.TempDir()

	require.NoError(t, v.ValidateArchiveOutput(filepath.Join(dir, "se.zhfst"), "speller"))
	assert.False(t, handler.ContainsMessage("Unconventional archive extension"))

	require.NoError(t, v.ValidateArchiveOutput(filepath.Join(dir, "se.zip"), "speller"))
	testutil.AssertLogContains(t, handler, slog.LevelWarn, "Unconventional archive extension")

	assert.Error(t, v.ValidateArchiveOutput(dir, "grammar"))
}
