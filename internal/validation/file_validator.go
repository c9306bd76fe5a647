package validation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Conventional archive extensions per kind
var archiveExtensions = map[string]string{
	"speller": ".zhfst",
	"grammar": ".bhfst",
}

// FileValidator checks the files the bundle tooling reads and writes
type FileValidator struct {
	logger *slog.Logger
}

// NewFileValidator creates a new file validator
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{
		logger: logger,
	}
}

// ValidateSourceFile checks that path is an existing, non-empty regular file
func (v *FileValidator) ValidateSourceFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		v.logger.Error("Source file does not exist",
			slog.String("file", path))
		return fmt.Errorf("file %s does not exist", path)
	}
	if err != nil {
		v.logger.Error("Failed to stat source file",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if info.IsDir() {
		v.logger.Error("Path is a directory, not a file",
			slog.String("path", path))
		return fmt.Errorf("%s is a directory, not a file", path)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	if info.Size() == 0 {
		v.logger.Error("Source file is empty",
			slog.String("file", path))
		return fmt.Errorf("file %s is empty", path)
	}

	v.logger.Debug("Source file validated",
		slog.String("file", path),
		slog.Int64("size", info.Size()))
	return nil
}

// ValidateOutputDirectory ensures the directory exists or can be created,
// and is writable
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		v.logger.Error("Failed to create output directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, ".write_test")
	if err != nil {
		v.logger.Error("Output directory is not writable",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	f.Close()
	os.Remove(f.Name())
	return nil
}

// ValidateArchiveOutput checks where an archive of kind will be written.
// A name without the conventional extension only warns: the worker accepts
// any file name, but the language falls back to the name before the first
// dot when the manifest has no locale.
func (v *FileValidator) ValidateArchiveOutput(path, kind string) error {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if err := v.ValidateOutputDirectory(filepath.Dir(path)); err != nil {
		return err
	}

	if want, ok := archiveExtensions[kind]; ok && !strings.EqualFold(filepath.Ext(path), want) {
		v.logger.Warn("Unconventional archive extension",
			slog.String("path", path),
			slog.String("kind", kind),
			slog.String("expected", want))
	}
	return nil
}
