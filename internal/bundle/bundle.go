package bundle

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v2"
)

// FormatVersion is the only manifest format this build understands.
const FormatVersion = 1

// Archive member names
const (
	ManifestFile = "manifest.yaml"
	LexiconFile  = "lexicon.tsv.zst"
	RulesFile    = "rules.yaml"
)

// Archive kinds
const (
	KindSpeller = "speller"
	KindGrammar = "grammar"
)

// maxMemberSize bounds how much a single archive member may inflate to.
const maxMemberSize = 256 << 20

var (
	// ErrNotAFile is returned when the archive path names a directory or device.
	ErrNotAFile = errors.New("not a regular file")
	// ErrCorrupt is returned when the archive cannot be parsed.
	ErrCorrupt = errors.New("corrupt archive")
	// ErrUnsupportedFormat is returned for unknown format versions or kinds.
	ErrUnsupportedFormat = errors.New("unsupported archive format")
)

// Manifest describes the contents of a resource archive.
type Manifest struct {
	Format    int               `yaml:"format"`
	Kind      string            `yaml:"kind"`
	Locale    string            `yaml:"locale,omitempty"`
	Name      string            `yaml:"name,omitempty"`
	Version   string            `yaml:"version,omitempty"`
	Reentrant bool              `yaml:"reentrant"`
	Checksums map[string]string `yaml:"checksums,omitempty"`
}

// Archive is a fully read resource archive. Members are held in memory;
// the underlying file is closed once Open returns.
type Archive struct {
	Path     string
	Manifest Manifest
	files    map[string][]byte
}

// Open reads and verifies the archive at path. Errors wrap os.ErrNotExist,
// ErrNotAFile, ErrCorrupt or ErrUnsupportedFormat.
func Open(path string) (*Archive, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: %w", path, ErrNotAFile)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer zr.Close()

	files := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		data, err := readMember(f)
		if err != nil {
			return nil, fmt.Errorf("%w: member %s: %v", ErrCorrupt, f.Name, err)
		}
		files[f.Name] = data
	}

	raw, ok := files[ManifestFile]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrCorrupt, ManifestFile)
	}
	var m Manifest
	if err := yaml.UnmarshalStrict(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", ErrCorrupt, err)
	}
	if m.Format != FormatVersion {
		return nil, fmt.Errorf("%w: format version %d", ErrUnsupportedFormat, m.Format)
	}
	switch m.Kind {
	case KindSpeller, KindGrammar:
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrUnsupportedFormat, m.Kind)
	}

	for name, want := range m.Checksums {
		data, ok := files[name]
		if !ok {
			return nil, fmt.Errorf("%w: checksum listed for missing member %s", ErrCorrupt, name)
		}
		if got := Checksum(data); !strings.EqualFold(got, want) {
			return nil, fmt.Errorf("%w: checksum mismatch for %s", ErrCorrupt, name)
		}
	}

	return &Archive{Path: path, Manifest: m, files: files}, nil
}

func readMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxMemberSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxMemberSize {
		return nil, fmt.Errorf("member exceeds %d bytes", maxMemberSize)
	}
	return data, nil
}

// File returns the named member.
func (a *Archive) File(name string) ([]byte, bool) {
	data, ok := a.files[name]
	return data, ok
}

// Members lists member names in sorted order.
func (a *Archive) Members() []string {
	names := make([]string, 0, len(a.files))
	for name := range a.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Checksum returns the hex BLAKE2b-256 digest used in manifests.
func Checksum(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Build writes an archive at path containing the manifest and files.
// Checksums for every member are computed and stored in the manifest.
func Build(path string, m Manifest, files map[string][]byte) error {
	if m.Format == 0 {
		m.Format = FormatVersion
	}
	m.Checksums = make(map[string]string, len(files))
	for name, data := range files {
		if name == ManifestFile {
			return fmt.Errorf("%s is reserved", ManifestFile)
		}
		m.Checksums[name] = Checksum(data)
	}

	manifest, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if err := writeMember(zw, ManifestFile, manifest); err != nil {
		return err
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writeMember(zw, name, files[name]); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create archive directory: %w", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	return nil
}

func writeMember(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create member %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write member %s: %w", name, err)
	}
	return nil
}
