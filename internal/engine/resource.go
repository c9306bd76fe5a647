package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"langworker/internal/bundle"
)

// DefaultMaxTextBytes bounds the text accepted by a single analysis call.
const DefaultMaxTextBytes = 64 << 10

// Option configures Open.
type Option func(*Resource)

// WithMaxTextBytes sets the input length bound.
func WithMaxTextBytes(n int) Option {
	return func(r *Resource) {
		if n > 0 {
			r.maxTextBytes = n
		}
	}
}

// WithLogger sets the resource logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resource) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Resource owns one loaded analysis archive for the process lifetime. It is
// read-only after Open and safe for concurrent use; calls into analyzers that
// do not declare themselves reentrant are serialized.
type Resource struct {
	path         string
	language     string
	kind         Kind
	manifest     bundle.Manifest
	analyzer     Analyzer
	reentrant    bool
	maxTextBytes int
	logger       *slog.Logger

	// turn is a one-slot lock for non-reentrant analyzers; unlike a mutex
	// it can be abandoned when the caller's deadline passes.
	turn   chan struct{}
	loaded atomic.Bool
	closed atomic.Bool
}

// Open loads the archive at path. want restricts the accepted kind; KindAny
// accepts either. The returned error is always a *LoadError.
func Open(path string, want Kind, factories Factories, opts ...Option) (*Resource, error) {
	r := &Resource{
		path:         path,
		maxTextBytes: DefaultMaxTextBytes,
		logger:       slog.Default(),
		turn:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(slog.String("component", "resource"))

	if abs, err := filepath.Abs(path); err == nil {
		r.path = abs
	}

	archive, err := bundle.Open(r.path)
	if err != nil {
		return nil, r.loadError(err)
	}

	r.manifest = archive.Manifest
	r.kind = Kind(archive.Manifest.Kind)
	if want != KindAny && want != r.kind {
		return nil, &LoadError{
			Code: LoadUnsupportedFormat,
			Path: r.path,
			Err:  fmt.Errorf("archive provides %q, expected %q", r.kind, want),
		}
	}

	factory, ok := factories[r.kind]
	if !ok {
		return nil, &LoadError{
			Code: LoadUnsupportedFormat,
			Path: r.path,
			Err:  fmt.Errorf("no analyzer registered for %q", r.kind),
		}
	}
	analyzer, err := factory(archive)
	if err != nil {
		return nil, r.loadError(err)
	}

	r.analyzer = analyzer
	r.reentrant = archive.Manifest.Reentrant
	r.language = languageOf(archive.Manifest, r.path)
	r.loaded.Store(true)

	r.logger.Info("resource loaded",
		slog.String("path", r.path),
		slog.String("file", filepath.Base(r.path)),
		slog.String("directory", filepath.Dir(r.path)),
		slog.String("kind", string(r.kind)),
		slog.String("language", r.language),
		slog.Bool("reentrant", r.reentrant))

	return r, nil
}

func (r *Resource) loadError(err error) *LoadError {
	code := LoadCorrupt
	switch {
	case errors.Is(err, os.ErrNotExist), errors.Is(err, bundle.ErrNotAFile):
		code = LoadNotFound
	case errors.Is(err, bundle.ErrUnsupportedFormat):
		code = LoadUnsupportedFormat
	}
	return &LoadError{Code: code, Path: r.path, Err: err}
}

// languageOf prefers the manifest locale and falls back to the archive file
// name up to its first dot, so "se.zhfst" yields "se".
func languageOf(m bundle.Manifest, path string) string {
	if m.Locale != "" {
		return m.Locale
	}
	name := filepath.Base(path)
	if i := strings.IndexByte(name, '.'); i > 0 {
		return name[:i]
	}
	return name
}

// Analyze performs one analysis call. Errors are always *AnalysisError.
func (r *Resource) Analyze(ctx context.Context, req Request) (res Result, err error) {
	if !r.Loaded() {
		return Result{}, NewAnalysisError(EngineFault, errors.New("resource is not loaded"))
	}
	if err := r.validate(req); err != nil {
		return Result{}, err
	}

	if !r.reentrant {
		select {
		case r.turn <- struct{}{}:
			defer func() { <-r.turn }()
		case <-ctx.Done():
			return Result{}, contextError(ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return Result{}, contextError(err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.ErrorContext(ctx, "analyzer panic recovered", slog.Any("panic", rec))
			res = Result{}
			err = NewAnalysisError(EngineFault, fmt.Errorf("analyzer panic: %v", rec))
		}
	}()

	res, err = r.analyzer.Analyze(ctx, req)
	if err != nil {
		return Result{}, classify(err)
	}
	res.Kind = r.kind
	res.Text = req.Text
	return res, nil
}

func (r *Resource) validate(req Request) error {
	switch {
	case strings.TrimSpace(req.Text) == "":
		return NewAnalysisError(InvalidInput, errors.New("text is empty"))
	case len(req.Text) > r.maxTextBytes:
		return NewAnalysisError(InvalidInput, fmt.Errorf("text exceeds %d bytes", r.maxTextBytes))
	case !utf8.ValidString(req.Text):
		return NewAnalysisError(InvalidInput, errors.New("text is not valid UTF-8"))
	case req.MaxSuggestions < 0:
		return NewAnalysisError(InvalidInput, errors.New("max suggestions must not be negative"))
	}
	return nil
}

func classify(err error) error {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return contextError(err)
	}
	return NewAnalysisError(EngineFault, err)
}

func contextError(err error) error {
	return NewAnalysisError(Timeout, err)
}

// Loaded reports whether the archive opened successfully and has not been closed.
func (r *Resource) Loaded() bool {
	return r != nil && r.loaded.Load() && !r.closed.Load()
}

// Close releases the resource at shutdown.
func (r *Resource) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	if c, ok := r.analyzer.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func (r *Resource) Path() string              { return r.path }
func (r *Resource) Language() string          { return r.language }
func (r *Resource) Kind() Kind                { return r.kind }
func (r *Resource) Manifest() bundle.Manifest { return r.manifest }
func (r *Resource) Reentrant() bool           { return r.reentrant }
