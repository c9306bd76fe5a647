package engine

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"langworker/internal/bundle"
	"langworker/internal/shared/testutil"
)

type fakeAnalyzer struct {
	fn func(ctx context.Context, req Request) (Result, error)
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, req Request) (Result, error) {
	return f.fn(ctx, req)
}

func echoFactories(fn func(ctx context.Context, req Request) (Result, error)) Factories {
	if fn == nil {
		fn = func(ctx context.Context, req Request) (Result, error) {
			return Result{Words: []WordResult{{Word: req.Text, Correct: true}}}, nil
		}
	}
	factory := func(a *bundle.Archive) (Analyzer, error) { return &fakeAnalyzer{fn: fn}, nil }
	return Factories{KindSpeller: factory, KindGrammar: factory}
}

func TestOpen(t *testing.T) {
	fx := testutil.NewArchiveFixtures(t)
	path := fx.Speller(t, "se", nil)

	r, err := Open(path, KindSpeller, echoFactories(nil))
	require.NoError(t, err)

	assert.True(t, r.Loaded())
	assert.Equal(t, KindSpeller, r.Kind())
	assert.Equal(t, "se", r.Language())
	assert.Equal(t, path, r.Path())
	assert.True(t, r.Reentrant())
	assert.Equal(t, "test speller", r.Manifest().Name)

	require.NoError(t, r.Close())
	assert.False(t, r.Loaded())
}

func TestOpenAcceptsAnyKind(t *testing.T) {
	fx := testutil.NewArchiveFixtures(t)
	r, err := Open(fx.Grammar(t, "en", nil), KindAny, echoFactories(nil))
	require.NoError(t, err)
	assert.Equal(t, KindGrammar, r.Kind())
}

func TestOpenErrors(t *testing.T) {
	fx := testutil.NewArchiveFixtures(t)
	speller := fx.Speller(t, "en", nil)

	failing := Factories{KindSpeller: func(a *bundle.Archive) (Analyzer, error) {
		return nil, errors.New("lexicon exploded")
	}}

	tests := []struct {
		name      string
		path      string
		want      Kind
		factories Factories
		code      LoadCode
	}{
		{name: "nonexistent path", path: fx.Dir + "/missing.zhfst", want: KindSpeller, factories: echoFactories(nil), code: LoadNotFound},
		{name: "directory", path: fx.Dir, want: KindSpeller, factories: echoFactories(nil), code: LoadNotFound},
		{name: "garbage", path: fx.Raw(t, "junk.zhfst", []byte("junk")), want: KindSpeller, factories: echoFactories(nil), code: LoadCorrupt},
		{name: "kind mismatch", path: speller, want: KindGrammar, factories: echoFactories(nil), code: LoadUnsupportedFormat},
		{name: "no factory", path: speller, want: KindAny, factories: Factories{}, code: LoadUnsupportedFormat},
		{name: "factory failure", path: speller, want: KindSpeller, factories: failing, code: LoadCorrupt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Open(tt.path, tt.want, tt.factories)
			require.Error(t, err)
			assert.Nil(t, r)

			var le *LoadError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tt.code, le.Code)
			assert.ErrorIs(t, err, &LoadError{Code: tt.code})
		})
	}
}

func TestLanguageFallsBackToFileName(t *testing.T) {
	assert.Equal(t, "sma", languageOf(bundle.Manifest{}, "/data/sma.zhfst"))
	assert.Equal(t, "nob", languageOf(bundle.Manifest{Locale: "nob"}, "/data/x.zhfst"))
	assert.Equal(t, "plain", languageOf(bundle.Manifest{}, "/data/plain"))
}

func TestAnalyzeValidation(t *testing.T) {
	fx := testutil.NewArchiveFixtures(t)
	r, err := Open(fx.Speller(t, "en", nil), KindSpeller, echoFactories(nil), WithMaxTextBytes(16))
	require.NoError(t, err)

	tests := []struct {
		name string
		req  Request
	}{
		{name: "empty", req: Request{Text: ""}},
		{name: "whitespace", req: Request{Text: "  \n\t"}},
		{name: "too long", req: Request{Text: strings.Repeat("a", 17)}},
		{name: "invalid utf8", req: Request{Text: "ab\xffcd"}},
		{name: "negative suggestions", req: Request{Text: "abc", MaxSuggestions: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Analyze(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	res, err := r.Analyze(context.Background(), Request{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, KindSpeller, res.Kind)
	assert.Equal(t, "hello", res.Text)
}

func TestAnalyzeClassifiesFailures(t *testing.T) {
	fx := testutil.NewArchiveFixtures(t)
	path := fx.Speller(t, "en", nil)

	tests := []struct {
		name string
		fn   func(ctx context.Context, req Request) (Result, error)
		want error
	}{
		{
			name: "panic becomes engine fault",
			fn:   func(ctx context.Context, req Request) (Result, error) { panic("boom") },
			want: ErrEngineFault,
		},
		{
			name: "plain error becomes engine fault",
			fn: func(ctx context.Context, req Request) (Result, error) {
				return Result{}, errors.New("broken")
			},
			want: ErrEngineFault,
		},
		{
			name: "deadline becomes timeout",
			fn: func(ctx context.Context, req Request) (Result, error) {
				<-ctx.Done()
				return Result{}, ctx.Err()
			},
			want: ErrTimeout,
		},
		{
			name: "typed errors pass through",
			fn: func(ctx context.Context, req Request) (Result, error) {
				return Result{}, NewAnalysisError(InvalidInput, errors.New("unsupported script"))
			},
			want: ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Open(path, KindSpeller, echoFactories(tt.fn))
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			_, err = r.Analyze(ctx, Request{Text: "hello"})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNonReentrantAnalyzerIsSerialized(t *testing.T) {
	fx := testutil.NewArchiveFixtures(t)
	lexicon, err := bundle.EncodeLexicon(testutil.DefaultWords)
	require.NoError(t, err)
	path := fx.Dir + "/serial.zhfst"
	require.NoError(t, bundle.Build(path, bundle.Manifest{Kind: bundle.KindSpeller, Reentrant: false},
		map[string][]byte{bundle.LexiconFile: lexicon}))

	var active, peak atomic.Int32
	r, err := Open(path, KindSpeller, echoFactories(func(ctx context.Context, req Request) (Result, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return Result{}, nil
	}))
	require.NoError(t, err)
	assert.False(t, r.Reentrant())

	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_, _ = r.Analyze(context.Background(), Request{Text: "x"})
		}()
	}
	for i := 0; i < 5; i++ {
		<-done
	}
	assert.Equal(t, int32(1), peak.Load())
}

func TestNonReentrantWaitRespectsDeadline(t *testing.T) {
	fx := testutil.NewArchiveFixtures(t)
	lexicon, err := bundle.EncodeLexicon(testutil.DefaultWords)
	require.NoError(t, err)
	path := fx.Dir + "/stuck.zhfst"
	require.NoError(t, bundle.Build(path, bundle.Manifest{Kind: bundle.KindSpeller},
		map[string][]byte{bundle.LexiconFile: lexicon}))

	release := make(chan struct{})
	defer close(release)
	entered := make(chan struct{}, 1)
	r, err := Open(path, KindSpeller, echoFactories(func(ctx context.Context, req Request) (Result, error) {
		entered <- struct{}{}
		<-release
		return Result{}, nil
	}))
	require.NoError(t, err)

	go func() { _, _ = r.Analyze(context.Background(), Request{Text: "stuck"}) }()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.Analyze(ctx, Request{Text: "next"})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"": KindAny, "any": KindAny, "speller": KindSpeller, "grammar": KindGrammar} {
		got, ok := ParseKind(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseKind("hyphenator")
	assert.False(t, ok)
}
