package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"langworker/internal/bundle"
)

// DefaultWords is a small English lexicon used across tests.
var DefaultWords = []bundle.Entry{
	{Word: "hello", Weight: 1},
	{Word: "help", Weight: 2},
	{Word: "held", Weight: 3},
	{Word: "hero", Weight: 4},
	{Word: "world", Weight: 1},
	{Word: "word", Weight: 2},
	{Word: "would", Weight: 2},
	{Word: "the", Weight: 0},
	{Word: "quick", Weight: 1},
	{Word: "brown", Weight: 1},
	{Word: "fox", Weight: 1},
	{Word: "don't", Weight: 1},
	{Word: "well-known", Weight: 1},
}

// DefaultRules is a small rule set used across grammar tests.
var DefaultRules = []bundle.Rule{
	{
		ID:              "modal-of",
		Pattern:         `\b(could|should|would) of\b`,
		Message:         "Use \"have\" after a modal verb",
		Suggestions:     []string{"$1 have"},
		CaseInsensitive: true,
	},
	{
		ID:              "an-consonant",
		Pattern:         `\ban ([bcdfgjklmnpqrstvwxz]\w*)`,
		Message:         "Use \"a\" before a consonant sound",
		Suggestions:     []string{"a $1"},
		CaseInsensitive: true,
	},
}

// ArchiveFixtures builds resource archives for tests
type ArchiveFixtures struct {
	Dir string
}

// NewArchiveFixtures creates fixtures rooted in a fresh temporary directory
func NewArchiveFixtures(t testing.TB) *ArchiveFixtures {
	t.Helper()
	return &ArchiveFixtures{Dir: t.TempDir()}
}

// Speller writes a speller archive named "<locale>.zhfst" and returns its path
func (f *ArchiveFixtures) Speller(t testing.TB, locale string, words []bundle.Entry) string {
	t.Helper()
	if words == nil {
		words = DefaultWords
	}
	lexicon, err := bundle.EncodeLexicon(words)
	require.NoError(t, err)

	path := filepath.Join(f.Dir, locale+".zhfst")
	require.NoError(t, bundle.Build(path, bundle.Manifest{
		Kind:      bundle.KindSpeller,
		Locale:    locale,
		Name:      "test speller",
		Version:   "0.0.1",
		Reentrant: true,
	}, map[string][]byte{bundle.LexiconFile: lexicon}))
	return path
}

// Grammar writes a grammar archive named "<locale>.bhfst" and returns its path
func (f *ArchiveFixtures) Grammar(t testing.TB, locale string, rules []bundle.Rule) string {
	t.Helper()
	if rules == nil {
		rules = DefaultRules
	}
	data, err := bundle.EncodeRules(rules)
	require.NoError(t, err)

	path := filepath.Join(f.Dir, locale+".bhfst")
	require.NoError(t, bundle.Build(path, bundle.Manifest{
		Kind:      bundle.KindGrammar,
		Locale:    locale,
		Name:      "test grammar",
		Version:   "0.0.1",
		Reentrant: true,
	}, map[string][]byte{bundle.RulesFile: data}))
	return path
}

// Raw writes arbitrary bytes under name and returns the path
func (f *ArchiveFixtures) Raw(t testing.TB, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(f.Dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}
