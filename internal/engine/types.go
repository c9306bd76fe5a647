package engine

import (
	"context"

	"langworker/internal/bundle"
)

// Kind is the analyzer family an archive provides.
type Kind string

const (
	// KindAny accepts whatever kind the archive declares.
	KindAny     Kind = ""
	KindSpeller Kind = bundle.KindSpeller
	KindGrammar Kind = bundle.KindGrammar
)

// ParseKind maps a configuration string to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "", "any", "auto":
		return KindAny, true
	case string(KindSpeller):
		return KindSpeller, true
	case string(KindGrammar):
		return KindGrammar, true
	}
	return KindAny, false
}

// Request is one unit of text plus optional analysis parameters.
type Request struct {
	Text           string
	MaxSuggestions int
	Locale         string
}

// Suggestion is a proposed replacement for a misspelled word.
type Suggestion struct {
	Value  string
	Weight float32
}

// WordResult is the speller verdict for one token. Start and End are byte
// offsets into Request.Text.
type WordResult struct {
	Word        string
	Start       int
	End         int
	Correct     bool
	Suggestions []Suggestion
}

// Flag is a span reported by a grammar checker.
type Flag struct {
	Start       int
	End         int
	Text        string
	RuleID      string
	Message     string
	Suggestions []string
}

// Result is a successful analysis. Spellers fill Words, grammar checkers Flags.
type Result struct {
	Kind  Kind
	Text  string
	Words []WordResult
	Flags []Flag
}

// Analyzer is the opaque analysis capability behind a resource.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (Result, error)
}

// Factory builds an analyzer from an opened archive.
type Factory func(a *bundle.Archive) (Analyzer, error)

// Factories maps each supported kind to its constructor.
type Factories map[Kind]Factory
