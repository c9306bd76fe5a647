// Package speller implements a lexicon-backed spell checker over resource
// archives of kind "speller".
package speller

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"langworker/internal/bundle"
	"langworker/internal/engine"
)

const (
	// DefaultMaxSuggestions applies when a request does not ask for a count.
	DefaultMaxSuggestions = 10
	// MaxEditDistance is the largest edit distance a suggestion may have.
	MaxEditDistance = 2
)

type word struct {
	text   string
	runes  []rune
	weight float32
}

// Speller checks words against a lexicon and proposes close matches. It is
// immutable after New and safe for concurrent use.
type Speller struct {
	known    map[string]float32
	byLength map[int][]word
}

// New builds a speller from the lexicon member of a speller archive.
func New(a *bundle.Archive) (engine.Analyzer, error) {
	data, ok := a.File(bundle.LexiconFile)
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", bundle.ErrCorrupt, bundle.LexiconFile)
	}
	entries, err := bundle.DecodeLexicon(data)
	if err != nil {
		return nil, err
	}
	return FromEntries(entries), nil
}

// FromEntries builds a speller from an in-memory lexicon. Entries that fold
// to the same key are merged: the lowest weight wins and a lower-case
// spelling is preferred over a capitalized one.
func FromEntries(entries []bundle.Entry) *Speller {
	s := &Speller{
		known:    make(map[string]float32, len(entries)),
		byLength: make(map[int][]word),
	}
	spelling := make(map[string]string, len(entries))
	for _, e := range entries {
		key := fold(e.Word)
		text := norm.NFC.String(e.Word)
		prev, seen := spelling[key]
		switch {
		case !seen:
			s.known[key] = e.Weight
			spelling[key] = text
		case e.Weight < s.known[key]:
			s.known[key] = e.Weight
			if prev != key {
				spelling[key] = text
			}
		case text == key:
			spelling[key] = text
		}
	}
	for key, text := range spelling {
		runes := []rune(key)
		s.byLength[len(runes)] = append(s.byLength[len(runes)], word{text: text, runes: runes, weight: s.known[key]})
	}
	return s
}

// Analyze checks every word in the request text.
func (s *Speller) Analyze(ctx context.Context, req engine.Request) (engine.Result, error) {
	limit := req.MaxSuggestions
	if limit == 0 {
		limit = DefaultMaxSuggestions
	}

	tokens := Tokenize(req.Text)
	results := make([]engine.WordResult, 0, len(tokens))
	for _, tok := range tokens {
		if err := ctx.Err(); err != nil {
			return engine.Result{}, err
		}
		wr := engine.WordResult{Word: tok.Text, Start: tok.Start, End: tok.End}
		wr.Correct = s.IsCorrect(tok.Text)
		if !wr.Correct {
			wr.Suggestions = s.Suggest(tok.Text, limit)
		}
		results = append(results, wr)
	}
	return engine.Result{Words: results}, nil
}

// IsCorrect reports whether w is in the lexicon, ignoring case.
func (s *Speller) IsCorrect(w string) bool {
	_, ok := s.known[fold(w)]
	return ok
}

// Suggest returns up to limit lexicon words within MaxEditDistance of w,
// ordered by edit distance, then lexicon weight, then spelling. A
// suggestion's reported weight is its lexicon weight plus its distance.
func (s *Speller) Suggest(w string, limit int) []engine.Suggestion {
	type candidate struct {
		word
		dist int
	}

	target := []rune(fold(w))
	var found []candidate
	for n := len(target) - MaxEditDistance; n <= len(target)+MaxEditDistance; n++ {
		for _, cand := range s.byLength[n] {
			d := distance(target, cand.runes, MaxEditDistance)
			if d > MaxEditDistance {
				continue
			}
			found = append(found, candidate{word: cand, dist: d})
		}
	}

	sort.Slice(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if a.dist != b.dist {
			return a.dist < b.dist
		}
		if a.weight != b.weight {
			return a.weight < b.weight
		}
		return a.text < b.text
	})
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}

	out := make([]engine.Suggestion, len(found))
	for i, c := range found {
		out[i] = engine.Suggestion{
			Value:  matchCase(w, c.text),
			Weight: c.weight + float32(c.dist),
		}
	}
	return out
}

// fold normalizes to NFC and lower case, and unifies typographic apostrophes.
func fold(s string) string {
	s = strings.ReplaceAll(s, "’", "'")
	return strings.ToLower(norm.NFC.String(s))
}

// matchCase copies the capitalization pattern of original onto suggestion.
// Capitals already present in the lexicon spelling are kept.
func matchCase(original, suggestion string) string {
	first, _ := utf8.DecodeRuneInString(original)
	if !unicode.IsUpper(first) {
		return suggestion
	}
	if utf8.RuneCountInString(original) > 1 && strings.ToUpper(original) == original {
		return strings.ToUpper(suggestion)
	}
	r, size := utf8.DecodeRuneInString(suggestion)
	return string(unicode.ToUpper(r)) + suggestion[size:]
}

// distance is the optimal string alignment distance between a and b. It
// returns max+1 as soon as the distance is known to exceed max.
func distance(a, b []rune, max int) int {
	if abs(len(a)-len(b)) > max {
		return max + 1
	}
	prev2 := make([]int, len(b)+1)
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			v := min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
			if i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				v = min(v, prev2[j-2]+1)
			}
			cur[j] = v
			if v < rowMin {
				rowMin = v
			}
		}
		if rowMin > max {
			return max + 1
		}
		prev2, prev, cur = prev, cur, prev2
	}
	return prev[len(b)]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
