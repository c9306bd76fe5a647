package speller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"langworker/internal/bundle"
	"langworker/internal/engine"
	"langworker/internal/shared/testutil"
)

func newTestSpeller() *Speller {
	return FromEntries(testutil.DefaultWords)
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Token
	}{
		{
			name: "simple",
			text: "helo wrold",
			want: []Token{{Text: "helo", Start: 0, End: 4}, {Text: "wrold", Start: 5, End: 10}},
		},
		{
			name: "punctuation and numbers",
			text: "Hi, 42 times!",
			want: []Token{{Text: "Hi", Start: 0, End: 2}, {Text: "times", Start: 7, End: 12}},
		},
		{
			name: "inner joiners",
			text: "don't well-known -dash end-",
			want: []Token{
				{Text: "don't", Start: 0, End: 5},
				{Text: "well-known", Start: 6, End: 16},
				{Text: "dash", Start: 18, End: 22},
				{Text: "end", Start: 23, End: 26},
			},
		},
		{
			name: "non latin",
			text: "čáhci ja ŋ",
			want: []Token{
				{Text: "čáhci", Start: 0, End: 7},
				{Text: "ja", Start: 8, End: 10},
				{Text: "ŋ", Start: 11, End: 13},
			},
		},
		{name: "empty", text: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.text))
		})
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"helo", "hello", 1},
		{"wrold", "world", 1},
		{"abc", "abc", 0},
		{"", "ab", 2},
		{"kitten", "sitting", 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, distance([]rune(tt.a), []rune(tt.b), 5), "%s/%s", tt.a, tt.b)
	}
	assert.Equal(t, 3, distance([]rune("kitten"), []rune("sitting"), 2), "cutoff returns max+1")
}

func TestSuggest(t *testing.T) {
	s := newTestSpeller()

	got := s.Suggest("helo", 0)
	require.NotEmpty(t, got)
	assert.Equal(t, engine.Suggestion{Value: "hello", Weight: 2}, got[0])

	got = s.Suggest("wrold", 2)
	require.Len(t, got, 2)
	assert.Equal(t, "world", got[0].Value)

	got = s.Suggest("Wrold", 1)
	assert.Equal(t, "World", got[0].Value)

	got = s.Suggest("WROLD", 1)
	assert.Equal(t, "WORLD", got[0].Value)

	assert.Empty(t, s.Suggest("zzzzzzzz", 5))
}

func TestSuggestOrdering(t *testing.T) {
	tests := []struct {
		name    string
		entries []bundle.Entry
		input   string
		want    []engine.Suggestion
	}{
		{
			name:    "distance before lexicon weight",
			entries: []bundle.Entry{{Word: "abcd", Weight: 5}, {Word: "xbcy", Weight: 0}},
			input:   "abcx",
			want:    []engine.Suggestion{{Value: "abcd", Weight: 6}, {Value: "xbcy", Weight: 2}},
		},
		{
			name:    "lexicon weight breaks distance ties",
			entries: []bundle.Entry{{Word: "cart", Weight: 3}, {Word: "card", Weight: 1}},
			input:   "carx",
			want:    []engine.Suggestion{{Value: "card", Weight: 2}, {Value: "cart", Weight: 4}},
		},
		{
			name:    "spelling breaks full ties",
			entries: []bundle.Entry{{Word: "bat", Weight: 1}, {Word: "bag", Weight: 1}},
			input:   "bax",
			want:    []engine.Suggestion{{Value: "bag", Weight: 2}, {Value: "bat", Weight: 2}},
		},
		{
			name:    "case variants merge into one entry",
			entries: []bundle.Entry{{Word: "hello", Weight: 5}, {Word: "Hello", Weight: 1}},
			input:   "helo",
			want:    []engine.Suggestion{{Value: "hello", Weight: 2}},
		},
		{
			name:    "duplicates keep the lowest weight",
			entries: []bundle.Entry{{Word: "hello", Weight: 1}, {Word: "hello", Weight: 4}},
			input:   "helo",
			want:    []engine.Suggestion{{Value: "hello", Weight: 2}},
		},
		{
			name:    "proper nouns keep their capitals",
			entries: []bundle.Entry{{Word: "Oslo", Weight: 1}},
			input:   "olso",
			want:    []engine.Suggestion{{Value: "Oslo", Weight: 2}},
		},
		{
			name:    "all caps input upper-cases proper nouns",
			entries: []bundle.Entry{{Word: "Oslo", Weight: 1}},
			input:   "OLSO",
			want:    []engine.Suggestion{{Value: "OSLO", Weight: 2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromEntries(tt.entries).Suggest(tt.input, 0))
		})
	}
}

func TestIsCorrectProperNoun(t *testing.T) {
	s := FromEntries([]bundle.Entry{{Word: "Oslo", Weight: 1}})
	assert.True(t, s.IsCorrect("Oslo"))
	assert.True(t, s.IsCorrect("oslo"))
}

func TestIsCorrect(t *testing.T) {
	s := newTestSpeller()
	assert.True(t, s.IsCorrect("hello"))
	assert.True(t, s.IsCorrect("Hello"))
	assert.True(t, s.IsCorrect("don’t"))
	assert.False(t, s.IsCorrect("helo"))
}

func TestAnalyze(t *testing.T) {
	s := newTestSpeller()

	res, err := s.Analyze(context.Background(), engine.Request{Text: "helo wrold the fox"})
	require.NoError(t, err)
	require.Len(t, res.Words, 4)

	for _, w := range res.Words[:2] {
		assert.False(t, w.Correct, w.Word)
		assert.NotEmpty(t, w.Suggestions, w.Word)
	}
	for _, w := range res.Words[2:] {
		assert.True(t, w.Correct, w.Word)
		assert.Empty(t, w.Suggestions, w.Word)
	}
}

func TestAnalyzeIsRepeatable(t *testing.T) {
	s := newTestSpeller()
	req := engine.Request{Text: "helo wrold", MaxSuggestions: 3}

	first, err := s.Analyze(context.Background(), req)
	require.NoError(t, err)
	second, err := s.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAnalyzeObservesContext(t *testing.T) {
	s := newTestSpeller()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Analyze(ctx, engine.Request{Text: "helo"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewFromArchive(t *testing.T) {
	fx := testutil.NewArchiveFixtures(t)
	a, err := bundle.Open(fx.Speller(t, "en", nil))
	require.NoError(t, err)

	analyzer, err := New(a)
	require.NoError(t, err)
	assert.True(t, analyzer.(*Speller).IsCorrect("world"))

	b, err := bundle.Open(fx.Grammar(t, "en", nil))
	require.NoError(t, err)
	_, err = New(b)
	assert.ErrorIs(t, err, bundle.ErrCorrupt)
}
