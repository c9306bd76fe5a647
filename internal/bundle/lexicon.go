package bundle

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v2"
)

// Entry is one lexicon word. Lower weights rank higher.
type Entry struct {
	Word   string
	Weight float32
}

// Rule is one grammar rule as stored in rules.yaml.
type Rule struct {
	ID              string   `yaml:"id"`
	Pattern         string   `yaml:"pattern"`
	Message         string   `yaml:"message"`
	Suggestions     []string `yaml:"suggestions,omitempty"`
	CaseInsensitive bool     `yaml:"case_insensitive,omitempty"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// DecodeLexicon decompresses and parses a lexicon member. Lines are
// "word<TAB>weight"; the weight may be omitted and defaults to zero.
func DecodeLexicon(data []byte) ([]Entry, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: lexicon: %v", ErrCorrupt, err)
	}
	return ParseLexicon(raw)
}

// ParseLexicon parses an uncompressed lexicon.
func ParseLexicon(raw []byte) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(bytes.NewReader(raw))
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		word, weight, hasWeight := strings.Cut(text, "\t")
		e := Entry{Word: strings.TrimSpace(word)}
		if hasWeight {
			w, err := strconv.ParseFloat(strings.TrimSpace(weight), 32)
			if err != nil {
				return nil, fmt.Errorf("%w: lexicon line %d: bad weight %q", ErrCorrupt, line, weight)
			}
			e.Weight = float32(w)
		}
		if e.Word == "" {
			return nil, fmt.Errorf("%w: lexicon line %d: empty word", ErrCorrupt, line)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: lexicon: %v", ErrCorrupt, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: lexicon is empty", ErrCorrupt)
	}
	return entries, nil
}

// EncodeLexicon renders entries in the lexicon member format.
func EncodeLexicon(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	for _, e := range entries {
		fmt.Fprintf(&buf, "%s\t%s\n", e.Word, strconv.FormatFloat(float64(e.Weight), 'f', -1, 32))
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(buf.Bytes(), nil), nil
}

// DecodeRules parses a rules.yaml member.
func DecodeRules(data []byte) ([]Rule, error) {
	var rf ruleFile
	if err := yaml.UnmarshalStrict(data, &rf); err != nil {
		return nil, fmt.Errorf("%w: rules: %v", ErrCorrupt, err)
	}
	if len(rf.Rules) == 0 {
		return nil, fmt.Errorf("%w: no rules", ErrCorrupt)
	}
	seen := make(map[string]bool, len(rf.Rules))
	for i, r := range rf.Rules {
		if r.ID == "" || r.Pattern == "" {
			return nil, fmt.Errorf("%w: rule %d needs id and pattern", ErrCorrupt, i)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("%w: duplicate rule id %q", ErrCorrupt, r.ID)
		}
		seen[r.ID] = true
	}
	return rf.Rules, nil
}

// EncodeRules renders rules in the rules.yaml member format.
func EncodeRules(rules []Rule) ([]byte, error) {
	return yaml.Marshal(ruleFile{Rules: rules})
}
