// Package grammar implements a rule-based grammar checker over resource
// archives of kind "grammar".
package grammar

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"golang.org/x/text/unicode/norm"

	"langworker/internal/bundle"
	"langworker/internal/engine"
)

type rule struct {
	id          string
	message     string
	re          *regexp.Regexp
	suggestions []string
}

// Checker flags spans matching any of its rules. It is immutable after New.
type Checker struct {
	rules []rule
}

// New compiles the rules member of a grammar archive.
func New(a *bundle.Archive) (engine.Analyzer, error) {
	data, ok := a.File(bundle.RulesFile)
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", bundle.ErrCorrupt, bundle.RulesFile)
	}
	rules, err := bundle.DecodeRules(data)
	if err != nil {
		return nil, err
	}
	return Compile(rules)
}

// Compile builds a checker from decoded rules.
func Compile(rules []bundle.Rule) (*Checker, error) {
	c := &Checker{rules: make([]rule, 0, len(rules))}
	for _, r := range rules {
		pattern := norm.NFC.String(r.Pattern)
		if r.CaseInsensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %s: %v", bundle.ErrCorrupt, r.ID, err)
		}
		c.rules = append(c.rules, rule{id: r.ID, message: r.Message, re: re, suggestions: r.Suggestions})
	}
	return c, nil
}

// Analyze returns every rule match ordered by position. Suggestions are rule
// templates expanded against the match, so "$1 have" reuses the first group.
// Offsets refer to the request text as given; text that is not in NFC form
// is matched as is.
func (c *Checker) Analyze(ctx context.Context, req engine.Request) (engine.Result, error) {
	var flags []engine.Flag
	for _, r := range c.rules {
		if err := ctx.Err(); err != nil {
			return engine.Result{}, err
		}
		for _, m := range r.re.FindAllStringSubmatchIndex(req.Text, -1) {
			// Empty matches flag nothing.
			if m[0] == m[1] {
				continue
			}
			f := engine.Flag{
				Start:   m[0],
				End:     m[1],
				Text:    req.Text[m[0]:m[1]],
				RuleID:  r.id,
				Message: r.message,
			}
			for _, tmpl := range r.suggestions {
				f.Suggestions = append(f.Suggestions, string(r.re.ExpandString(nil, tmpl, req.Text, m)))
			}
			limit := req.MaxSuggestions
			if limit > 0 && len(f.Suggestions) > limit {
				f.Suggestions = f.Suggestions[:limit]
			}
			flags = append(flags, f)
		}
	}

	sort.SliceStable(flags, func(i, j int) bool {
		if flags[i].Start != flags[j].Start {
			return flags[i].Start < flags[j].Start
		}
		return flags[i].RuleID < flags[j].RuleID
	})
	return engine.Result{Flags: flags}, nil
}
