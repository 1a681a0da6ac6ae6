package normalize

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
)

// ErrInvalidRule is returned when a rule table cannot guarantee idempotent
// canonicalization.
var ErrInvalidRule = errors.New("invalid normalization rule")

// Rule maps a long phrase to its short form, e.g. "state high school" -> "shs".
type Rule struct {
	Long  string `yaml:"long" json:"long"`
	Short string `yaml:"short" json:"short"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultRules returns the built-in Queensland school name abbreviations.
// "Community College" is deliberately absent: boundaries spell it out.
func DefaultRules() []Rule {
	return []Rule{
		{Long: "state high school", Short: "shs"},
		{Long: "state secondary college", Short: "ssc"},
		{Long: "state special school", Short: "sss"},
		{Long: "state community college", Short: "scc"},
		{Long: "environmental education centre", Short: "eec"},
		{Long: "school of distance education", Short: "sde"},
		{Long: "state school", Short: "ss"},
		{Long: "state college", Short: "sc"},
	}
}

// LoadRules reads a YAML rule table of the form
//
//	rules:
//	  - long: state high school
//	    short: shs
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file %s: %w", path, err)
	}

	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rule file %s: %w", path, err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("%w: rule file %s has no rules", ErrInvalidRule, path)
	}
	return f.Rules, nil
}

// FromFile builds a normalizer from a YAML rule file. An empty path yields
// the built-in table.
func FromFile(path string) (*Normalizer, error) {
	if path == "" {
		return Default(), nil
	}
	rules, err := LoadRules(path)
	if err != nil {
		return nil, err
	}
	return NewNormalizer(rules)
}

// compiledRule is a rule split into tokens after cleaning.
type compiledRule struct {
	long  []string
	short string
}

// compileRules cleans every rule and checks that a short form can never be
// consumed by a later pass: shorts are single tokens that appear in no long
// form, and no long form is listed twice.
func compileRules(rules []Rule) ([]compiledRule, error) {
	longTokens := make(map[string]bool)
	seenLong := make(map[string]bool)
	seenShort := make(map[string]bool)
	compiled := make([]compiledRule, 0, len(rules))

	for _, r := range rules {
		long := strings.Fields(clean(r.Long))
		short := strings.Fields(clean(r.Short))
		if len(long) == 0 || len(short) != 1 {
			return nil, fmt.Errorf("%w: %q -> %q", ErrInvalidRule, r.Long, r.Short)
		}
		key := strings.Join(long, " ")
		if seenLong[key] {
			return nil, fmt.Errorf("%w: duplicate long form %q", ErrInvalidRule, key)
		}
		if seenShort[short[0]] {
			return nil, fmt.Errorf("%w: duplicate short form %q", ErrInvalidRule, short[0])
		}
		seenLong[key] = true
		seenShort[short[0]] = true
		for _, tok := range long {
			longTokens[tok] = true
		}
		compiled = append(compiled, compiledRule{long: long, short: short[0]})
	}

	for _, c := range compiled {
		if longTokens[c.short] {
			return nil, fmt.Errorf("%w: short form %q also appears inside a long form", ErrInvalidRule, c.short)
		}
	}

	// Longest pattern first so "state high school" wins over "state school".
	sort.SliceStable(compiled, func(i, j int) bool {
		if len(compiled[i].long) != len(compiled[j].long) {
			return len(compiled[i].long) > len(compiled[j].long)
		}
		return strings.Join(compiled[i].long, " ") < strings.Join(compiled[j].long, " ")
	})
	return compiled, nil
}
