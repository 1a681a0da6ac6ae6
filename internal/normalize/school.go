package normalize

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/schoolmap/internal/debug"
)

// Normalizer canonicalizes school display names against a fixed rule table.
// It is safe for concurrent use; all state is read-only after construction.
type Normalizer struct {
	rules   []compiledRule
	expands map[string][]string
}

// NewNormalizer validates the rule table and builds a normalizer from it.
func NewNormalizer(rules []Rule) (*Normalizer, error) {
	compiled, err := compileRules(rules)
	if err != nil {
		return nil, err
	}

	expands := make(map[string][]string, len(compiled))
	for _, r := range compiled {
		expands[r.short] = r.long
	}
	return &Normalizer{rules: compiled, expands: expands}, nil
}

var (
	defaultOnce       sync.Once
	defaultNormalizer *Normalizer
)

// Default returns the normalizer built from DefaultRules.
func Default() *Normalizer {
	defaultOnce.Do(func() {
		n, err := NewNormalizer(DefaultRules())
		if err != nil {
			panic("normalize: built-in rule table is invalid: " + err.Error())
		}
		defaultNormalizer = n
	})
	return defaultNormalizer
}

// Canonicalize lowercases, folds accents, strips punctuation, collapses
// whitespace and then rewrites long forms to their short forms.
// Canonicalize(Canonicalize(x)) == Canonicalize(x).
func (n *Normalizer) Canonicalize(name string) string {
	return n.CanonicalizeDebug(false, name)
}

// CanonicalizeDebug is Canonicalize with optional debug output.
func (n *Normalizer) CanonicalizeDebug(localDebug bool, name string) string {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	tokens := strings.Fields(clean(name))
	debug.DebugOutput(localDebug, "Tokens: %v", tokens)

	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		matched := false
		for _, r := range n.rules {
			if hasPrefix(tokens[i:], r.long) {
				out = append(out, r.short)
				i += len(r.long)
				matched = true
				debug.DebugOutput(localDebug, "Rule %v -> %s", r.long, r.short)
				break
			}
		}
		if !matched {
			out = append(out, tokens[i])
			i++
		}
	}

	result := strings.Join(out, " ")
	debug.DebugOutput(localDebug, "Canonical: %s", result)
	return result
}

// Expand applies the inverse mapping, short -> long, for names that already
// use abbreviations.
func (n *Normalizer) Expand(name string) string {
	tokens := strings.Fields(clean(name))
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if long, ok := n.expands[tok]; ok {
			out = append(out, long...)
			continue
		}
		out = append(out, tok)
	}
	return strings.Join(out, " ")
}

// Rules returns a copy of the active rule table in application order.
func (n *Normalizer) Rules() []Rule {
	rules := make([]Rule, 0, len(n.rules))
	for _, r := range n.rules {
		rules = append(rules, Rule{Long: strings.Join(r.long, " "), Short: r.short})
	}
	return rules
}

// CandidateName returns the portion of a scraped display name before the
// first comma. Scraped names carry locality qualifiers after it.
func CandidateName(raw string) string {
	if i := strings.IndexByte(raw, ','); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(raw)
}

// accentFolder returns a fresh transformer; chains hold state and must not be
// shared between goroutines.
func accentFolder() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// clean lowercases and folds accents, drops apostrophes and turns every other
// non-alphanumeric rune into a space.
func clean(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if folded, _, err := transform.String(accentFolder(), s); err == nil {
		s = folded
	}

	b := strings.Builder{}
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\'' || r == '’' || r == '`':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func hasPrefix(tokens, prefix []string) bool {
	if len(prefix) > len(tokens) {
		return false
	}
	for i, p := range prefix {
		if tokens[i] != p {
			return false
		}
	}
	return true
}
