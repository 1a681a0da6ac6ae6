package engine

import (
	"strings"

	"github.com/schoolmap/internal/match"
	"github.com/schoolmap/internal/normalize"
)

// NameIndex resolves candidate school names to boundary display names under
// four forms: exact, case-insensitive, canonical and expanded.
type NameIndex struct {
	normalizer *normalize.Normalizer
	exact      map[string][]string
	folded     map[string][]string
	canonical  map[string][]string
	expanded   map[string][]string
}

// BuildNameIndex indexes every boundary display name under all four forms.
func BuildNameIndex(boundaries []match.BoundaryFeature, n *normalize.Normalizer) *NameIndex {
	ni := &NameIndex{
		normalizer: n,
		exact:      make(map[string][]string, len(boundaries)),
		folded:     make(map[string][]string, len(boundaries)),
		canonical:  make(map[string][]string, len(boundaries)),
		expanded:   make(map[string][]string, len(boundaries)),
	}

	for _, b := range boundaries {
		name := b.DisplayName
		add(ni.exact, strings.TrimSpace(name), name)
		add(ni.folded, strings.ToLower(strings.TrimSpace(name)), name)
		add(ni.canonical, n.Canonicalize(name), name)
		add(ni.expanded, n.Expand(name), name)
	}
	return ni
}

func add(m map[string][]string, key, name string) {
	if key == "" {
		return
	}
	for _, existing := range m[key] {
		if existing == name {
			return
		}
	}
	m[key] = append(m[key], name)
}

// Lookup tries each form in precedence order. The first form that hits
// decides: one boundary is a match, more than one is an ambiguous miss.
func (ni *NameIndex) Lookup(candidate string) (string, match.NameVariant, match.MissReason) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return "", "", match.MissEmptyName
	}

	forms := []struct {
		variant match.NameVariant
		table   map[string][]string
		key     string
	}{
		{match.VariantExact, ni.exact, candidate},
		{match.VariantCaseInsensitive, ni.folded, strings.ToLower(candidate)},
		{match.VariantCanonical, ni.canonical, ni.normalizer.Canonicalize(candidate)},
		{match.VariantExpanded, ni.expanded, ni.normalizer.Expand(candidate)},
	}

	for _, p := range forms {
		if p.key == "" {
			continue
		}
		hits := p.table[p.key]
		switch len(hits) {
		case 0:
			continue
		case 1:
			return hits[0], p.variant, ""
		default:
			return "", p.variant, match.MissAmbiguousName
		}
	}
	return "", "", match.MissNoNameVariant
}
