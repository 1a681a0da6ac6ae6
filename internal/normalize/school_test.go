package normalize

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	n := Default()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"long form high school", "North Lakes State High School", "north lakes shs"},
		{"already abbreviated", "North Lakes SHS", "north lakes shs"},
		{"state school", "Ashgrove State School", "ashgrove ss"},
		{"longest pattern wins", "Cairns State Special School", "cairns sss"},
		{"secondary college", "Mabel Park State Secondary College", "mabel park ssc"},
		{"state college", "North Lakes State College", "north lakes sc"},
		{"whitespace and case", "  KELVIN   grove\tState   College ", "kelvin grove sc"},
		{"apostrophes dropped", "St Peter's State School", "st peters ss"},
		{"punctuation to space", "Mount Gravatt-East State School", "mount gravatt east ss"},
		{"accents folded", "Bélmont State School", "belmont ss"},
		{"community college passes through", "Kingston Community College", "kingston community college"},
		{"partial phrase untouched", "State High Street School", "state high street school"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Canonicalize(tt.input))
		})
	}
}

func TestExpand(t *testing.T) {
	n := Default()

	tests := []struct {
		input string
		want  string
	}{
		{"North Lakes SHS", "north lakes state high school"},
		{"Ashgrove SS", "ashgrove state school"},
		{"North Lakes State High School", "north lakes state high school"},
		{"Ipswich SDE", "ipswich school of distance education"},
		{"Plain Name", "plain name"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Expand(tt.input))
		})
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	n := Default()
	inputs := []string{
		"North Lakes State High School",
		"state state school school",
		"State School State High School",
		"ss shs state",
		"Mount Cotton State School, Mount Cotton",
		"École Française State College",
		"",
		"   \t\n",
		"Ōkura’s  SHS!!",
		"school of distance education state school",
	}

	for _, in := range inputs {
		once := n.Canonicalize(in)
		assert.Equal(t, once, n.Canonicalize(once), "input %q", in)

		expanded := n.Expand(in)
		assert.Equal(t, expanded, n.Expand(expanded), "expand input %q", in)
	}
}

func FuzzCanonicalizeIdempotent(f *testing.F) {
	for _, seed := range []string{"North Lakes State High School", "ss shs", "Ünïcode State College", ""} {
		f.Add(seed)
	}
	n := Default()
	f.Fuzz(func(t *testing.T, in string) {
		once := n.Canonicalize(in)
		if twice := n.Canonicalize(once); twice != once {
			t.Fatalf("Canonicalize not idempotent: %q -> %q -> %q", in, once, twice)
		}
	})
}

func TestCanonicalAndExpandedFormsAgree(t *testing.T) {
	n := Default()
	assert.Equal(t, n.Canonicalize("Kelvin Grove SC"), n.Canonicalize("Kelvin Grove State College"))
	assert.Equal(t, n.Expand("Kelvin Grove SC"), n.Expand("Kelvin Grove State College"))
}

func TestCandidateName(t *testing.T) {
	assert.Equal(t, "North Lakes State College", CandidateName("North Lakes State College, Australia"))
	assert.Equal(t, "Ashgrove SS", CandidateName("  Ashgrove SS  "))
	assert.Equal(t, "", CandidateName(", Brisbane"))
}

func TestNewNormalizerRejectsUnsafeRules(t *testing.T) {
	tests := []struct {
		name  string
		rules []Rule
	}{
		{"short inside long", []Rule{{Long: "state school", Short: "state"}}},
		{"multi token short", []Rule{{Long: "state school", Short: "s s"}}},
		{"empty long", []Rule{{Long: "  ", Short: "x"}}},
		{"duplicate long", []Rule{{Long: "state school", Short: "ss"}, {Long: "State  School", Short: "sts"}}},
		{"duplicate short", []Rule{{Long: "state school", Short: "ss"}, {Long: "special school", Short: "ss"}}},
		{"short collides with other long", []Rule{{Long: "state high school", Short: "shs"}, {Long: "shs campus", Short: "sc"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewNormalizer(tt.rules)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRule))
		})
	}
}

func TestRulesAppliedLongestFirst(t *testing.T) {
	n := Default()
	rules := n.Rules()
	require.NotEmpty(t, rules)
	for i := 1; i < len(rules); i++ {
		assert.GreaterOrEqual(t, len(strings.Fields(rules[i-1].Long)), len(strings.Fields(rules[i].Long)))
	}
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := "rules:\n  - long: state high school\n    short: shs\n  - long: state school\n    short: ss\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, []Rule{{Long: "state high school", Short: "shs"}, {Long: "state school", Short: "ss"}}, rules)

	n, err := NewNormalizer(rules)
	require.NoError(t, err)
	assert.Equal(t, "north lakes shs", n.Canonicalize("North Lakes State High School"))
	// Not in this table.
	assert.Equal(t, "north lakes state college", n.Canonicalize("North Lakes State College"))
}

func TestLoadRulesErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadRules(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("rules: []\n"), 0o644))
	_, err = LoadRules(empty)
	assert.True(t, errors.Is(err, ErrInvalidRule))
}

func TestFromFile(t *testing.T) {
	n, err := FromFile("")
	require.NoError(t, err)
	assert.Same(t, Default(), n)

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - long: state school\n    short: state\n"), 0o644))
	_, err = FromFile(path)
	assert.True(t, errors.Is(err, ErrInvalidRule), "a short form inside a long form is rejected")
}
