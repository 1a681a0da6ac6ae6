package identifier

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultCodeLabel is the first-cell label of the description table row that
// carries the school's centre code.
const DefaultCodeLabel = "Centre_code"

var (
	// ErrParse means a description blob carries no recognizable code.
	ErrParse = errors.New("no code in description")
	// ErrInvalidCode means a code string is not a non-negative integer.
	ErrInvalidCode = errors.New("invalid numeric code")
)

// Code is a numeric school code serialized without leading zeros, so that
// registry and boundary codes compare directly.
type Code string

// ParseError is returned by Extract when the code pattern is absent.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", ErrParse.Error(), e.Reason)
}

func (e *ParseError) Unwrap() error {
	return ErrParse
}

// CanonicalizeStateCode parses raw as a decimal integer of any length and
// re-serializes it without leading zeros. "000002324" becomes "2324".
func CanonicalizeStateCode(raw string) (Code, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidCode)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: %q", ErrInvalidCode, raw)
		}
	}
	s = strings.TrimLeft(s, "0")
	if s == "" {
		s = "0"
	}
	return Code(s), nil
}

var reDigits = regexp.MustCompile(`\d+`)

// Extractor pulls the code out of boundary description blobs.
type Extractor struct {
	label   string
	reLabel *regexp.Regexp
}

// NewExtractor builds an extractor for the given row label. An empty label
// falls back to DefaultCodeLabel.
func NewExtractor(label string) *Extractor {
	label = strings.TrimSpace(label)
	if label == "" {
		label = DefaultCodeLabel
	}
	// Label, then any run of tags, whitespace or punctuation, then the digits.
	re := regexp.MustCompile(`(?is)` + regexp.QuoteMeta(label) + `(?:\s|<[^>]*>|[:=|.,;\-])*(\d+)`)
	return &Extractor{label: label, reLabel: re}
}

// Label returns the row label this extractor looks for.
func (e *Extractor) Label() string {
	return e.label
}

// Extract returns the code embedded in blob. Table rows whose first cell is
// the label are authoritative; the raw text is scanned only when no such row
// exists, for blobs that are not well-formed HTML.
func (e *Extractor) Extract(blob string) (Code, error) {
	if strings.TrimSpace(blob) == "" {
		return "", &ParseError{Reason: "empty description"}
	}

	if code, labelled := e.fromTable(blob); labelled {
		if code == "" {
			return "", &ParseError{Reason: "empty code cell"}
		}
		return code, nil
	}

	text := html.UnescapeString(blob)
	if m := e.reLabel.FindStringSubmatch(text); m != nil {
		return CanonicalizeStateCode(m[1])
	}
	return "", &ParseError{Reason: fmt.Sprintf("label %q not found", e.label)}
}

// fromTable returns the code of the first labelled row that carries digits.
// labelled reports whether any row carried the label at all.
func (e *Extractor) fromTable(blob string) (code Code, labelled bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(blob))
	if err != nil {
		return "", false
	}

	doc.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.Find("td, th")
		if cells.Length() == 0 || !strings.EqualFold(strings.TrimSpace(cells.Eq(0).Text()), e.label) {
			return true
		}
		labelled = true

		digits := reDigits.FindString(cells.Eq(1).Text())
		if digits == "" {
			return true
		}
		c, err := CanonicalizeStateCode(digits)
		if err != nil {
			return true
		}
		code = c
		return false
	})
	return code, labelled
}

var defaultExtractor = NewExtractor(DefaultCodeLabel)

// ExtractCode extracts a code using DefaultCodeLabel.
func ExtractCode(blob string) (Code, error) {
	return defaultExtractor.Extract(blob)
}
