// Package normalize holds the pure text, money, and date canonicalization
// functions used to keep the knowledge graph compact.
//
// Filtering functions return an ok flag instead of an error: a value that
// fails to normalize is absent, never fatal, so one noisy mention can't take
// down a batch.
package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/kslau/tendergraph/schema"
)

// MinTokenLength is the default minimum length for a normalized token.
const MinTokenLength = 3

// stopwords filters junk single-word tokens out of normalized entity lists.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "he": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"that": true, "the": true, "to": true, "was": true, "will": true,
	"with": true, "this": true, "but": true, "they": true, "have": true,
	"had": true, "what": true, "when": true, "where": true, "who": true,
	"which": true, "why": true, "how": true,
}

// Text canonicalizes a free-text span: lowercase, strip everything except
// lowercase letters, digits, space, hyphen, underscore, and slash (keeps
// compound terms like "e-system" and "audio/video"), then collapse whitespace.
// Results shorter than minLength, or single-word stopwords, are rejected.
func Text(text string, minLength int) (string, bool) {
	if text == "" {
		return "", false
	}

	lowered := strings.ToLower(strings.TrimSpace(text))

	var b strings.Builder
	b.Grow(len(lowered))
	for _, c := range lowered {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == ' ', c == '-', c == '_', c == '/':
			b.WriteRune(c)
		}
	}

	normalized := strings.Join(strings.Fields(b.String()), " ")

	if len(normalized) < minLength {
		return "", false
	}
	if !strings.Contains(normalized, " ") && stopwords[normalized] {
		return "", false
	}
	return normalized, true
}

// Keyword normalizes a keyword mention.
func Keyword(keyword string) (string, bool) {
	return Text(keyword, MinTokenLength)
}

// Requirement normalizes a requirement mention.
func Requirement(requirement string) (string, bool) {
	return Text(requirement, MinTokenLength)
}

// moneyCleaner strips currency symbols, thousands separators, and whitespace.
var moneyCleaner = strings.NewReplacer("$", "", ",", "", " ", "")

// Money parses a money string into a float. Unparseable input is absent, not
// an error; callers keep the raw field untouched for audit.
func Money(value string) (float64, bool) {
	cleaned := moneyCleaner.Replace(strings.TrimSpace(value))
	if cleaned == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

var (
	isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dmyDateRe = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
)

// Date reformats D/M/YYYY or DD/MM/YYYY strings (day before month) to ISO
// YYYY-MM-DD. ISO input passes through unchanged. Range checking is coarse —
// day 1-31, month 1-12, no calendar validity — and anything unrecognized is
// returned unchanged, so callers must not assume the result is ISO.
func Date(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}

	if isoDateRe.MatchString(value) {
		return value, true
	}

	if m := dmyDateRe.FindStringSubmatch(value); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if day >= 1 && day <= 31 && month >= 1 && month <= 12 {
			return m[3] + "-" + pad2(month) + "-" + pad2(day), true
		}
	}

	// Best effort only: leave unrecognized formats as they came.
	return value, true
}

// EntityList applies fn to each mention, drops absents, and deduplicates
// preserving first-seen order when dedupe is set.
func EntityList(entities []string, fn func(string) (string, bool), dedupe bool) []string {
	normalized := make([]string, 0, len(entities))
	for _, e := range entities {
		if n, ok := fn(e); ok {
			normalized = append(normalized, n)
		}
	}

	if !dedupe {
		return normalized
	}

	seen := make(map[string]bool, len(normalized))
	deduped := normalized[:0]
	for _, item := range normalized {
		if !seen[item] {
			seen[item] = true
			deduped = append(deduped, item)
		}
	}
	return deduped
}

// Cap truncates a list to its first maxCount items. A non-positive maxCount
// disables capping.
func Cap(entities []string, maxCount int) []string {
	if maxCount <= 0 || len(entities) <= maxCount {
		return entities
	}
	return entities[:maxCount]
}

// Entities runs the Keyword and Requirement lists in the entity map through
// normalize -> dedupe -> cap, in place, when those types are present. Other
// entity types are never touched: they must match structured source values
// exactly for traceability.
func Entities(entities map[schema.EntityType][]string, maxKeywords, maxRequirements int) {
	if kws, ok := entities[schema.EntityKeyword]; ok {
		entities[schema.EntityKeyword] = Cap(EntityList(kws, Keyword, true), maxKeywords)
	}
	if reqs, ok := entities[schema.EntityRequirement]; ok {
		entities[schema.EntityRequirement] = Cap(EntityList(reqs, Requirement, true), maxRequirements)
	}
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
