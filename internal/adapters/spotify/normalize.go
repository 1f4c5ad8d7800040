package spotify

import (
	"strings"
	"unicode"
)

// artistNoise are words that decorate artist names on search hits
// ("Bon Iver - Topic", "Artist ft. Guest") without identifying the act.
var artistNoise = map[string]struct{}{
	"feat":      {},
	"featuring": {},
	"ft":        {},
	"official":  {},
	"topic":     {},
	"vevo":      {},
}

// searchFields are the filter prefixes the search endpoint understands.
var searchFields = map[string]struct{}{
	"album":  {},
	"artist": {},
	"genre":  {},
	"isrc":   {},
	"tag":    {},
	"track":  {},
	"year":   {},
}

// normalizeArtistName folds an artist name for fuzzy comparison: lower case,
// no bracketed suffixes, "&" read as "and", a leading "the" dropped.
func normalizeArtistName(input string) string {
	if input == "" {
		return ""
	}

	lower := strings.ToLower(strings.ReplaceAll(input, "&", " and "))
	tokens := strings.Fields(cleanSeparators(stripBracketedSegments(lower)))
	if len(tokens) > 1 && tokens[0] == "the" {
		tokens = tokens[1:]
	}

	cleaned := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, drop := artistNoise[token]; drop {
			continue
		}
		cleaned = append(cleaned, token)
	}

	return strings.Join(cleaned, " ")
}

// cleanSearchQuery tidies a search string before it goes on the wire.
// Known field filters (genre:"indie folk", year:2010-2019) survive with a
// lower-cased field name, free words lose stray punctuation and an unpaired
// double quote is dropped.
func cleanSearchQuery(q string) string {
	terms := splitSearchTerms(q)
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		if t := cleanSearchTerm(term); t != "" {
			out = append(out, t)
		}
	}
	return strings.Join(out, " ")
}

// splitSearchTerms splits on whitespace outside double quotes.
func splitSearchTerms(q string) []string {
	if strings.Count(q, `"`)%2 == 1 {
		i := strings.LastIndex(q, `"`)
		q = q[:i] + q[i+1:]
	}

	var (
		terms  []string
		cur    strings.Builder
		quoted bool
	)
	for _, r := range q {
		switch {
		case r == '"':
			quoted = !quoted
			cur.WriteRune(r)
		case unicode.IsSpace(r) && !quoted:
			if cur.Len() > 0 {
				terms = append(terms, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		terms = append(terms, cur.String())
	}
	return terms
}

func cleanSearchTerm(term string) string {
	if field, value, ok := strings.Cut(term, ":"); ok {
		field = strings.ToLower(field)
		if _, known := searchFields[field]; known {
			value = cleanWords(value)
			if value == "" {
				return ""
			}
			return field + ":" + quoteIfPhrase(value)
		}
	}
	words := cleanWords(term)
	if strings.HasPrefix(term, `"`) {
		return quoteIfPhrase(words)
	}
	return words
}

// cleanWords keeps letters, digits, inner hyphens and apostrophes.
func cleanWords(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '\''
	})
	out := words[:0]
	for _, w := range words {
		if w = strings.Trim(w, "-'"); w != "" {
			out = append(out, w)
		}
	}
	return strings.Join(out, " ")
}

func quoteIfPhrase(s string) string {
	if strings.ContainsRune(s, ' ') {
		return `"` + s + `"`
	}
	return s
}

func stripBracketedSegments(input string) string {
	var out strings.Builder
	depth := 0
	for _, r := range input {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 {
				out.WriteRune(r)
			}
		}
	}

	return out.String()
}

func cleanSeparators(input string) string {
	var out strings.Builder
	lastSpace := false
	for _, r := range input {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			out.WriteRune(' ')
			lastSpace = true
		}
	}

	return out.String()
}
