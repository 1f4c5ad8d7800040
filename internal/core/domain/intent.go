package domain

import "strings"

// Intent is a listening request translated into catalog terms.
type Intent struct {
	Query       string   `json:"query"`
	Artists     []string `json:"artists"`
	Genres      []string `json:"genres"`
	Mood        string   `json:"mood,omitempty"`
	Explanation string   `json:"explanation"`
}

// SearchQuery renders the intent as a catalog search string. Explicit query
// text wins; otherwise genres and mood words are combined.
func (i Intent) SearchQuery() string {
	if q := strings.TrimSpace(i.Query); q != "" {
		return q
	}
	parts := make([]string, 0, len(i.Genres)+1)
	for _, g := range i.Genres {
		if g = strings.TrimSpace(g); g != "" {
			parts = append(parts, "genre:"+quoteTerm(g))
		}
	}
	if m := strings.TrimSpace(i.Mood); m != "" {
		parts = append(parts, m)
	}
	return strings.Join(parts, " ")
}

// SeedArtist returns the first named artist, if any.
func (i Intent) SeedArtist() string {
	for _, a := range i.Artists {
		if a = strings.TrimSpace(a); a != "" {
			return a
		}
	}
	return ""
}

func quoteTerm(s string) string {
	if strings.ContainsRune(s, ' ') {
		return `"` + s + `"`
	}
	return s
}
