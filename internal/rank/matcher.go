package rank

import "strings"

// CatalogEntry is one product candidate for free-text matching.
type CatalogEntry struct {
	ID    uint
	Title string
}

// MatchProduct resolves a free-text product name (e.g. a CSV sales row)
// to a catalog entry. Three tiers are tried in order, each scanning the
// catalog in iteration order and returning the first hit:
//
//  1. exact title match (case-insensitive, trimmed)
//  2. substring containment either direction
//  3. token overlap of at least half the smaller token count
//
// A miss returns ok=false; callers skip the record rather than failing
// the batch.
func MatchProduct(freeText string, catalog []CatalogEntry) (uint, bool) {
	text := strings.ToLower(strings.TrimSpace(freeText))
	if text == "" {
		return 0, false
	}

	for _, entry := range catalog {
		if strings.ToLower(strings.TrimSpace(entry.Title)) == text {
			return entry.ID, true
		}
	}

	for _, entry := range catalog {
		title := strings.ToLower(strings.TrimSpace(entry.Title))
		if title == "" {
			continue
		}
		if strings.Contains(title, text) || strings.Contains(text, title) {
			return entry.ID, true
		}
	}

	textTokens := strings.Fields(text)
	for _, entry := range catalog {
		titleTokens := strings.Fields(strings.ToLower(entry.Title))
		if tokenOverlapMatch(textTokens, titleTokens) {
			return entry.ID, true
		}
	}

	return 0, false
}

// tokenOverlapMatch counts title tokens that contain, or are contained
// in, any text token. It matches when the overlap reaches half of the
// smaller token count, floor division.
func tokenOverlapMatch(textTokens, titleTokens []string) bool {
	if len(textTokens) == 0 || len(titleTokens) == 0 {
		return false
	}

	overlap := 0
	for _, tt := range titleTokens {
		for _, xt := range textTokens {
			if strings.Contains(tt, xt) || strings.Contains(xt, tt) {
				overlap++
				break
			}
		}
	}

	smaller := len(textTokens)
	if len(titleTokens) < smaller {
		smaller = len(titleTokens)
	}
	needed := smaller / 2

	return overlap > 0 && overlap >= needed
}
