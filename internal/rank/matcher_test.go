package rank

import "testing"

func TestMatchProduct(t *testing.T) {
	catalog := []CatalogEntry{
		{ID: 1, Title: "Algebra Task Cards for Grade 6"},
		{ID: 2, Title: "Fraction Worksheets Bundle"},
		{ID: 3, Title: "Reading Comprehension Passages"},
	}

	tests := []struct {
		name     string
		freeText string
		wantID   uint
		wantOK   bool
	}{
		{
			name:     "exact match case insensitive",
			freeText: "  fraction worksheets bundle ",
			wantID:   2,
			wantOK:   true,
		},
		{
			name:     "substring of catalog title",
			freeText: "Reading Comprehension",
			wantID:   3,
			wantOK:   true,
		},
		{
			name:     "catalog title inside free text",
			freeText: "SOLD: Fraction Worksheets Bundle (digital)",
			wantID:   2,
			wantOK:   true,
		},
		{
			name:     "token overlap",
			freeText: "Algebra Cards",
			wantID:   1,
			wantOK:   true,
		},
		{
			name:     "unrelated phrase",
			freeText: "Volcano Science Kit",
			wantOK:   false,
		},
		{
			name:     "empty text",
			freeText: "   ",
			wantOK:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := MatchProduct(tt.freeText, catalog)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && id != tt.wantID {
				t.Fatalf("id = %d, want %d", id, tt.wantID)
			}
		})
	}
}

func TestMatchProduct_FirstEntryWins(t *testing.T) {
	catalog := []CatalogEntry{
		{ID: 10, Title: "Math Centers"},
		{ID: 20, Title: "Math Centers"},
	}
	id, ok := MatchProduct("Math Centers", catalog)
	if !ok || id != 10 {
		t.Fatalf("got id=%d ok=%v, want first entry 10", id, ok)
	}
}

func TestMatchProduct_ExactBeatsLaterSubstring(t *testing.T) {
	// An exact match anywhere in the catalog outranks an earlier
	// substring-only match.
	catalog := []CatalogEntry{
		{ID: 1, Title: "Spelling Practice Mega Bundle"},
		{ID: 2, Title: "Spelling Practice"},
	}
	id, ok := MatchProduct("Spelling Practice", catalog)
	if !ok || id != 2 {
		t.Fatalf("got id=%d ok=%v, want exact match 2", id, ok)
	}
}
