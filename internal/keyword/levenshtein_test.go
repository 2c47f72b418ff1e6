package keyword

import "testing"

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "page", 4},
		{"plankton", "plankton", 0},
		// typical recognition slips
		{"revenue", "revenve", 1},
		{"kestrel", "kestral", 1},
		{"invoice", "lnvoice", 1},
		{"modern", "rnodern", 2},
		{"clay", "cIay", 1},
		{"capital", "capitol", 1},
		{"hedgerow", "hedge", 3},
		{"figure", "fig.", 3},
		// runes, not bytes
		{"café", "cafe", 1},
		{"zürich", "zurich", 1},
		{"ab", "ba", 2},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			if got := LevenshteinDistance(tt.a, tt.b); got != tt.want {
				t.Errorf("LevenshteinDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
			if rev := LevenshteinDistance(tt.b, tt.a); rev != tt.want {
				t.Errorf("LevenshteinDistance(%q, %q) = %d, want %d", tt.b, tt.a, rev, tt.want)
			}
		})
	}
}

func TestWithinDistance(t *testing.T) {
	tests := []struct {
		a, b string
		max  int
		want bool
	}{
		{"upwelling", "upwelling", 0, true},
		{"upwelling", "upweIling", 1, true},
		{"upwelling", "upwellings", 1, true},
		{"upwelling", "upwellng5", 1, false},
		{"a", "abcd", 1, false},
		{"", "", 1, true},
	}
	for _, tt := range tests {
		if got := WithinDistance(tt.a, tt.b, tt.max); got != tt.want {
			t.Errorf("WithinDistance(%q, %q, %d) = %v, want %v", tt.a, tt.b, tt.max, got, tt.want)
		}
	}
}

func TestTerms(t *testing.T) {
	got := Terms("Figure 3: Revenue by region\n(revenue) Q3-2024")
	want := []string{"figure", "3", "revenue", "by", "region", "q3", "2024"}
	if len(got) != len(want) {
		t.Fatalf("Terms = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Terms[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMatchesAny(t *testing.T) {
	terms := []string{"quarterly", "revenue"}
	if !MatchesAny("Revenve", terms, 1) {
		t.Error("one substitution should match")
	}
	if MatchesAny("profit", terms, 1) {
		t.Error("unrelated word should not match")
	}
	if MatchesAny("revenue", nil, 1) {
		t.Error("no terms should never match")
	}
}

func TestTitleTerms(t *testing.T) {
	if got := titleTerms("/docs/Q3_sales-report.v2.pdf"); got != "Q3 sales report v2" {
		t.Errorf("titleTerms = %q", got)
	}
}

func BenchmarkLevenshteinDistance_line(b *testing.B) {
	for i := 0; i < b.N; i++ {
		LevenshteinDistance("quarterly revenue grew in the northern region", "quartorly revenve grew in the nothern region")
	}
}
