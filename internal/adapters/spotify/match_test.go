package spotify

import "testing"

func TestBestArtistMatch(t *testing.T) {
	tests := []struct {
		name       string
		requested  string
		candidates []spotifyArtist
		wantID     string
		wantOK     bool
	}{
		{
			name:      "exact match beats first hit",
			requested: "Bon Iver",
			candidates: []spotifyArtist{
				{ID: "1", Name: "Bon Iver & Friends"},
				{ID: "2", Name: "Bon Iver"},
			},
			wantID: "2",
			wantOK: true,
		},
		{
			name:      "case and punctuation are ignored",
			requested: "sigur ros",
			candidates: []spotifyArtist{
				{ID: "3", Name: "Sigur Rós"},
			},
			wantID: "3",
			wantOK: true,
		},
		{
			name:      "unrelated hits are rejected",
			requested: "Bon Iver",
			candidates: []spotifyArtist{
				{ID: "4", Name: "Metallica"},
			},
			wantOK: false,
		},
		{
			name:      "empty request",
			requested: "  ",
			candidates: []spotifyArtist{
				{ID: "5", Name: "Anyone"},
			},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := bestArtistMatch(tt.requested, tt.candidates)
			if ok != tt.wantOK {
				t.Fatalf("ok: got %v, want %v", ok, tt.wantOK)
			}
			if ok && got.ID != tt.wantID {
				t.Fatalf("id: got %s, want %s", got.ID, tt.wantID)
			}
		})
	}
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"kitten", "sitting", 3},
		{"", "abc", 3},
		{"same", "same", 0},
		{"rós", "ros", 1},
	}
	for _, tt := range tests {
		if got := levenshteinDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshteinDistance(%q, %q): got %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
