package spotify

// minArtistSimilarity rejects artist search hits that are clearly a
// different act.
const minArtistSimilarity = 0.55

// bestArtistMatch picks the search hit whose normalized name is closest to
// the requested one. Ties keep the API's ordering.
func bestArtistMatch(requested string, candidates []spotifyArtist) (spotifyArtist, bool) {
	want := normalizeArtistName(requested)
	if want == "" {
		return spotifyArtist{}, false
	}

	var (
		best      spotifyArtist
		bestScore = -1.0
	)
	for _, a := range candidates {
		if a.ID == "" {
			continue
		}
		score := similarity(want, normalizeArtistName(a.Name))
		if score > bestScore {
			best, bestScore = a, score
		}
	}
	if bestScore < minArtistSimilarity {
		return spotifyArtist{}, false
	}
	return best, true
}

func similarity(a string, b string) float64 {
	if a == b {
		return 1.0
	}
	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 1.0
	}

	distance := levenshteinDistance(a, b)
	return 1.0 - float64(distance)/float64(maxLen)
}

func levenshteinDistance(a string, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 0
			if ra[i-1] != rb[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,
				curr[j-1]+1,
				prev[j-1]+cost,
			)
		}
		copy(prev, curr)
	}

	return prev[len(rb)]
}
