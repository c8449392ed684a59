package validate

import (
	"sort"
	"strings"
)

// maxSuggestions caps how many alternatives an issue carries.
const maxSuggestions = 3

// suggest returns up to maxSuggestions candidates that are close to
// name, ranked by edit distance. A candidate that extends the name (or
// vice versa) counts as distance 1 so that truncated field names like
// "bytes" still suggest "bytes_sent".
func suggest(name string, candidates []string) []string {
	type scored struct {
		name     string
		distance int
	}

	var ranked []scored
	lowerName := strings.ToLower(name)
	for _, candidate := range candidates {
		if candidate == name {
			continue
		}
		lowerCandidate := strings.ToLower(candidate)

		distance := levenshteinDistance(lowerName, lowerCandidate)
		if strings.HasPrefix(lowerCandidate, lowerName) || strings.HasPrefix(lowerName, lowerCandidate) {
			distance = 1
		}
		if distance > 3 {
			continue
		}
		ranked = append(ranked, scored{name: candidate, distance: distance})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].distance != ranked[j].distance {
			return ranked[i].distance < ranked[j].distance
		}
		return ranked[i].name < ranked[j].name
	})

	suggestions := make([]string, 0, maxSuggestions)
	for _, s := range ranked {
		suggestions = append(suggestions, s.name)
		if len(suggestions) == maxSuggestions {
			break
		}
	}
	return suggestions
}

// levenshteinDistance calculates the edit distance between two strings.
func levenshteinDistance(s1, s2 string) int {
	len1 := len(s1)
	len2 := len(s2)

	dp := make([][]int, len1+1)
	for i := range dp {
		dp[i] = make([]int, len2+1)
	}

	for i := 0; i <= len1; i++ {
		dp[i][0] = i
	}
	for j := 0; j <= len2; j++ {
		dp[0][j] = j
	}

	for i := 1; i <= len1; i++ {
		for j := 1; j <= len2; j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			dp[i][j] = minOf(
				dp[i-1][j]+1,      // deletion
				dp[i][j-1]+1,      // insertion
				dp[i-1][j-1]+cost, // substitution
			)
		}
	}

	return dp[len1][len2]
}

func minOf(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
