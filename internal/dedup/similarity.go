package dedup

import (
	"go-portal-harvester/internal/textnorm"
)

// maxCompareRunes caps edit distance work on long descriptions.
const maxCompareRunes = 2000

// Similarity is (maxLen - editDistance) / maxLen over the folded, capped
// strings. Two empty strings are identical.
func Similarity(a, b string) float64 {
	ra := []rune(textnorm.Truncate(textnorm.Fold(a), maxCompareRunes))
	rb := []rune(textnorm.Truncate(textnorm.Fold(b), maxCompareRunes))
	maxLen := max(len(ra), len(rb))
	if maxLen == 0 {
		return 1
	}
	return float64(maxLen-levenshtein(ra, rb)) / float64(maxLen)
}

// EditDistance is the Levenshtein distance between a and b in runes.
func EditDistance(a, b string) int {
	return levenshtein([]rune(a), []rune(b))
}

func levenshtein(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// trigramOverlap is the Dice coefficient of the character trigram sets.
func trigramOverlap(a, b string) float64 {
	ta, tb := trigrams(a), trigrams(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for g := range ta {
		if _, ok := tb[g]; ok {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(ta)+len(tb))
}

func trigrams(s string) map[string]struct{} {
	r := []rune(textnorm.Truncate(textnorm.Fold(s), maxCompareRunes))
	out := make(map[string]struct{}, len(r))
	for i := 0; i+3 <= len(r); i++ {
		out[string(r[i:i+3])] = struct{}{}
	}
	return out
}
