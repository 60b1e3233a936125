package textutil

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// SameName compares two display names ignoring case and whitespace.
func SameName(a, b string) bool {
	return NormalizeName(a) == NormalizeName(b)
}

// below this similarity a suggestion is considered noise
const minSuggestionSimilarity = 0.7

// Suggest returns the candidate most similar to name, or "" when nothing is
// close enough to be worth mentioning.
func Suggest(name string, candidates []string) string {
	target := NormalizeName(name)
	if target == "" {
		return ""
	}

	var best string
	var bestScore float64
	for _, c := range candidates {
		score := matchr.JaroWinkler(target, NormalizeName(c), false)
		if score > bestScore {
			best = c
			bestScore = score
		}
	}
	if bestScore < minSuggestionSimilarity {
		return ""
	}
	return best
}
