// Package metrics scores recognition output against reference transcripts.
package metrics

import "strings"

// LevenshteinDistance calculates the edit distance between two rune slices.
func LevenshteinDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
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
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// CharacterErrorRate is the character-level edit distance divided by the
// reference length. An empty reference with non-empty output reads as 1.
func CharacterErrorRate(reference, hypothesis string) float64 {
	ref := []rune(normalize(reference))
	hyp := []rune(normalize(hypothesis))
	if len(ref) == 0 {
		if len(hyp) == 0 {
			return 0
		}
		return 1
	}
	rate := float64(LevenshteinDistance(ref, hyp)) / float64(len(ref))
	if rate > 1 {
		return 1
	}
	return rate
}

// WordErrorRate is the word-level edit distance divided by the reference
// word count.
func WordErrorRate(reference, hypothesis string) float64 {
	ref := strings.Fields(normalize(reference))
	hyp := strings.Fields(normalize(hypothesis))
	if len(ref) == 0 {
		if len(hyp) == 0 {
			return 0
		}
		return 1
	}
	rate := float64(wordDistance(ref, hyp)) / float64(len(ref))
	if rate > 1 {
		return 1
	}
	return rate
}

func wordDistance(a, b []string) int {
	if len(a) == 0 {
		return len(b)
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
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// normalize lowercases and collapses whitespace so layout differences do not
// count as recognition errors.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
