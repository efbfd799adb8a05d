// Package namematch scores how closely two person names agree, ignoring
// case, accents, punctuation and token order.
package namematch

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SubsetFloor is the minimum score when every token of the shorter name
// (at least two tokens) appears in the longer one.
const SubsetFloor = 90.0

// Tokens folds s to unaccented upper-case letter tokens.
func Tokens(s string) []string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	for _, r := range strings.ToUpper(folded) {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

// Score returns a similarity in [0, 100]. Either name empty scores 0.
func Score(a, b string) float64 {
	ta, tb := Tokens(a), Tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	sa, sb := sortedJoin(ta), sortedJoin(tb)
	score := similarity(sa, sb)

	short, long := ta, tb
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) >= 2 && allIn(short, long) && score < SubsetFloor {
		score = SubsetFloor
	}
	return score
}

func sortedJoin(tokens []string) string {
	cp := append([]string(nil), tokens...)
	sort.Strings(cp)
	return strings.Join(cp, " ")
}

func allIn(needles, haystack []string) bool {
	set := make(map[string]bool, len(haystack))
	for _, t := range haystack {
		set[t] = true
	}
	for _, t := range needles {
		if !set[t] {
			return false
		}
	}
	return true
}

func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 100
	}
	return (1 - float64(levenshtein(ra, rb))/float64(longest)) * 100
}

func levenshtein(a, b []rune) int {
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
