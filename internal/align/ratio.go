package align

// PartialRatio scores how well the shorter of a and b occurs inside the
// longer one, from 0 to 100. It is the best normalized Indel similarity
// between the shorter string and any window of the longer string, where
// windows are the full-length slices plus the prefixes and suffixes that
// overhang either end. Comparison is case-sensitive and rune-based.
func PartialRatio(a, b string) float64 {
	s1, s2 := []rune(a), []rune(b)
	if len(s1) == 0 && len(s2) == 0 {
		return 100
	}
	if len(s1) == 0 || len(s2) == 0 {
		return 0
	}

	if len(s1) > len(s2) {
		s1, s2 = s2, s1
	}
	best := partialWindows(s1, s2)
	if best < 1 && len(s1) == len(s2) {
		if alt := partialWindows(s2, s1); alt > best {
			best = alt
		}
	}
	return best * 100
}

// partialWindows returns the best similarity in [0, 1] of needle against
// the windows of hay; len(needle) <= len(hay)
func partialWindows(needle, hay []rune) float64 {
	n, h := len(needle), len(hay)
	inNeedle := make(map[rune]bool, n)
	for _, r := range needle {
		inNeedle[r] = true
	}

	best := 0.0
	try := func(window []rune) bool {
		if s := indelSimilarity(needle, window); s > best {
			best = s
		}
		return best == 1
	}

	// Prefixes shorter than the needle
	for i := 1; i < n; i++ {
		if !inNeedle[hay[i-1]] {
			continue
		}
		if try(hay[:i]) {
			return 1
		}
	}
	// Full windows
	for i := 0; i < h-n; i++ {
		if !inNeedle[hay[i+n-1]] {
			continue
		}
		if try(hay[i : i+n]) {
			return 1
		}
	}
	// Last full window and shorter suffixes
	for i := h - n; i < h; i++ {
		if !inNeedle[hay[i]] {
			continue
		}
		if try(hay[i:]) {
			return 1
		}
	}
	return best
}

// indelSimilarity is 1 - indel(a, b) / (len(a) + len(b)), where the Indel
// distance counts insertions and deletions only
func indelSimilarity(a, b []rune) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 1
	}
	lcs := lcsLength(a, b)
	dist := total - 2*lcs
	return 1 - float64(dist)/float64(total)
}

func lcsLength(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
