package matching

import (
	"math"
	"strings"

	"estate-access-backend/internal/models"
)

const (
	// AcceptScore is the minimum similarity for an import row to be tied to a tenant.
	AcceptScore = 85.0
	// ambiguityMargin: a runner-up this close to the best makes the match ambiguous.
	ambiguityMargin = 5.0
)

type Match struct {
	Tenant    *models.Tenant
	Score     float64
	Ambiguous bool
}

// Accepted reports whether the match is strong and unique enough to act on.
func (m Match) Accepted() bool {
	return m.Tenant != nil && !m.Ambiguous && m.Score >= AcceptScore
}

// BestTenantMatch scores every tenant's full name against the label.
func BestTenantMatch(label string, tenants []models.Tenant) Match {
	var best Match
	runnerUp := -1.0

	for i := range tenants {
		score := NameSimilarity(label, tenants[i].FullName())
		switch {
		case best.Tenant == nil || score > best.Score:
			if best.Tenant != nil {
				runnerUp = best.Score
			}
			best = Match{Tenant: &tenants[i], Score: score}
		case score > runnerUp:
			runnerUp = score
		}
	}

	if best.Tenant != nil && runnerUp >= 0 && best.Score-runnerUp < ambiguityMargin {
		best.Ambiguous = true
	}
	return best
}

// NameSimilarity returns 0-100: for each token of want, the best Levenshtein
// similarity against any token of got, averaged.
func NameSimilarity(got, want string) float64 {
	gTokens := strings.Fields(normalizeName(got))
	wTokens := strings.Fields(normalizeName(want))

	if len(wTokens) == 0 {
		return 0
	}

	totalScore := 0.0

	for _, wTok := range wTokens {
		best := 0.0
		for _, gTok := range gTokens {
			dist := levenshtein(wTok, gTok)
			maxLen := math.Max(float64(len([]rune(wTok))), float64(len([]rune(gTok))))
			sim := 1 - float64(dist)/maxLen
			if sim > best {
				best = sim
			}
		}
		totalScore += best
	}

	return (totalScore / float64(len(wTokens))) * 100
}

func normalizeName(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", " ")
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.TrimSpace(s)
	return s
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if a == b {
		return 0
	}
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
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
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
