package resolver

import (
	"strings"

	"github.com/yourusername/trackfetch-go/internal/domain"
)

// RejectReason names the gate check a candidate failed
type RejectReason string

const (
	ReasonNone      RejectReason = ""
	ReasonBlocked   RejectReason = "blocked_peer"
	ReasonIntegrity RejectReason = "integrity"
	ReasonDuration  RejectReason = "duration_mismatch"
	ReasonTitle     RejectReason = "title_mismatch"
)

// Gate admits or rejects candidates before ranking. It has no notion of
// better or worse, only of unsafe or non-matching.
type Gate struct {
	bans domain.BanList
}

// NewGate creates a gate backed by a block list. A nil list blocks nobody.
func NewGate(bans domain.BanList) *Gate {
	return &Gate{bans: bans}
}

// Check runs the gate checks in order and stops at the first failure
func (g *Gate) Check(c domain.Candidate, query domain.TrackQuery, policy domain.SearchPolicy) (RejectReason, bool) {
	if g.bans != nil && g.bans.IsBlocked(c.PeerID) {
		return ReasonBlocked, false
	}

	if policy.EnforceFileIntegrity {
		if strings.TrimSpace(c.Filename) == "" || c.SizeBytes <= 0 {
			return ReasonIntegrity, false
		}
	}

	if policy.EnforceDurationMatch && DurationMismatch(c, query, policy) {
		return ReasonDuration, false
	}

	if policy.EnforceStrictTitleMatch && !TokensMatch(c, query, policy.FuzzyNormalization) {
		return ReasonTitle, false
	}

	return ReasonNone, true
}

// IsSafe reports whether the candidate passes every active check
func (g *Gate) IsSafe(c domain.Candidate, query domain.TrackQuery, policy domain.SearchPolicy) bool {
	_, ok := g.Check(c, query, policy)
	return ok
}

// DurationMismatch reports whether both durations are known and differ by
// more than the tolerance. Unknown durations never mismatch.
func DurationMismatch(c domain.Candidate, query domain.TrackQuery, policy domain.SearchPolicy) bool {
	if query.DurationSeconds <= 0 || c.DurationSeconds <= 0 {
		return false
	}
	gap := c.DurationSeconds - query.DurationSeconds
	if gap < 0 {
		gap = -gap
	}
	return gap > policy.DurationToleranceSecs
}

// TokensMatch reports whether every query token occurs in the candidate's
// filename or parsed artist/title.
func TokensMatch(c domain.Candidate, query domain.TrackQuery, fuzzy bool) bool {
	haystack := Normalize(c.Filename+" "+c.Artist+" "+c.Title, fuzzy)
	for _, token := range Tokens(query.Text(), fuzzy) {
		if !strings.Contains(haystack, token) {
			return false
		}
	}
	return true
}
