package resolver

import (
	"math"
	"sort"
	"strings"

	"github.com/yourusername/trackfetch-go/internal/domain"
)

const (
	// Peers without a free slot and a queue this deep rarely deliver in time
	deepQueueDepth = 500

	bpmMatchWindow = 3.0
)

// Ranked is a candidate annotated with its resolver verdict
type Ranked struct {
	domain.Candidate
	Score int                `json:"score"`
	Tier  domain.QualityTier `json:"tier"`
	Fake  bool               `json:"fake"`
}

// Resolver orders gate-passed candidates for one query under one policy.
// It holds no state besides its inputs and is safe for concurrent use.
type Resolver struct {
	policy domain.SearchPolicy
	query  domain.TrackQuery
}

// New creates a resolver for a query
func New(policy domain.SearchPolicy, query domain.TrackQuery) *Resolver {
	return &Resolver{policy: policy, query: query}
}

// TierOf assigns the ranking tier of a candidate
func (r *Resolver) TierOf(c domain.Candidate) domain.QualityTier {
	if IsFake(c) {
		return domain.TierRejected
	}
	if !c.FreeSlot && c.QueueDepth > deepQueueDepth {
		return domain.TierMarginal
	}
	if r.policy.EnforceDurationMatch && DurationMismatch(c, r.query, r.policy) {
		return domain.TierMarginal
	}

	lossless := domain.IsLosslessFormat(candidateFormat(c))
	f := tierFacts{
		lossless: lossless,
		is320:    c.BitrateKbps == 320,
		highRes:  c.BitrateKbps >= 320 || lossless,
		hasBpm:   c.BPM > 0,
		hasKey:   c.Key != "",
		freeSlot: c.FreeSlot,
	}
	f.midRes = c.BitrateKbps >= 192 || f.highRes
	f.bpmMatches = r.query.BPM <= 0 || math.Abs(r.query.BPM-c.BPM) < bpmMatchWindow

	switch r.policy.Priority {
	case domain.PriorityDjReady:
		return djReadyTier(f)
	case domain.PriorityQualityFirst:
		return qualityFirstTier(f)
	default:
		// Validate rejects unknown modes; rank them like the default mode.
		return qualityFirstTier(f)
	}
}

type tierFacts struct {
	lossless   bool
	is320      bool
	highRes    bool
	midRes     bool
	hasBpm     bool
	hasKey     bool
	bpmMatches bool
	freeSlot   bool
}

func djReadyTier(f tierFacts) domain.QualityTier {
	switch {
	case f.hasBpm && f.bpmMatches && f.highRes && f.freeSlot:
		return domain.TierExcellent
	case (f.hasBpm || f.hasKey) && f.bpmMatches && f.midRes:
		return domain.TierGreat
	case f.midRes:
		return domain.TierGood
	default:
		return domain.TierMarginal
	}
}

func qualityFirstTier(f tierFacts) domain.QualityTier {
	switch {
	case (f.lossless || f.is320) && f.freeSlot:
		return domain.TierExcellent
	case f.highRes:
		return domain.TierGreat
	case f.midRes:
		return domain.TierGood
	default:
		return domain.TierMarginal
	}
}

// Compare returns a negative number when a ranks before b, a positive
// number when b ranks before a and zero when they are interchangeable.
func (r *Resolver) Compare(a, b domain.Candidate) int {
	return r.compare(a, r.TierOf(a), b, r.TierOf(b))
}

func (r *Resolver) compare(a domain.Candidate, ta domain.QualityTier, b domain.Candidate, tb domain.QualityTier) int {
	if ta != tb {
		if ta.Better(tb) {
			return -1
		}
		return 1
	}
	return r.compareWithinTier(a, b)
}

// compareWithinTier breaks ties between candidates of the same tier. Bitrate
// and queue depth are compared by bucket (value / gap), which keeps the order
// transitive. Values in the same bucket tie; values in adjacent buckets are
// ordered even when they differ by less than the gap, e.g. 127 and 128 kbps
// with a gap of 64.
func (r *Resolver) compareWithinTier(a, b domain.Candidate) int {
	if a.FreeSlot != b.FreeSlot {
		if a.FreeSlot {
			return -1
		}
		return 1
	}

	bitrate := -compareInt(bucket(a.BitrateKbps, r.policy.SignificantBitrateGap), bucket(b.BitrateKbps, r.policy.SignificantBitrateGap))
	queue := compareInt(bucket(a.QueueDepth, r.policy.SignificantQueueGap), bucket(b.QueueDepth, r.policy.SignificantQueueGap))
	if r.policy.PreferSpeedOverQuality {
		bitrate, queue = queue, bitrate
	}
	if bitrate != 0 {
		return bitrate
	}
	if queue != 0 {
		return queue
	}

	if d := compareInt(len(a.Filename), len(b.Filename)); d != 0 {
		return d
	}
	if d := strings.Compare(a.Filename, b.Filename); d != 0 {
		return d
	}
	return strings.Compare(a.PeerID, b.PeerID)
}

// Rank scores, tiers and sorts candidates best first. The input is not modified.
func (r *Resolver) Rank(candidates []domain.Candidate) []Ranked {
	ranked := make([]Ranked, len(candidates))
	for i, c := range candidates {
		score, _ := Score(c)
		ranked[i] = Ranked{
			Candidate: c,
			Score:     score,
			Tier:      r.TierOf(c),
			Fake:      score < FakeThreshold,
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return r.compare(ranked[i].Candidate, ranked[i].Tier, ranked[j].Candidate, ranked[j].Tier) < 0
	})
	return ranked
}

// Sort orders candidates in place, best first
func (r *Resolver) Sort(candidates []domain.Candidate) {
	for i, rc := range r.Rank(candidates) {
		candidates[i] = rc.Candidate
	}
}

// Best returns the top-ranked candidate, or false for an empty set
func (r *Resolver) Best(candidates []domain.Candidate) (domain.Candidate, bool) {
	if len(candidates) == 0 {
		return domain.Candidate{}, false
	}
	best, bestTier := candidates[0], r.TierOf(candidates[0])
	for _, c := range candidates[1:] {
		tier := r.TierOf(c)
		if r.compare(c, tier, best, bestTier) < 0 {
			best, bestTier = c, tier
		}
	}
	return best, true
}

func bucket(v, width int) int {
	if width <= 0 {
		return v
	}
	return v / width
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
