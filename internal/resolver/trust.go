package resolver

import "github.com/yourusername/trackfetch-go/internal/domain"

const (
	baseScore = 50

	// FakeThreshold is the score below which a candidate is treated as a fake
	FakeThreshold = 40

	// GoldenThreshold is the score at or above which a candidate is a golden match
	GoldenThreshold = 85

	// Lossless audio cannot be packed below this density
	minLosslessMBPerMinute = 2.5

	bytesPerMB = 1024 * 1024
)

// TrustScore estimates how authentic a candidate is from its metadata alone.
// The result is clamped to [0,100].
func TrustScore(c domain.Candidate) int {
	score := baseScore
	format := candidateFormat(c)
	lossless := domain.IsLosslessFormat(format)

	// Advertised bitrate
	switch {
	case c.BitrateKbps >= 320:
		score += 10
	case c.BitrateKbps > 0 && c.BitrateKbps < 128:
		score -= 20
	}

	// Container trust
	switch {
	case lossless:
		score += 20
	case domain.IsLossyFormat(format):
		score += 5
	case domain.IsLowTrustFormat(format):
		score -= 10
	}

	// Size consistency needs a known duration
	if c.DurationSeconds > 0 {
		score += compressionAdjustment(c, lossless)
	}

	// Availability
	if c.UploadSpeed > 0 {
		score += 5
	}
	if c.FreeSlot {
		score += 10
	}

	return clampScore(score)
}

// compressionAdjustment compares the file size with what the advertised
// format and bitrate require for the reported duration.
func compressionAdjustment(c domain.Candidate, lossless bool) int {
	if lossless {
		minutes := float64(c.DurationSeconds) / 60
		mbPerMinute := float64(c.SizeBytes) / bytesPerMB / minutes
		if mbPerMinute < minLosslessMBPerMinute {
			return -40
		}
		return 0
	}

	if c.BitrateKbps < 320 {
		return 0
	}

	expected := float64(c.BitrateKbps) * 1000 / 8 * float64(c.DurationSeconds)
	actual := float64(c.SizeBytes)
	switch {
	case actual < 0.75*expected:
		return -50
	case actual <= 1.25*expected:
		return 10
	default:
		return 0
	}
}

// TierForScore maps a trust score to a quality tier
func TierForScore(score int) domain.QualityTier {
	switch {
	case score >= GoldenThreshold:
		return domain.TierExcellent
	case score >= 70:
		return domain.TierGreat
	case score >= 50:
		return domain.TierGood
	case score >= 35:
		return domain.TierMarginal
	default:
		return domain.TierRejected
	}
}

// Score returns the trust score of a candidate together with its tier
func Score(c domain.Candidate) (int, domain.QualityTier) {
	score := TrustScore(c)
	return score, TierForScore(score)
}

// IsFake reports whether the metadata is inconsistent enough to distrust the file
func IsFake(c domain.Candidate) bool {
	return TrustScore(c) < FakeThreshold
}

// IsGoldenMatch reports whether the candidate scores in the top band
func IsGoldenMatch(c domain.Candidate) bool {
	return TrustScore(c) >= GoldenThreshold
}

func candidateFormat(c domain.Candidate) string {
	if c.Format != "" {
		return domain.NormalizeFormat(c.Format)
	}
	return domain.FormatFromFilename(c.Filename)
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
