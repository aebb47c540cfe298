package domain

import "fmt"

// QualityTier is the ranking bucket of a candidate. Higher values are better.
type QualityTier int

const (
	TierRejected QualityTier = iota
	TierMarginal
	TierGood
	TierGreat
	TierExcellent
)

var tierNames = map[QualityTier]string{
	TierRejected:  "rejected",
	TierMarginal:  "marginal",
	TierGood:      "good",
	TierGreat:     "great",
	TierExcellent: "excellent",
}

func (t QualityTier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// MarshalText renders the tier by name in JSON
func (t QualityTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a tier name
func (t *QualityTier) UnmarshalText(text []byte) error {
	for tier, name := range tierNames {
		if name == string(text) {
			*t = tier
			return nil
		}
	}
	return fmt.Errorf("unknown quality tier: %q", text)
}

// Better reports whether t ranks strictly above other
func (t QualityTier) Better(other QualityTier) bool {
	return t > other
}
