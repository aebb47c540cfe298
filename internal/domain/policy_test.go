package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *SearchPolicy)
		wantErr bool
	}{
		{"defaults", func(p *SearchPolicy) {}, false},
		{"dj ready", func(p *SearchPolicy) { p.Priority = PriorityDjReady }, false},
		{"unknown priority", func(p *SearchPolicy) { p.Priority = "loudest" }, true},
		{"negative duration tolerance", func(p *SearchPolicy) { p.DurationToleranceSecs = -1 }, true},
		{"negative bitrate gap", func(p *SearchPolicy) { p.SignificantBitrateGap = -5 }, true},
		{"negative queue gap", func(p *SearchPolicy) { p.SignificantQueueGap = -1 }, true},
		{"max below min", func(p *SearchPolicy) { p.MaxBitrateKbps = 128 }, true},
		{"relaxation without timeout", func(p *SearchPolicy) { p.Relaxation.InitialTimeout = 0 }, true},
		{"relaxation disabled ignores timeout", func(p *SearchPolicy) {
			p.Relaxation.Enabled = false
			p.Relaxation.InitialTimeout = 0
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultSearchPolicy()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestQualityTier_Order(t *testing.T) {
	assert.True(t, TierExcellent.Better(TierGreat))
	assert.True(t, TierGreat.Better(TierGood))
	assert.True(t, TierGood.Better(TierMarginal))
	assert.True(t, TierMarginal.Better(TierRejected))
	assert.False(t, TierRejected.Better(TierRejected))
}

func TestQualityTier_TextRoundTrip(t *testing.T) {
	text, err := TierGreat.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "great", string(text))

	var tier QualityTier
	assert.NoError(t, tier.UnmarshalText([]byte("marginal")))
	assert.Equal(t, TierMarginal, tier)
	assert.Error(t, tier.UnmarshalText([]byte("diamond")))
}
