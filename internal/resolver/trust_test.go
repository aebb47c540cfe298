package resolver

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yourusername/trackfetch-go/internal/domain"
)

const mb = 1024 * 1024

func TestTrustScore_Bounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	formats := []string{"flac", "mp3", "wav", "wma", "ogg", "m4a", "xyz", ""}

	for i := 0; i < 2000; i++ {
		c := domain.Candidate{
			Filename:        "a.mp3",
			Format:          formats[rng.Intn(len(formats))],
			BitrateKbps:     rng.Intn(2000),
			DurationSeconds: rng.Intn(1200),
			SizeBytes:       rng.Int63n(200 * mb),
			UploadSpeed:     rng.Int63n(3),
			FreeSlot:        rng.Intn(2) == 0,
		}
		score := TrustScore(c)
		assert.GreaterOrEqual(t, score, 0)
		assert.LessOrEqual(t, score, 100)
	}
}

func TestTrustScore_UndersizedMP3IsFake(t *testing.T) {
	c := domain.Candidate{
		Filename:        "Artist - Title.mp3",
		Format:          "mp3",
		BitrateKbps:     320,
		DurationSeconds: 300,
		SizeBytes:       3 * mb,
		UploadSpeed:     100,
		FreeSlot:        true,
	}

	score, tier := Score(c)

	assert.Less(t, score, FakeThreshold)
	assert.Equal(t, domain.TierRejected, tier)
	assert.True(t, IsFake(c))
}

func TestTrustScore_CorrectlySizedMP3(t *testing.T) {
	c := domain.Candidate{
		Filename:        "Artist - Title.mp3",
		Format:          "mp3",
		BitrateKbps:     320,
		DurationSeconds: 300,
		SizeBytes:       int64(11.5 * mb),
	}

	score := TrustScore(c)

	// base + bitrate + lossy container + size corroboration
	assert.Equal(t, 75, score)
	assert.GreaterOrEqual(t, score, baseScore+10)
	assert.False(t, IsFake(c))
}

func TestTrustScore_UndersizedFLACIsFake(t *testing.T) {
	c := domain.Candidate{
		Filename:        "Artist - Title.flac",
		Format:          "flac",
		DurationSeconds: 600,
		SizeBytes:       5 * mb,
	}

	assert.Equal(t, 30, TrustScore(c))
	assert.True(t, IsFake(c))
}

func TestTrustScore_UnknownDurationSkipsSizeChecks(t *testing.T) {
	c := domain.Candidate{
		Filename:    "Artist - Title.flac",
		Format:      "flac",
		BitrateKbps: 0,
		SizeBytes:   1 * mb,
	}

	assert.Equal(t, 70, TrustScore(c))
	assert.False(t, IsFake(c))
}

func TestTrustScore_Adjustments(t *testing.T) {
	tests := []struct {
		name      string
		candidate domain.Candidate
		expected  int
	}{
		{"unknown everything", domain.Candidate{Filename: "x.bin"}, 50},
		{"low bitrate mp3", domain.Candidate{Format: "mp3", BitrateKbps: 96}, 35},
		{"low trust wma", domain.Candidate{Format: "wma", BitrateKbps: 192}, 40},
		{"format from filename", domain.Candidate{Filename: `music\a.WAV`}, 70},
		{"availability", domain.Candidate{Format: "mp3", UploadSpeed: 1, FreeSlot: true}, 70},
		{"lossless with free slot", domain.Candidate{Format: "flac", BitrateKbps: 1411, UploadSpeed: 1, FreeSlot: true, DurationSeconds: 60, SizeBytes: 30 * mb}, 95},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TrustScore(tt.candidate))
		})
	}
}

func TestTierForScore(t *testing.T) {
	assert.Equal(t, domain.TierExcellent, TierForScore(85))
	assert.Equal(t, domain.TierGreat, TierForScore(84))
	assert.Equal(t, domain.TierGreat, TierForScore(70))
	assert.Equal(t, domain.TierGood, TierForScore(50))
	assert.Equal(t, domain.TierMarginal, TierForScore(35))
	assert.Equal(t, domain.TierRejected, TierForScore(34))
}

func TestIsGoldenMatch(t *testing.T) {
	golden := domain.Candidate{Format: "flac", BitrateKbps: 1411, UploadSpeed: 1, FreeSlot: true}
	assert.True(t, IsGoldenMatch(golden))

	golden.FreeSlot = false
	golden.UploadSpeed = 0
	assert.False(t, IsGoldenMatch(golden))
}
