package domain

import (
	"fmt"
	"time"
)

// PriorityMode selects how the resolver defines "best"
type PriorityMode string

const (
	PriorityQualityFirst PriorityMode = "quality_first" // audio quality above all
	PriorityDjReady      PriorityMode = "dj_ready"      // tempo/key metadata and availability first
)

// ValidatePriority checks if a priority mode is known
func ValidatePriority(mode PriorityMode) bool {
	return mode == PriorityQualityFirst || mode == PriorityDjReady
}

// SearchPolicy is the user-configured behavior of a search. It is read-only
// while a search runs.
type SearchPolicy struct {
	Priority                PriorityMode     `mapstructure:"priority" yaml:"priority" json:"priority"`
	PreferSpeedOverQuality  bool             `mapstructure:"prefer_speed_over_quality" yaml:"prefer_speed_over_quality" json:"prefer_speed_over_quality"`
	EnforceFileIntegrity    bool             `mapstructure:"enforce_file_integrity" yaml:"enforce_file_integrity" json:"enforce_file_integrity"`
	EnforceStrictTitleMatch bool             `mapstructure:"enforce_strict_title_match" yaml:"enforce_strict_title_match" json:"enforce_strict_title_match"`
	EnforceDurationMatch    bool             `mapstructure:"enforce_duration_match" yaml:"enforce_duration_match" json:"enforce_duration_match"`
	FuzzyNormalization      bool             `mapstructure:"fuzzy_normalization" yaml:"fuzzy_normalization" json:"fuzzy_normalization"`
	DurationToleranceSecs   int              `mapstructure:"duration_tolerance_seconds" yaml:"duration_tolerance_seconds" json:"duration_tolerance_seconds"`
	SignificantBitrateGap   int              `mapstructure:"significant_bitrate_gap_kbps" yaml:"significant_bitrate_gap_kbps" json:"significant_bitrate_gap_kbps"`
	SignificantQueueGap     int              `mapstructure:"significant_queue_gap_count" yaml:"significant_queue_gap_count" json:"significant_queue_gap_count"`
	PreferredMinBitrateKbps int              `mapstructure:"preferred_min_bitrate_kbps" yaml:"preferred_min_bitrate_kbps" json:"preferred_min_bitrate_kbps"`
	MaxBitrateKbps          int              `mapstructure:"max_bitrate_kbps" yaml:"max_bitrate_kbps" json:"max_bitrate_kbps"`
	PreferredFormats        []string         `mapstructure:"preferred_formats" yaml:"preferred_formats" json:"preferred_formats"`
	Relaxation              RelaxationPolicy `mapstructure:"relaxation" yaml:"relaxation" json:"relaxation"`
}

// RelaxationPolicy lowers the bitrate floor when the first search admits nothing in time
type RelaxationPolicy struct {
	Enabled             bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	InitialTimeout      time.Duration `mapstructure:"initial_timeout" yaml:"initial_timeout" json:"initial_timeout"`
	FallbackBitrateKbps int           `mapstructure:"fallback_bitrate_kbps" yaml:"fallback_bitrate_kbps" json:"fallback_bitrate_kbps"`
}

// DefaultSearchPolicy returns the policy used when nothing is configured
func DefaultSearchPolicy() SearchPolicy {
	return SearchPolicy{
		Priority:                PriorityQualityFirst,
		EnforceFileIntegrity:    true,
		EnforceStrictTitleMatch: true,
		EnforceDurationMatch:    true,
		FuzzyNormalization:      true,
		DurationToleranceSecs:   5,
		SignificantBitrateGap:   64,
		SignificantQueueGap:     10,
		PreferredMinBitrateKbps: 320,
		PreferredFormats:        []string{"flac", "mp3", "wav", "aiff", "m4a"},
		Relaxation: RelaxationPolicy{
			Enabled:             true,
			InitialTimeout:      20 * time.Second,
			FallbackBitrateKbps: 192,
		},
	}
}

// Validate rejects unknown modes and negative tolerances
func (p SearchPolicy) Validate() error {
	if !ValidatePriority(p.Priority) {
		return fmt.Errorf("invalid priority mode: %q", p.Priority)
	}
	if p.DurationToleranceSecs < 0 {
		return fmt.Errorf("duration tolerance cannot be negative")
	}
	if p.SignificantBitrateGap < 0 {
		return fmt.Errorf("significant bitrate gap cannot be negative")
	}
	if p.SignificantQueueGap < 0 {
		return fmt.Errorf("significant queue gap cannot be negative")
	}
	if p.PreferredMinBitrateKbps < 0 || p.MaxBitrateKbps < 0 {
		return fmt.Errorf("bitrate bounds cannot be negative")
	}
	if p.MaxBitrateKbps > 0 && p.MaxBitrateKbps < p.PreferredMinBitrateKbps {
		return fmt.Errorf("max bitrate %d below preferred minimum %d", p.MaxBitrateKbps, p.PreferredMinBitrateKbps)
	}
	if p.Relaxation.Enabled {
		if p.Relaxation.InitialTimeout <= 0 {
			return fmt.Errorf("relaxation initial timeout must be positive")
		}
		if p.Relaxation.FallbackBitrateKbps < 0 {
			return fmt.Errorf("relaxation fallback bitrate cannot be negative")
		}
	}
	return nil
}
