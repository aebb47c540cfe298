package domain

import (
	"path"
	"regexp"
	"strconv"
	"strings"
)

// Candidate is one peer-advertised file returned by a network search.
// Zero BitrateKbps, DurationSeconds and BPM mean "unknown", not "bad".
type Candidate struct {
	Filename        string  `json:"filename"`
	Artist          string  `json:"artist,omitempty"`
	Title           string  `json:"title,omitempty"`
	Format          string  `json:"format"`
	BitrateKbps     int     `json:"bitrate_kbps,omitempty"`
	DurationSeconds int     `json:"duration_seconds,omitempty"`
	SizeBytes       int64   `json:"size_bytes"`
	BPM             float64 `json:"bpm,omitempty"`
	Key             string  `json:"key,omitempty"`
	PeerID          string  `json:"peer_id"`
	QueueDepth      int     `json:"queue_depth"`
	UploadSpeed     int64   `json:"upload_speed"`
	FreeSlot        bool    `json:"free_slot"`
}

// TrackQuery describes the track the user asked for.
type TrackQuery struct {
	Artist          string  `json:"artist"`
	Title           string  `json:"title"`
	DurationSeconds int     `json:"duration_seconds,omitempty"`
	BPM             float64 `json:"bpm,omitempty"`
	Key             string  `json:"key,omitempty"`
}

// Text returns the free-text search string for the query
func (q TrackQuery) Text() string {
	return strings.Join(strings.Fields(q.Artist+" "+q.Title), " ")
}

// Validate checks the query has something to search for
func (q TrackQuery) Validate() error {
	if q.Text() == "" {
		return ErrEmptyQuery
	}
	if q.DurationSeconds < 0 || q.BPM < 0 {
		return ErrInvalidQuery
	}
	return nil
}

var (
	losslessFormats = map[string]bool{"flac": true, "wav": true, "aiff": true, "aif": true, "alac": true}
	lossyFormats    = map[string]bool{"mp3": true, "m4a": true, "aac": true}
	lowTrustFormats = map[string]bool{"wma": true, "ogg": true, "wmv": true}
)

// IsLosslessFormat reports whether the container carries lossless audio
func IsLosslessFormat(format string) bool {
	return losslessFormats[NormalizeFormat(format)]
}

// IsLossyFormat reports whether the container is a standard lossy format
func IsLossyFormat(format string) bool {
	return lossyFormats[NormalizeFormat(format)]
}

// IsLowTrustFormat reports formats that are commonly mislabeled or low value
func IsLowTrustFormat(format string) bool {
	return lowTrustFormats[NormalizeFormat(format)]
}

// NormalizeFormat lower-cases a format and strips a leading dot.
func NormalizeFormat(format string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".")
}

// FormatFromFilename derives the container format from a file extension
func FormatFromFilename(filename string) string {
	return NormalizeFormat(path.Ext(BaseName(filename)))
}

// BaseName returns the last component of a peer path. Soulseek peers mostly
// share Windows paths, so both separators are honored.
func BaseName(filename string) string {
	if i := strings.LastIndexAny(filename, `/\`); i >= 0 {
		return filename[i+1:]
	}
	return filename
}

var (
	bpmPattern = regexp.MustCompile(`(?i)\b(\d{2,3}(?:\.\d+)?)\s?bpm\b`)
	keyPattern = regexp.MustCompile(`(?i)(?:^|[\s\[(_-])((?:1[0-2]|[1-9])[AB])(?:$|[\s\])_.-])`)
	trackNoPfx = regexp.MustCompile(`^\d{1,3}[\s.\-_]+`)
)

// ParsedName holds the metadata recoverable from a filename.
type ParsedName struct {
	Artist string
	Title  string
	BPM    float64
	Key    string
}

// ParseFilename extracts artist, title, BPM and Camelot key from a shared
// filename such as `@@music\Artist\01 - Artist - Title (128 BPM) 8A.mp3`.
func ParseFilename(filename string) ParsedName {
	var parsed ParsedName

	name := BaseName(filename)
	name = strings.TrimSuffix(name, path.Ext(name))

	if m := bpmPattern.FindStringSubmatch(name); m != nil {
		if bpm, err := strconv.ParseFloat(m[1], 64); err == nil && bpm >= 40 && bpm <= 250 {
			parsed.BPM = bpm
		}
	}
	if m := keyPattern.FindStringSubmatch(name); m != nil {
		parsed.Key = strings.ToUpper(m[1])
	}

	name = trackNoPfx.ReplaceAllString(name, "")
	parts := strings.Split(name, " - ")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	switch {
	case len(parts) >= 2:
		parsed.Artist = parts[len(parts)-2]
		parsed.Title = parts[len(parts)-1]
	default:
		parsed.Title = strings.TrimSpace(name)
	}

	return parsed
}
