package infrastructure

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/yourusername/trackfetch-go/internal/domain"
	"go.uber.org/zap"
)

type searchRequest struct {
	ID            string `json:"id"`
	SearchText    string `json:"searchText"`
	FileLimit     int    `json:"fileLimit,omitempty"`
	ResponseLimit int    `json:"responseLimit,omitempty"`
	SearchTimeout int64  `json:"searchTimeout,omitempty"` // milliseconds
}

type searchState struct {
	ID            string `json:"id"`
	IsComplete    bool   `json:"isComplete"`
	State         string `json:"state"`
	ResponseCount int    `json:"responseCount"`
	FileCount     int    `json:"fileCount"`
}

type searchResponse struct {
	Username          string       `json:"username"`
	HasFreeUploadSlot bool         `json:"hasFreeUploadSlot"`
	UploadSpeed       int64        `json:"uploadSpeed"`
	QueueLength       int          `json:"queueLength"`
	Files             []searchFile `json:"files"`
}

type searchFile struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	BitRate   int    `json:"bitRate"`
	Length    int    `json:"length"` // seconds
	Extension string `json:"extension"`
	IsLocked  bool   `json:"isLocked"`
}

// Search runs a network search through slskd and returns every matching file
// as a candidate. New responses are reported to onPartial as they arrive.
func (c *SlskdClient) Search(ctx context.Context, req domain.SearchRequest, onPartial domain.PartialResultsFunc) ([]domain.Candidate, error) {
	id := uuid.New().String()
	started := time.Now()

	body := searchRequest{
		ID:            id,
		SearchText:    req.Query,
		FileLimit:     c.discovery.FileLimit,
		ResponseLimit: c.discovery.ResponseLimit,
		SearchTimeout: c.discovery.SearchTimeout.Milliseconds(),
	}
	if err := c.post(ctx, "/searches", body, nil); err != nil {
		return nil, err
	}

	endpoint := "/searches/" + url.PathEscape(id)
	c.logger.Debug("slskd search started",
		zap.String("search_id", id),
		zap.String("query", req.Query),
		zap.Int("min_bitrate", req.MinBitrateKbps))

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	reported := 0
	for {
		select {
		case <-ctx.Done():
			c.cleanup(endpoint)
			return nil, ctx.Err()
		case <-ticker.C:
		}

		var state searchState
		if err := c.get(ctx, endpoint, &state); err != nil {
			if ctx.Err() != nil {
				c.cleanup(endpoint)
				return nil, ctx.Err()
			}
			return nil, err
		}

		var responses []searchResponse
		if err := c.get(ctx, endpoint+"/responses", &responses); err != nil {
			if ctx.Err() != nil {
				c.cleanup(endpoint)
				return nil, ctx.Err()
			}
			return nil, err
		}

		if onPartial != nil && len(responses) > reported {
			if batch := toCandidates(responses[reported:], req); len(batch) > 0 {
				onPartial(batch)
			}
			reported = len(responses)
		}

		if state.IsComplete {
			candidates := toCandidates(responses, req)
			c.logger.Debug("slskd search complete",
				zap.String("search_id", id),
				zap.Int("responses", len(responses)),
				zap.Int("candidates", len(candidates)),
				zap.Duration("elapsed", time.Since(started)))
			return candidates, nil
		}
	}
}

// toCandidates flattens peer responses into candidates that satisfy the
// request's format and bitrate window. Unknown bitrates pass.
func toCandidates(responses []searchResponse, req domain.SearchRequest) []domain.Candidate {
	preferred := lo.SliceToMap(req.PreferredFormats, func(f string) (string, bool) {
		return domain.NormalizeFormat(f), true
	})

	return lo.FlatMap(responses, func(r searchResponse, _ int) []domain.Candidate {
		return lo.FilterMap(r.Files, func(f searchFile, _ int) (domain.Candidate, bool) {
			if f.IsLocked {
				return domain.Candidate{}, false
			}
			c := r.candidate(f)
			if len(preferred) > 0 && !preferred[c.Format] {
				return c, false
			}
			if c.BitrateKbps > 0 {
				if c.BitrateKbps < req.MinBitrateKbps {
					return c, false
				}
				if req.MaxBitrateKbps > 0 && c.BitrateKbps > req.MaxBitrateKbps {
					return c, false
				}
			}
			return c, true
		})
	})
}

func (r searchResponse) candidate(f searchFile) domain.Candidate {
	format := domain.NormalizeFormat(f.Extension)
	if format == "" {
		format = domain.FormatFromFilename(f.Filename)
	}
	parsed := domain.ParseFilename(f.Filename)

	return domain.Candidate{
		Filename:        f.Filename,
		Artist:          parsed.Artist,
		Title:           parsed.Title,
		Format:          format,
		BitrateKbps:     f.BitRate,
		DurationSeconds: f.Length,
		SizeBytes:       f.Size,
		BPM:             parsed.BPM,
		Key:             parsed.Key,
		PeerID:          r.Username,
		QueueDepth:      r.QueueLength,
		UploadSpeed:     r.UploadSpeed,
		FreeSlot:        r.HasFreeUploadSlot,
	}
}
