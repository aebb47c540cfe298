package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/yourusername/trackfetch-go/internal/domain"
	"github.com/yourusername/trackfetch-go/internal/metrics"
	"github.com/yourusername/trackfetch-go/internal/resolver"
)

// Discovery asks the network for candidates, gates them and ranks the survivors
type Discovery struct {
	searcher domain.Searcher
	gate     *resolver.Gate
	logger   *zap.Logger
}

// NewDiscovery creates a discovery step
func NewDiscovery(searcher domain.Searcher, gate *resolver.Gate, logger *zap.Logger) *Discovery {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gate == nil {
		gate = resolver.NewGate(nil)
	}
	return &Discovery{
		searcher: searcher,
		gate:     gate,
		logger:   logger,
	}
}

// FindBestMatch returns the best admitted candidate, or nil when nothing
// survives the gate. Candidates the trust scorer rejects as fakes never win.
// Cancellation of ctx aborts the search and is returned as ctx.Err().
func (d *Discovery) FindBestMatch(ctx context.Context, query domain.TrackQuery, policy domain.SearchPolicy) (*domain.Candidate, error) {
	ranked, err := d.Rank(ctx, query, policy)
	if err != nil {
		return nil, err
	}

	playable := lo.Filter(ranked, func(r resolver.Ranked, _ int) bool {
		return r.Tier != domain.TierRejected
	})
	if len(playable) == 0 {
		d.logger.Info("No acceptable candidate found",
			zap.String("query", query.Text()),
			zap.Int("admitted", len(ranked)))
		return nil, nil
	}

	best := playable[0]
	d.logger.Info("Best match selected",
		zap.String("query", query.Text()),
		zap.String("peer", best.PeerID),
		zap.String("filename", best.Filename),
		zap.Int("score", best.Score),
		zap.Stringer("tier", best.Tier))

	candidate := best.Candidate
	return &candidate, nil
}

// Rank returns every admitted candidate with its verdict, best first
func (d *Discovery) Rank(ctx context.Context, query domain.TrackQuery, policy domain.SearchPolicy) ([]resolver.Ranked, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	admitted, relaxed, err := d.admitted(ctx, query, policy)
	if err != nil {
		metrics.RecordSearch("error", relaxed, time.Since(start))
		return nil, err
	}

	ranked := resolver.New(policy, query).Rank(admitted)
	for _, r := range ranked {
		metrics.RecordCandidateTier(r.Tier)
	}

	outcome := "match"
	if len(ranked) == 0 {
		outcome = "empty"
	}
	metrics.RecordSearch(outcome, relaxed, time.Since(start))

	return ranked, nil
}

// admitted runs the search, relaxing the bitrate floor once when the first
// attempt admits nothing within the initial timeout.
func (d *Discovery) admitted(ctx context.Context, query domain.TrackQuery, policy domain.SearchPolicy) ([]domain.Candidate, bool, error) {
	req := domain.SearchRequest{
		Query:            query.Text(),
		PreferredFormats: policy.PreferredFormats,
		MinBitrateKbps:   policy.PreferredMinBitrateKbps,
		MaxBitrateKbps:   policy.MaxBitrateKbps,
	}

	if !policy.Relaxation.Enabled {
		raw, err := d.searcher.Search(ctx, req, nil)
		if err != nil {
			return nil, false, err
		}
		return d.admit(raw, query, policy), false, nil
	}

	raw, err := d.searchWithBudget(ctx, req, policy.Relaxation.InitialTimeout)
	if err != nil {
		return nil, false, err
	}
	admitted := d.admit(raw, query, policy)
	if len(admitted) > 0 {
		return admitted, false, nil
	}

	fallback := policy.Relaxation.FallbackBitrateKbps
	if fallback >= req.MinBitrateKbps {
		return nil, false, nil
	}

	d.logger.Info("Relaxing bitrate floor",
		zap.String("query", req.Query),
		zap.Int("from_kbps", req.MinBitrateKbps),
		zap.Int("to_kbps", fallback))

	req.MinBitrateKbps = fallback
	raw, err = d.searcher.Search(ctx, req, nil)
	if err != nil {
		return nil, true, err
	}
	return d.admit(raw, query, policy), true, nil
}

// searchWithBudget runs one search bounded by budget. When the budget runs
// out the partial results gathered so far are returned.
func (d *Discovery) searchWithBudget(ctx context.Context, req domain.SearchRequest, budget time.Duration) ([]domain.Candidate, error) {
	searchCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	var mu sync.Mutex
	var partial []domain.Candidate
	onPartial := func(batch []domain.Candidate) {
		mu.Lock()
		partial = append(partial, batch...)
		mu.Unlock()
	}

	raw, err := d.searcher.Search(searchCtx, req, onPartial)
	if err == nil {
		return raw, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	d.logger.Debug("Initial search budget exhausted",
		zap.String("query", req.Query),
		zap.Duration("budget", budget),
		zap.Int("partial_results", len(partial)))
	return partial, nil
}

func (d *Discovery) admit(raw []domain.Candidate, query domain.TrackQuery, policy domain.SearchPolicy) []domain.Candidate {
	return lo.Filter(raw, func(c domain.Candidate, _ int) bool {
		reason, ok := d.gate.Check(c, query, policy)
		if !ok {
			metrics.RecordGateRejection(string(reason))
		}
		return ok
	})
}
