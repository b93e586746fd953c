// Package memory provides an in-memory Store for development and testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/uxforge/design-scout/internal/design"
)

// Store implements design.Store with maps behind one mutex. The
// leaderboard mutates under the same lock, so accept/evict can never be
// observed half-applied.
type Store struct {
	mu          sync.RWMutex
	prompts     map[string][]design.Prompt // all retained versions per name
	sources     map[string]design.Source
	sourceByURL map[string]string
	designs     map[string]design.CapturedDesign
	leaderboard []string // design IDs, score descending
	patterns    map[string]design.Pattern
	feedback    []design.Feedback
	modelPerf   map[string]design.ModelPerformance
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		prompts:     make(map[string][]design.Prompt),
		sources:     make(map[string]design.Source),
		sourceByURL: make(map[string]string),
		designs:     make(map[string]design.CapturedDesign),
		patterns:    make(map[string]design.Pattern),
		modelPerf:   make(map[string]design.ModelPerformance),
	}
}

// GetPrompt returns the highest version of a named prompt.
func (s *Store) GetPrompt(_ context.Context, name string) (design.Prompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions, ok := s.prompts[name]
	if !ok || len(versions) == 0 {
		return design.Prompt{}, design.ErrNotFound
	}
	latest := versions[0]
	for _, p := range versions[1:] {
		if p.Version > latest.Version {
			latest = p
		}
	}
	return latest, nil
}

// UpdatePrompt stores a prompt version, overwriting only the same
// version number. Older versions are retained.
func (s *Store) UpdatePrompt(_ context.Context, name, content string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.prompts[name] {
		if p.Version == version {
			s.prompts[name][i].Content = content
			return nil
		}
	}
	s.prompts[name] = append(s.prompts[name], design.Prompt{Name: name, Content: content, Version: version})
	return nil
}

// GetSourceByURL looks a source up by its normalized URL.
func (s *Store) GetSourceByURL(_ context.Context, url string) (design.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.sourceByURL[url]
	if !ok {
		return design.Source{}, design.ErrNotFound
	}
	return s.sources[id], nil
}

// StoreSource upserts a source row.
func (s *Store) StoreSource(_ context.Context, source design.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[source.ID] = source
	s.sourceByURL[source.URL] = source.ID
	return nil
}

// UpdateSourceStatus transitions a source's lifecycle state.
func (s *Store) UpdateSourceStatus(_ context.Context, id string, status design.SourceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	source, ok := s.sources[id]
	if !ok {
		return design.ErrNotFound
	}
	source.Status = status
	s.sources[id] = source
	return nil
}

// GetPendingSources returns up to limit pending sources, trust-first so
// the most promising candidates are crawled before long-tail finds.
func (s *Store) GetPendingSources(_ context.Context, limit int) ([]design.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pending := make([]design.Source, 0, limit)
	for _, src := range s.sources {
		if src.Status == design.SourceStatusPending {
			pending = append(pending, src)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].TrustScore != pending[j].TrustScore {
			return pending[i].TrustScore > pending[j].TrustScore
		}
		return pending[i].ID < pending[j].ID
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// ResetStuckProcessingSources flips processing sources back to pending
// and reports how many were reset. Run once at startup for crash recovery.
func (s *Store) ResetStuckProcessingSources(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reset := 0
	for id, src := range s.sources {
		if src.Status == design.SourceStatusProcessing {
			src.Status = design.SourceStatusPending
			s.sources[id] = src
			reset++
		}
	}
	return reset, nil
}

// StoreDesign upserts a captured design and inserts it into the
// score-ordered leaderboard in one step.
func (s *Store) StoreDesign(_ context.Context, d design.CapturedDesign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.designs[d.ID]; !exists && d.PassedQualityGate {
		s.leaderboard = append(s.leaderboard, d.ID)
	}
	s.designs[d.ID] = d
	s.sortLeaderboardLocked()
	return nil
}

// GetDesign fetches a design by ID.
func (s *Store) GetDesign(_ context.Context, id string) (design.CapturedDesign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.designs[id]
	if !ok {
		return design.CapturedDesign{}, design.ErrNotFound
	}
	return d, nil
}

// RenameDesign sets a design's display name.
func (s *Store) RenameDesign(_ context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.designs[id]
	if !ok {
		return design.ErrNotFound
	}
	d.Name = name
	s.designs[id] = d
	return nil
}

// GetLeaderboard returns the top n entries, score descending.
func (s *Store) GetLeaderboard(_ context.Context, n int) ([]design.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]design.LeaderboardEntry, 0, min(n, len(s.leaderboard)))
	for i, id := range s.leaderboard {
		if i >= n {
			break
		}
		d := s.designs[id]
		entries = append(entries, design.LeaderboardEntry{
			Rank:     i + 1,
			DesignID: d.ID,
			Name:     d.Name,
			URL:      d.URL,
			Score:    d.OverallScore,
		})
	}
	return entries, nil
}

// GetLeaderboardFloor returns the lowest member's score and the current
// size. An empty leaderboard reports a zero floor.
func (s *Store) GetLeaderboardFloor(_ context.Context) (float64, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	size := len(s.leaderboard)
	if size == 0 {
		return 0, 0, nil
	}
	lowest := s.designs[s.leaderboard[size-1]]
	return lowest.OverallScore, size, nil
}

// UpdateLeaderboardRanks re-sorts the leaderboard by score descending.
func (s *Store) UpdateLeaderboardRanks(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sortLeaderboardLocked()
	return nil
}

// EvictFromLeaderboard removes one design from the ranking. The design
// row itself is retained.
func (s *Store) EvictFromLeaderboard(_ context.Context, designID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, id := range s.leaderboard {
		if id == designID {
			s.leaderboard = append(s.leaderboard[:i], s.leaderboard[i+1:]...)
			return nil
		}
	}
	return design.ErrNotFound
}

func (s *Store) sortLeaderboardLocked() {
	sort.SliceStable(s.leaderboard, func(i, j int) bool {
		return s.designs[s.leaderboard[i]].OverallScore > s.designs[s.leaderboard[j]].OverallScore
	})
}

// StorePattern upserts a pattern row.
func (s *Store) StorePattern(_ context.Context, p design.Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns[p.ID] = p
	return nil
}

// GetPattern fetches a pattern by ID.
func (s *Store) GetPattern(_ context.Context, id string) (design.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patterns[id]
	if !ok {
		return design.Pattern{}, design.ErrNotFound
	}
	return p, nil
}

// GetTopPatterns returns up to n patterns by observation count
// descending, quality score breaking ties.
func (s *Store) GetTopPatterns(_ context.Context, n int) ([]design.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]design.Pattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].ObservationCount != all[j].ObservationCount {
			return all[i].ObservationCount > all[j].ObservationCount
		}
		if all[i].QualityScore != all[j].QualityScore {
			return all[i].QualityScore > all[j].QualityScore
		}
		return all[i].ID < all[j].ID
	})
	if len(all) > n {
		all = all[:n]
	}
	return all, nil
}

// StoreFeedback appends a feedback row.
func (s *Store) StoreFeedback(_ context.Context, f design.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback = append(s.feedback, f)
	return nil
}

// GetRecentFeedback returns the n most recent feedback rows, newest first.
func (s *Store) GetRecentFeedback(_ context.Context, n int) ([]design.Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]design.Feedback, 0, min(n, len(s.feedback)))
	for i := len(s.feedback) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.feedback[i])
	}
	return out, nil
}

// GetModelPerformance fetches the calibration row for (model, pageType).
func (s *Store) GetModelPerformance(_ context.Context, model, pageType string) (design.ModelPerformance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	perf, ok := s.modelPerf[model+"|"+pageType]
	if !ok {
		return design.ModelPerformance{}, design.ErrNotFound
	}
	return perf, nil
}

// StoreModelPerformance upserts the calibration row for (model, pageType).
func (s *Store) StoreModelPerformance(_ context.Context, perf design.ModelPerformance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if perf.LastUpdated.IsZero() {
		perf.LastUpdated = time.Now().UTC()
	}
	s.modelPerf[perf.Model+"|"+perf.PageType] = perf
	return nil
}
