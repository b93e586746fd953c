// Package postgres provides the Postgres-backed design.Store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/uxforge/design-scout/internal/design"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements design.Store on a pgx connection pool.
type Store struct {
	pool pgxIface
}

// New connects a pool and returns the Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool pgxIface) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// GetPrompt returns the latest version of a named prompt.
func (s *Store) GetPrompt(ctx context.Context, name string) (design.Prompt, error) {
	query := `
SELECT name, content, version
FROM prompts
WHERE name = $1
ORDER BY version DESC
LIMIT 1`
	var p design.Prompt
	err := s.pool.QueryRow(ctx, query, name).Scan(&p.Name, &p.Content, &p.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return design.Prompt{}, design.ErrNotFound
	}
	if err != nil {
		return design.Prompt{}, fmt.Errorf("select prompt %s: %w", name, err)
	}
	return p, nil
}

// UpdatePrompt inserts a new prompt version. Older versions stay in the
// table for audit and rollback.
func (s *Store) UpdatePrompt(ctx context.Context, name, content string, version int) error {
	query := `
INSERT INTO prompts (name, content, version, created_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (name, version) DO UPDATE
SET content = EXCLUDED.content`
	if _, err := s.pool.Exec(ctx, query, name, content, version); err != nil {
		return fmt.Errorf("upsert prompt %s v%d: %w", name, version, err)
	}
	return nil
}

// GetSourceByURL fetches a source by its normalized URL.
func (s *Store) GetSourceByURL(ctx context.Context, url string) (design.Source, error) {
	query := `
SELECT id, url, category, trust_score, discovery_method, discovery_query, tags, status, discovered_at
FROM sources
WHERE url = $1`
	src, err := scanSource(s.pool.QueryRow(ctx, query, url))
	if errors.Is(err, pgx.ErrNoRows) {
		return design.Source{}, design.ErrNotFound
	}
	if err != nil {
		return design.Source{}, fmt.Errorf("select source %s: %w", url, err)
	}
	return src, nil
}

// StoreSource upserts a source keyed by URL.
func (s *Store) StoreSource(ctx context.Context, source design.Source) error {
	query := `
INSERT INTO sources (id, url, category, trust_score, discovery_method, discovery_query, tags, status, discovered_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (url) DO UPDATE
SET category = EXCLUDED.category,
    trust_score = EXCLUDED.trust_score,
    discovery_method = EXCLUDED.discovery_method,
    discovery_query = EXCLUDED.discovery_query,
    tags = EXCLUDED.tags,
    status = EXCLUDED.status`
	_, err := s.pool.Exec(ctx, query,
		source.ID,
		source.URL,
		source.Category,
		source.TrustScore,
		source.DiscoveryMethod,
		source.DiscoveryQuery,
		source.Tags,
		string(source.Status),
		source.DiscoveredAt,
	)
	if err != nil {
		return fmt.Errorf("upsert source %s: %w", source.URL, err)
	}
	return nil
}

// UpdateSourceStatus transitions a source's lifecycle state.
func (s *Store) UpdateSourceStatus(ctx context.Context, id string, status design.SourceStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sources SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("update source %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return design.ErrNotFound
	}
	return nil
}

// GetPendingSources returns pending sources, highest trust first.
func (s *Store) GetPendingSources(ctx context.Context, limit int) ([]design.Source, error) {
	query := `
SELECT id, url, category, trust_score, discovery_method, discovery_query, tags, status, discovered_at
FROM sources
WHERE status = 'pending'
ORDER BY trust_score DESC, id
LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending sources: %w", err)
	}
	defer rows.Close()

	var sources []design.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// ResetStuckProcessingSources flips processing sources back to pending.
// Run once at startup for crash recovery.
func (s *Store) ResetStuckProcessingSources(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sources SET status = 'pending' WHERE status = 'processing'`)
	if err != nil {
		return 0, fmt.Errorf("reset processing sources: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// StoreDesign upserts a design row and, for gate-passing designs, its
// leaderboard membership.
func (s *Store) StoreDesign(ctx context.Context, d design.CapturedDesign) error {
	pages, err := json.Marshal(d.Pages)
	if err != nil {
		return fmt.Errorf("marshal pages: %w", err)
	}
	query := `
INSERT INTO designs (id, source_id, url, name, captured_at, pages, overall_score, pattern_ids, passed_gate)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE
SET name = EXCLUDED.name,
    pages = EXCLUDED.pages,
    overall_score = EXCLUDED.overall_score,
    pattern_ids = EXCLUDED.pattern_ids,
    passed_gate = EXCLUDED.passed_gate`
	_, err = s.pool.Exec(ctx, query,
		d.ID,
		d.SourceID,
		d.URL,
		d.Name,
		d.CapturedAt,
		pages,
		d.OverallScore,
		d.ExtractedPatternIDs,
		d.PassedQualityGate,
	)
	if err != nil {
		return fmt.Errorf("upsert design %s: %w", d.ID, err)
	}

	if d.PassedQualityGate {
		member := `
INSERT INTO leaderboard (design_id, score)
VALUES ($1, $2)
ON CONFLICT (design_id) DO UPDATE SET score = EXCLUDED.score`
		if _, err := s.pool.Exec(ctx, member, d.ID, d.OverallScore); err != nil {
			return fmt.Errorf("upsert leaderboard member %s: %w", d.ID, err)
		}
	}
	return nil
}

// GetDesign fetches a design by ID.
func (s *Store) GetDesign(ctx context.Context, id string) (design.CapturedDesign, error) {
	query := `
SELECT id, source_id, url, name, captured_at, pages, overall_score, pattern_ids, passed_gate
FROM designs
WHERE id = $1`
	var (
		d     design.CapturedDesign
		pages []byte
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.SourceID, &d.URL, &d.Name, &d.CapturedAt,
		&pages, &d.OverallScore, &d.ExtractedPatternIDs, &d.PassedQualityGate,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return design.CapturedDesign{}, design.ErrNotFound
	}
	if err != nil {
		return design.CapturedDesign{}, fmt.Errorf("select design %s: %w", id, err)
	}
	if len(pages) > 0 {
		if err := json.Unmarshal(pages, &d.Pages); err != nil {
			return design.CapturedDesign{}, fmt.Errorf("unmarshal pages for %s: %w", id, err)
		}
	}
	return d, nil
}

// RenameDesign sets a design's display name.
func (s *Store) RenameDesign(ctx context.Context, id, name string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE designs SET name = $1 WHERE id = $2`, name, id)
	if err != nil {
		return fmt.Errorf("rename design %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return design.ErrNotFound
	}
	return nil
}

// GetLeaderboard returns the top n entries, score descending.
func (s *Store) GetLeaderboard(ctx context.Context, n int) ([]design.LeaderboardEntry, error) {
	query := `
SELECT l.design_id, d.name, d.url, l.score
FROM leaderboard l
JOIN designs d ON d.id = l.design_id
ORDER BY l.score DESC, l.design_id
LIMIT $1`
	rows, err := s.pool.Query(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("select leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []design.LeaderboardEntry
	for rows.Next() {
		var e design.LeaderboardEntry
		if err := rows.Scan(&e.DesignID, &e.Name, &e.URL, &e.Score); err != nil {
			return nil, fmt.Errorf("scan leaderboard entry: %w", err)
		}
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetLeaderboardFloor returns the lowest member's score and the current
// size. An empty leaderboard reports a zero floor.
func (s *Store) GetLeaderboardFloor(ctx context.Context) (float64, int, error) {
	query := `SELECT COALESCE(MIN(score), 0), COUNT(*) FROM leaderboard`
	var (
		floor float64
		size  int
	)
	if err := s.pool.QueryRow(ctx, query).Scan(&floor, &size); err != nil {
		return 0, 0, fmt.Errorf("select leaderboard floor: %w", err)
	}
	return floor, size, nil
}

// UpdateLeaderboardRanks recomputes the dense rank column.
func (s *Store) UpdateLeaderboardRanks(ctx context.Context) error {
	query := `
UPDATE leaderboard l
SET rank = ranked.rn
FROM (
	SELECT design_id, ROW_NUMBER() OVER (ORDER BY score DESC, design_id) AS rn
	FROM leaderboard
) ranked
WHERE l.design_id = ranked.design_id`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("update leaderboard ranks: %w", err)
	}
	return nil
}

// EvictFromLeaderboard removes one design from the ranking. The design
// row itself is retained.
func (s *Store) EvictFromLeaderboard(ctx context.Context, designID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM leaderboard WHERE design_id = $1`, designID)
	if err != nil {
		return fmt.Errorf("evict %s: %w", designID, err)
	}
	if tag.RowsAffected() == 0 {
		return design.ErrNotFound
	}
	return nil
}

// StorePattern upserts a pattern row.
func (s *Store) StorePattern(ctx context.Context, p design.Pattern) error {
	coOccurring, err := json.Marshal(p.CoOccurringPatterns)
	if err != nil {
		return fmt.Errorf("marshal co-occurrence: %w", err)
	}
	query := `
INSERT INTO patterns (id, name, category, type, description, quality_score, observation_count,
                      source_design_ids, tags, html_structure, css_style, co_occurring, learned_at, last_updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (id) DO UPDATE
SET description = EXCLUDED.description,
    quality_score = EXCLUDED.quality_score,
    observation_count = EXCLUDED.observation_count,
    source_design_ids = EXCLUDED.source_design_ids,
    tags = EXCLUDED.tags,
    co_occurring = EXCLUDED.co_occurring,
    last_updated_at = EXCLUDED.last_updated_at`
	_, err = s.pool.Exec(ctx, query,
		p.ID, p.Name, p.Category, p.Type, p.Description, p.QualityScore, p.ObservationCount,
		p.SourceDesignIDs, p.Tags, p.HTMLStructure, p.CSSStyle, coOccurring, p.LearnedAt, p.LastUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert pattern %s: %w", p.ID, err)
	}
	return nil
}

// GetPattern fetches a pattern by ID.
func (s *Store) GetPattern(ctx context.Context, id string) (design.Pattern, error) {
	query := `
SELECT id, name, category, type, description, quality_score, observation_count,
       source_design_ids, tags, html_structure, css_style, co_occurring, learned_at, last_updated_at
FROM patterns
WHERE id = $1`
	p, err := scanPattern(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return design.Pattern{}, design.ErrNotFound
	}
	if err != nil {
		return design.Pattern{}, fmt.Errorf("select pattern %s: %w", id, err)
	}
	return p, nil
}

// GetTopPatterns returns the most-observed patterns, quality breaking
// ties.
func (s *Store) GetTopPatterns(ctx context.Context, n int) ([]design.Pattern, error) {
	query := `
SELECT id, name, category, type, description, quality_score, observation_count,
       source_design_ids, tags, html_structure, css_style, co_occurring, learned_at, last_updated_at
FROM patterns
ORDER BY observation_count DESC, quality_score DESC, id
LIMIT $1`
	rows, err := s.pool.Query(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("select top patterns: %w", err)
	}
	defer rows.Close()

	var patterns []design.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// StoreFeedback appends a feedback row.
func (s *Store) StoreFeedback(ctx context.Context, f design.Feedback) error {
	query := `
INSERT INTO feedback (design_id, rating, human_score, llm_score, mismatch, custom_name, triggered_evolution, provided_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.pool.Exec(ctx, query,
		f.DesignID, f.Rating, f.HumanScore, f.LLMScore, f.Mismatch,
		f.CustomName, f.TriggeredEvolution, f.ProvidedAt,
	)
	if err != nil {
		return fmt.Errorf("insert feedback for %s: %w", f.DesignID, err)
	}
	return nil
}

// GetRecentFeedback returns the newest n feedback rows.
func (s *Store) GetRecentFeedback(ctx context.Context, n int) ([]design.Feedback, error) {
	query := `
SELECT design_id, rating, human_score, llm_score, mismatch, custom_name, triggered_evolution, provided_at
FROM feedback
ORDER BY provided_at DESC
LIMIT $1`
	rows, err := s.pool.Query(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("select recent feedback: %w", err)
	}
	defer rows.Close()

	var feedback []design.Feedback
	for rows.Next() {
		var f design.Feedback
		if err := rows.Scan(
			&f.DesignID, &f.Rating, &f.HumanScore, &f.LLMScore, &f.Mismatch,
			&f.CustomName, &f.TriggeredEvolution, &f.ProvidedAt,
		); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		feedback = append(feedback, f)
	}
	return feedback, rows.Err()
}

// GetModelPerformance fetches calibration for one (model, pageType) pair.
func (s *Store) GetModelPerformance(ctx context.Context, model, pageType string) (design.ModelPerformance, error) {
	query := `
SELECT model, page_type, average_bias, standard_deviation, accuracy, sample_size, last_updated
FROM model_performance
WHERE model = $1 AND page_type = $2`
	var perf design.ModelPerformance
	err := s.pool.QueryRow(ctx, query, model, pageType).Scan(
		&perf.Model, &perf.PageType, &perf.AverageBias, &perf.StandardDeviation,
		&perf.Accuracy, &perf.SampleSize, &perf.LastUpdated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return design.ModelPerformance{}, design.ErrNotFound
	}
	if err != nil {
		return design.ModelPerformance{}, fmt.Errorf("select calibration %s/%s: %w", model, pageType, err)
	}
	return perf, nil
}

// StoreModelPerformance upserts calibration for one (model, pageType) pair.
func (s *Store) StoreModelPerformance(ctx context.Context, perf design.ModelPerformance) error {
	query := `
INSERT INTO model_performance (model, page_type, average_bias, standard_deviation, accuracy, sample_size, last_updated)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (model, page_type) DO UPDATE
SET average_bias = EXCLUDED.average_bias,
    standard_deviation = EXCLUDED.standard_deviation,
    accuracy = EXCLUDED.accuracy,
    sample_size = EXCLUDED.sample_size,
    last_updated = EXCLUDED.last_updated`
	_, err := s.pool.Exec(ctx, query,
		perf.Model, perf.PageType, perf.AverageBias, perf.StandardDeviation,
		perf.Accuracy, perf.SampleSize, perf.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("upsert calibration %s/%s: %w", perf.Model, perf.PageType, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (design.Source, error) {
	var (
		src    design.Source
		status string
	)
	err := row.Scan(
		&src.ID, &src.URL, &src.Category, &src.TrustScore,
		&src.DiscoveryMethod, &src.DiscoveryQuery, &src.Tags,
		&status, &src.DiscoveredAt,
	)
	if err != nil {
		return design.Source{}, err
	}
	src.Status = design.SourceStatus(status)
	return src, nil
}

func scanPattern(row rowScanner) (design.Pattern, error) {
	var (
		p           design.Pattern
		coOccurring []byte
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Category, &p.Type, &p.Description,
		&p.QualityScore, &p.ObservationCount, &p.SourceDesignIDs, &p.Tags,
		&p.HTMLStructure, &p.CSSStyle, &coOccurring, &p.LearnedAt, &p.LastUpdatedAt,
	)
	if err != nil {
		return design.Pattern{}, err
	}
	if len(coOccurring) > 0 {
		if err := json.Unmarshal(coOccurring, &p.CoOccurringPatterns); err != nil {
			return design.Pattern{}, fmt.Errorf("unmarshal co-occurrence: %w", err)
		}
	}
	return p, nil
}
