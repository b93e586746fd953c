package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/uxforge/design-scout/internal/design"
)

func gatedDesign(id string, score float64) design.CapturedDesign {
	return design.CapturedDesign{
		ID:                id,
		URL:               "https://" + id + ".example",
		Name:              id,
		OverallScore:      score,
		PassedQualityGate: true,
	}
}

func TestLeaderboardOrderingAndFloor(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := New()

	require.NoError(t, store.StoreDesign(ctx, gatedDesign("mid", 8.0)))
	require.NoError(t, store.StoreDesign(ctx, gatedDesign("top", 9.5)))
	require.NoError(t, store.StoreDesign(ctx, gatedDesign("low", 7.2)))

	entries, err := store.GetLeaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "top", entries[0].DesignID)
	require.Equal(t, 1, entries[0].Rank)
	require.Equal(t, "low", entries[2].DesignID)
	require.Equal(t, 3, entries[2].Rank)

	floor, size, err := store.GetLeaderboardFloor(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, size)
	require.InDelta(t, 7.2, floor, 0.001)
}

func TestRejectedDesignSkipsLeaderboardButIsStored(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := New()

	d := gatedDesign("weak", 5.0)
	d.PassedQualityGate = false
	require.NoError(t, store.StoreDesign(ctx, d))

	_, size, err := store.GetLeaderboardFloor(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, size)

	got, err := store.GetDesign(ctx, "weak")
	require.NoError(t, err)
	require.False(t, got.PassedQualityGate)
}

func TestEvictFromLeaderboardRetainsDesign(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := New()

	require.NoError(t, store.StoreDesign(ctx, gatedDesign("keep", 9.0)))
	require.NoError(t, store.StoreDesign(ctx, gatedDesign("drop", 7.0)))

	require.NoError(t, store.EvictFromLeaderboard(ctx, "drop"))
	require.ErrorIs(t, store.EvictFromLeaderboard(ctx, "drop"), design.ErrNotFound)

	entries, err := store.GetLeaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "keep", entries[0].DesignID)

	_, err = store.GetDesign(ctx, "drop")
	require.NoError(t, err)
}

func TestPendingSourcesTrustOrdered(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := New()

	require.NoError(t, store.StoreSource(ctx, design.Source{
		ID: "a", URL: "https://a.example", TrustScore: 6.0, Status: design.SourceStatusPending,
	}))
	require.NoError(t, store.StoreSource(ctx, design.Source{
		ID: "b", URL: "https://b.example", TrustScore: 9.0, Status: design.SourceStatusPending,
	}))
	require.NoError(t, store.StoreSource(ctx, design.Source{
		ID: "c", URL: "https://c.example", TrustScore: 8.0, Status: design.SourceStatusAccepted,
	}))

	pending, err := store.GetPendingSources(ctx, 5)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "b", pending[0].ID)

	reset, err := store.ResetStuckProcessingSources(ctx)
	require.NoError(t, err)
	require.Zero(t, reset)

	require.NoError(t, store.UpdateSourceStatus(ctx, "a", design.SourceStatusProcessing))
	reset, err = store.ResetStuckProcessingSources(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, reset)
}

func TestUpdatePromptRetainsOlderVersions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := New()

	require.NoError(t, store.UpdatePrompt(ctx, "analysis_scoring", "v2 wording", 2))
	// A write of an older version must not clobber the newer one.
	require.NoError(t, store.UpdatePrompt(ctx, "analysis_scoring", "v1 wording", 1))

	p, err := store.GetPrompt(ctx, "analysis_scoring")
	require.NoError(t, err)
	require.Equal(t, 2, p.Version)
	require.Equal(t, "v2 wording", p.Content)

	// Rewriting an existing version replaces only that version.
	require.NoError(t, store.UpdatePrompt(ctx, "analysis_scoring", "v2 reworded", 2))
	p, err = store.GetPrompt(ctx, "analysis_scoring")
	require.NoError(t, err)
	require.Equal(t, 2, p.Version)
	require.Equal(t, "v2 reworded", p.Content)
}

func TestGetTopPatternsObservationOrdered(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := New()

	require.NoError(t, store.StorePattern(ctx, design.Pattern{ID: "a", ObservationCount: 2, QualityScore: 9.5}))
	require.NoError(t, store.StorePattern(ctx, design.Pattern{ID: "b", ObservationCount: 5, QualityScore: 7.0}))
	require.NoError(t, store.StorePattern(ctx, design.Pattern{ID: "c", ObservationCount: 2, QualityScore: 8.0}))

	top, err := store.GetTopPatterns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	// Observation count wins over quality score, quality breaks ties.
	require.Equal(t, "b", top[0].ID)
	require.Equal(t, "a", top[1].ID)
}

func TestRecentFeedbackNewestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := New()

	for _, id := range []string{"first", "second", "third"} {
		require.NoError(t, store.StoreFeedback(ctx, design.Feedback{DesignID: id}))
	}

	recent, err := store.GetRecentFeedback(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "third", recent[0].DesignID)
	require.Equal(t, "second", recent[1].DesignID)
}
