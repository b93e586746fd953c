package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/uxforge/design-scout/internal/design"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestGetPromptLatestVersion(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT name, content, version").
		WithArgs("analysis_scoring").
		WillReturnRows(pgxmock.NewRows([]string{"name", "content", "version"}).
			AddRow("analysis_scoring", "score strictly", 3))

	p, err := store.GetPrompt(context.Background(), "analysis_scoring")
	require.NoError(t, err)
	require.Equal(t, 3, p.Version)
	require.Equal(t, "score strictly", p.Content)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPromptNotFound(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT name, content, version").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"name", "content", "version"}))

	_, err := store.GetPrompt(context.Background(), "missing")
	require.ErrorIs(t, err, design.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreSourceUpserts(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	now := time.Unix(1700000000, 0).UTC()
	src := design.Source{
		ID:              "src-1",
		URL:             "https://stripe.example",
		Category:        "fintech",
		TrustScore:      8.5,
		DiscoveryMethod: "search",
		DiscoveryQuery:  "best fintech landing pages",
		Tags:            []string{"minimal", "typography"},
		Status:          design.SourceStatusPending,
		DiscoveredAt:    now,
	}

	mock.ExpectExec("INSERT INTO sources").
		WithArgs(
			src.ID, src.URL, src.Category, src.TrustScore,
			src.DiscoveryMethod, src.DiscoveryQuery, src.Tags,
			"pending", src.DiscoveredAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.StoreSource(context.Background(), src))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSourceStatusNotFound(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE sources SET status").
		WithArgs("processing", "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateSourceStatus(context.Background(), "missing", design.SourceStatusProcessing)
	require.ErrorIs(t, err, design.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreDesignInsertsLeaderboardMember(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	now := time.Unix(1700000000, 0).UTC()
	d := design.CapturedDesign{
		ID:                "design-1",
		SourceID:          "src-1",
		URL:               "https://stripe.example",
		Name:              "stripe.example",
		CapturedAt:        now,
		Pages:             []design.PageAnalysis{{URL: "https://stripe.example", PageType: "homepage"}},
		OverallScore:      8.7,
		PassedQualityGate: true,
	}

	mock.ExpectExec("INSERT INTO designs").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO leaderboard").
		WithArgs("design-1", 8.7).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.StoreDesign(context.Background(), d))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreDesignRejectedSkipsLeaderboard(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO designs").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.StoreDesign(context.Background(), design.CapturedDesign{
		ID:           "design-2",
		OverallScore: 5.0,
	}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLeaderboardFloor(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(pgxmock.NewRows([]string{"floor", "count"}).AddRow(7.4, 12))

	floor, size, err := store.GetLeaderboardFloor(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7.4, floor)
	require.Equal(t, 12, size)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvictFromLeaderboard(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM leaderboard").
		WithArgs("design-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM leaderboard").
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, store.EvictFromLeaderboard(context.Background(), "design-1"))
	require.ErrorIs(t, store.EvictFromLeaderboard(context.Background(), "missing"), design.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRecentFeedback(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT design_id, rating").
		WithArgs(2).
		WillReturnRows(pgxmock.NewRows([]string{
			"design_id", "rating", "human_score", "llm_score", "mismatch",
			"custom_name", "triggered_evolution", "provided_at",
		}).
			AddRow("design-2", 1, 4.0, 8.8, 4.8, "", false, now).
			AddRow("design-1", 5, 9.0, 8.1, 0.9, "Stripe", true, now.Add(-time.Hour)))

	feedback, err := store.GetRecentFeedback(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, feedback, 2)
	require.Equal(t, "design-2", feedback[0].DesignID)
	require.InDelta(t, 4.8, feedback[0].Mismatch, 1e-9)
	require.True(t, feedback[1].TriggeredEvolution)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPatternRoundTripsCoOccurrence(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT id, name, category").
		WithArgs("homepage-typography-abcd1234").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "category", "type", "description", "quality_score",
			"observation_count", "source_design_ids", "tags", "html_structure",
			"css_style", "co_occurring", "learned_at", "last_updated_at",
		}).AddRow(
			"homepage-typography-abcd1234", "homepage-typography-abcd1234",
			"typography", "homepage", "restrained serif pairing", 9.0,
			3, []string{"design-1"}, []string{"typography"}, "<main/>",
			":root{}", []byte(`{"homepage-color-abcd1234": 2}`), now, now,
		))

	p, err := store.GetPattern(context.Background(), "homepage-typography-abcd1234")
	require.NoError(t, err)
	require.Equal(t, 3, p.ObservationCount)
	require.Equal(t, 2, p.CoOccurringPatterns["homepage-color-abcd1234"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTopPatternsOrdersByObservations(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery(`ORDER BY observation_count DESC, quality_score DESC, id`).
		WithArgs(1).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "category", "type", "description", "quality_score",
			"observation_count", "source_design_ids", "tags", "html_structure",
			"css_style", "co_occurring", "learned_at", "last_updated_at",
		}).AddRow(
			"pricing-layout-abcd1234", "pricing-layout-abcd1234",
			"layout", "pricing", "three-column tiers", 8.1,
			7, []string{"design-2"}, []string{"layout"}, "<section/>",
			":root{}", []byte(`{}`), now, now,
		))

	top, err := store.GetTopPatterns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	require.Equal(t, 7, top[0].ObservationCount)
	require.NoError(t, mock.ExpectationsWereMet())
}
