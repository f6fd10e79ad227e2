package cvpi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/aw3econ/internal/tables"
	"github.com/mbd888/aw3econ/internal/testutil"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// steppingClock advances by a minute on every call.
type steppingClock struct{ t time.Time }

func (c *steppingClock) Now() time.Time {
	c.t = c.t.Add(time.Minute)
	return c.t
}

func newTestService(store Store) (*Service, *steppingClock) {
	clock := &steppingClock{t: baseTime}
	svc := NewService(NewScorer(tables.Default()), store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = clock.Now
	return svc, clock
}

func TestService_RecordTracksTrend(t *testing.T) {
	svc, _ := newTestService(NewMemoryStore())
	ctx := context.Background()

	first, err := svc.Record(ctx, ScoreRequest{CreatorID: "cr1", TotalCost: dec("500"), VerifiedImpactScore: dec("1000")})
	require.NoError(t, err)
	assert.Equal(t, TrendStable, first.Trend)
	assert.NotEmpty(t, first.ID)

	second, err := svc.Record(ctx, ScoreRequest{CreatorID: "cr1", TotalCost: dec("400"), VerifiedImpactScore: dec("1000")})
	require.NoError(t, err)
	assert.Equal(t, TrendImproving, second.Trend)

	third, err := svc.Record(ctx, ScoreRequest{CreatorID: "cr1", TotalCost: dec("450"), VerifiedImpactScore: dec("1000")})
	require.NoError(t, err)
	assert.Equal(t, TrendDeclining, third.Trend)

	anon, err := svc.Record(ctx, ScoreRequest{TotalCost: dec("1"), VerifiedImpactScore: dec("2")})
	require.NoError(t, err)
	assert.Empty(t, anon.ID)
}

// prevTrackingStore remembers which prior score each Record compared against.
type prevTrackingStore struct {
	*MemoryStore
	mu    sync.Mutex
	prevs []string
}

func (p *prevTrackingStore) ListByCreator(ctx context.Context, creatorID string, since time.Time, limit int) ([]Score, error) {
	scores, err := p.MemoryStore.ListByCreator(ctx, creatorID, since, limit)
	if limit == 1 {
		p.mu.Lock()
		if len(scores) == 0 {
			p.prevs = append(p.prevs, "")
		} else {
			p.prevs = append(p.prevs, scores[0].ID)
		}
		p.mu.Unlock()
	}
	return scores, err
}

func TestService_RecordSerializesPerCreator(t *testing.T) {
	store := &prevTrackingStore{MemoryStore: NewMemoryStore()}
	svc := NewService(NewScorer(tables.Default()), store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := svc.Record(ctx, ScoreRequest{
				CreatorID:           "cr-busy",
				TotalCost:           decimal.NewFromInt(int64(100 + i)),
				VerifiedImpactScore: dec("1000"),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// each record saw a different predecessor, and only the first saw none
	require.Len(t, store.prevs, n)
	seen := make(map[string]bool, n)
	for _, id := range store.prevs {
		assert.False(t, seen[id], "prior score %q compared twice", id)
		seen[id] = true
	}
	assert.True(t, seen[""])

	all, err := store.ListByCreator(ctx, "cr-busy", time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, all, n)
}

func TestService_RecordHonorsCancelledContext(t *testing.T) {
	svc, _ := newTestService(NewMemoryStore())
	unlock, err := svc.locks.Lock(context.Background(), "cr-held")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = svc.Record(ctx, ScoreRequest{CreatorID: "cr-held", TotalCost: dec("1"), VerifiedImpactScore: dec("2")})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestService_HistoryFiltersByPeriod(t *testing.T) {
	store := NewMemoryStore()
	svc, clock := newTestService(store)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &Score{ID: "old", CreatorID: "cr1", CVPI: dec("0.9"), CreatedAt: baseTime.AddDate(0, 0, -40)}))
	require.NoError(t, store.Save(ctx, &Score{ID: "mid", CreatorID: "cr1", CVPI: dec("0.5"), CreatedAt: baseTime.AddDate(0, 0, -10)}))
	require.NoError(t, store.Save(ctx, &Score{ID: "new", CreatorID: "cr1", CVPI: dec("0.3"), CreatedAt: baseTime.AddDate(0, 0, -1)}))
	clock.t = baseTime

	h, err := svc.History(ctx, "cr1", "")
	require.NoError(t, err)
	assert.Equal(t, "30d", h.Period)
	require.Len(t, h.DataPoints, 2)
	assert.Equal(t, "0.3", h.DataPoints[0].CVPI.String())
	assert.Equal(t, "0.4000", h.Summary.AverageCVPI.StringFixed(4))
	assert.Equal(t, TrendImproving, h.Summary.Trend)

	h, err = svc.History(ctx, "cr1", "90d")
	require.NoError(t, err)
	assert.Len(t, h.DataPoints, 3)
	assert.Equal(t, "0.90", h.Summary.WorstCVPI.StringFixed(2))

	_, err = svc.History(ctx, "cr1", "forever")
	assert.Error(t, err)
}

func TestService_FillProfile(t *testing.T) {
	svc, _ := newTestService(NewMemoryStore())
	ctx := context.Background()
	for _, cost := range []string{"300", "500"} {
		_, err := svc.Record(ctx, ScoreRequest{CreatorID: "cr9", TotalCost: dec(cost), VerifiedImpactScore: dec("1000")})
		require.NoError(t, err)
	}

	p, err := svc.FillProfile(ctx, CreatorProfile{ID: "cr9"})
	require.NoError(t, err)
	assert.Equal(t, "0.4000", p.AverageCVPI.StringFixed(4))
	assert.Equal(t, 2, p.CompletedCampaigns)

	p, err = svc.FillProfile(ctx, CreatorProfile{ID: "cr9", AverageCVPI: dec("0.2"), CompletedCampaigns: 30})
	require.NoError(t, err)
	assert.Equal(t, "0.2", p.AverageCVPI.String())
}

func TestMemoryStore_NewestFirstWithLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Save(ctx, &Score{ID: id, CreatorID: "x", CreatedAt: baseTime.Add(time.Duration(i) * time.Hour)}))
	}
	got, err := store.ListByCreator(ctx, "x", time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestPostgresStore(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	for i, id := range []string{"cv_a", "cv_b"} {
		require.NoError(t, store.Save(ctx, &Score{
			ID: id, CreatorID: "pg1", TotalCost: dec("100.00"), VerifiedImpactScore: dec("250"),
			CVPI: dec("0.4"), PercentileRank: dec("70"), CreatedAt: baseTime.Add(time.Duration(i) * time.Hour),
		}))
	}
	got, err := store.ListByCreator(ctx, "pg1", baseTime.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "cv_b", got[0].ID)
	assert.True(t, got[0].CVPI.Equal(dec("0.4")))
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc, _ := newTestService(NewMemoryStore())
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/v1"))
	return r
}

func doJSON(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_ScoreAndHistory(t *testing.T) {
	r := setupTestRouter()

	w := doJSON(r, "POST", "/v1/cvpi/score", map[string]string{
		"creatorId": "cr1", "totalCost": "1000", "verifiedImpactScore": "2500",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"cvpi":"0.4"`)

	w = doJSON(r, "POST", "/v1/cvpi/score", map[string]string{"totalCost": "1000", "verifiedImpactScore": "0"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "division_by_zero")

	w = doJSON(r, "POST", "/v1/cvpi/score", map[string]string{"totalCost": "-1", "verifiedImpactScore": "3"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, "GET", "/v1/cvpi/creators/cr1?period=7d", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"totalCampaigns":1`)

	w = doJSON(r, "GET", "/v1/cvpi/creators/cr1?period=2w", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_RecommendationsAndProjection(t *testing.T) {
	r := setupTestRouter()

	w := doJSON(r, "POST", "/v1/cvpi/recommendations", map[string]any{
		"creator": map[string]any{"averageCvpi": "0.40", "reputationScore": "820"},
		"campaigns": []map[string]any{
			{"id": "a", "budget": "1000", "requiredReputation": "900"},
			{"id": "b", "budget": "1000"},
		},
		"limit": 1,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Recommendations []struct {
			Campaign struct {
				ID string `json:"id"`
			} `json:"campaign"`
			Eligible bool `json:"eligible"`
		} `json:"recommendations"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "b", resp.Recommendations[0].Campaign.ID)
	assert.True(t, resp.Recommendations[0].Eligible)

	w = doJSON(r, "POST", "/v1/cvpi/projection", map[string]any{
		"budget": "10000", "participants": 4, "averageCvpi": "0.40", "completedCampaigns": 12,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"projectedCvpi":"0.38"`)
	assert.Contains(t, w.Body.String(), `"confidence":"0.85"`)

	w = doJSON(r, "POST", "/v1/cvpi/projection", map[string]any{"budget": "10000", "participants": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
