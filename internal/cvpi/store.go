package cvpi

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Store records CVPI scores so collaborators can supply a creator's history.
type Store interface {
	Save(ctx context.Context, s *Score) error
	// ListByCreator returns scores recorded at or after since, most recent
	// first.
	ListByCreator(ctx context.Context, creatorID string, since time.Time, limit int) ([]Score, error)
}

// MemoryStore is an in-memory score store for development and tests.
type MemoryStore struct {
	scores map[string][]Score
	mu     sync.RWMutex
}

// NewMemoryStore creates a new in-memory score store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scores: make(map[string][]Score)}
}

func (m *MemoryStore) Save(ctx context.Context, s *Score) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.scores[s.CreatorID] = append(m.scores[s.CreatorID], *s)
	return nil
}

func (m *MemoryStore) ListByCreator(ctx context.Context, creatorID string, since time.Time, limit int) ([]Score, error) {
	m.mu.RLock()
	all := m.scores[creatorID]
	result := make([]Score, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if !all[i].CreatedAt.Before(since) {
			result = append(result, all[i])
		}
	}
	m.mu.RUnlock()

	// Walked newest-inserted first; stable keeps that for equal timestamps.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// PostgresStore persists scores in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed score store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Save(ctx context.Context, s *Score) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO cvpi_scores (id, creator_id, campaign_id, total_cost, verified_impact, cvpi, percentile_rank, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.CreatorID, sql.NullString{String: s.CampaignID, Valid: s.CampaignID != ""},
		s.TotalCost.String(), s.VerifiedImpactScore.String(), s.CVPI.String(), s.PercentileRank.String(),
		s.CreatedAt,
	)
	return err
}

func (p *PostgresStore) ListByCreator(ctx context.Context, creatorID string, since time.Time, limit int) ([]Score, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, creator_id, campaign_id, total_cost, verified_impact, cvpi, percentile_rank, created_at
		FROM cvpi_scores
		WHERE creator_id = $1 AND created_at >= $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3`, creatorID, since, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []Score
	for rows.Next() {
		var (
			s                             Score
			campaignID                    sql.NullString
			cost, impact, cvpi, percentile string
		)
		if err := rows.Scan(&s.ID, &s.CreatorID, &campaignID, &cost, &impact, &cvpi, &percentile, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.CampaignID = campaignID.String
		var err error
		if s.TotalCost, err = decimal.NewFromString(cost); err != nil {
			return nil, err
		}
		if s.VerifiedImpactScore, err = decimal.NewFromString(impact); err != nil {
			return nil, err
		}
		if s.CVPI, err = decimal.NewFromString(cvpi); err != nil {
			return nil, err
		}
		if s.PercentileRank, err = decimal.NewFromString(percentile); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
