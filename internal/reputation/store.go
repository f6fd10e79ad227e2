package reputation

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Record is one logged adjustment.
type Record struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Scale  string `json:"scale"`
	Reason string `json:"reason,omitempty"`
	Adjustment
	CreatedAt time.Time `json:"createdAt"`
}

// AdjustmentStore keeps an audit log of applied adjustments.
type AdjustmentStore interface {
	Save(ctx context.Context, r *Record) error
	// ListByUser returns a user's adjustments, most recent first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*Record, error)
}

// MemoryAdjustmentStore implements AdjustmentStore in memory.
type MemoryAdjustmentStore struct {
	mu      sync.RWMutex
	records []*Record
}

// NewMemoryAdjustmentStore creates an in-memory adjustment log.
func NewMemoryAdjustmentStore() *MemoryAdjustmentStore {
	return &MemoryAdjustmentStore{}
}

func (m *MemoryAdjustmentStore) Save(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	cp := *r
	m.records = append(m.records, &cp)
	return nil
}

func (m *MemoryAdjustmentStore) ListByUser(_ context.Context, userID string, limit int) ([]*Record, error) {
	m.mu.RLock()
	var results []*Record
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].UserID == userID {
			cp := *m.records[i]
			results = append(results, &cp)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// PostgresAdjustmentStore implements AdjustmentStore backed by PostgreSQL.
type PostgresAdjustmentStore struct {
	db *sql.DB
}

// NewPostgresAdjustmentStore creates a PostgreSQL-backed adjustment log.
func NewPostgresAdjustmentStore(db *sql.DB) *PostgresAdjustmentStore {
	return &PostgresAdjustmentStore{db: db}
}

func (p *PostgresAdjustmentStore) Save(ctx context.Context, r *Record) error {
	const q = `
		INSERT INTO reputation_adjustments
			(id, user_id, scale, previous_score, delta, new_score,
			 previous_tier, new_tier, reason, approval_ref)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at`

	return p.db.QueryRowContext(ctx, q,
		r.ID, r.UserID, r.Scale,
		r.PreviousScore.String(), r.Delta.String(), r.NewScore.String(),
		r.PreviousTier, r.NewTier,
		nullString(r.Reason), nullString(r.ApprovalRef),
	).Scan(&r.CreatedAt)
}

func (p *PostgresAdjustmentStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, scale, previous_score, delta, new_score,
		       previous_tier, new_tier, reason, approval_ref, created_at
		FROM reputation_adjustments
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []*Record
	for rows.Next() {
		var (
			r                    Record
			prev, delta, current string
			reason, approvalRef  sql.NullString
		)
		if err := rows.Scan(
			&r.ID, &r.UserID, &r.Scale, &prev, &delta, &current,
			&r.PreviousTier, &r.NewTier, &reason, &approvalRef, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		if r.PreviousScore, err = decimal.NewFromString(prev); err != nil {
			return nil, err
		}
		if r.Delta, err = decimal.NewFromString(delta); err != nil {
			return nil, err
		}
		if r.NewScore, err = decimal.NewFromString(current); err != nil {
			return nil, err
		}
		r.Reason = reason.String
		r.ApprovalRef = approvalRef.String
		r.TierChanged = r.PreviousTier != r.NewTier
		results = append(results, &r)
	}
	return results, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var (
	_ AdjustmentStore = (*MemoryAdjustmentStore)(nil)
	_ AdjustmentStore = (*PostgresAdjustmentStore)(nil)
)
