package fees

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PostgresQuoteStore persists quotes in PostgreSQL. The estimate is stored
// as JSONB so decimal strings round-trip unchanged.
type PostgresQuoteStore struct {
	db *sql.DB
}

// NewPostgresQuoteStore creates a PostgreSQL-backed quote store.
func NewPostgresQuoteStore(db *sql.DB) *PostgresQuoteStore {
	return &PostgresQuoteStore{db: db}
}

func (p *PostgresQuoteStore) Save(ctx context.Context, q *Quote) error {
	est, err := json.Marshal(q.Estimate)
	if err != nil {
		return fmt.Errorf("encode estimate: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO fee_quotes (id, payer_addr, estimate, signature, valid_until, accepted_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		q.ID(), nullString(q.PayerAddr), est, nullString(q.Signature),
		q.Estimate.ValidUntil, nullTime(q.AcceptedAt), q.Estimate.CreatedAt,
	)
	return err
}

func (p *PostgresQuoteStore) Get(ctx context.Context, id string) (*Quote, error) {
	var (
		q          Quote
		est        []byte
		payer, sig sql.NullString
		accepted   sql.NullTime
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT estimate, payer_addr, signature, accepted_at
		FROM fee_quotes WHERE id = $1`, id,
	).Scan(&est, &payer, &sig, &accepted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrQuoteNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(est, &q.Estimate); err != nil {
		return nil, fmt.Errorf("decode estimate %s: %w", id, err)
	}
	q.PayerAddr = payer.String
	q.Signature = sig.String
	if accepted.Valid {
		at := accepted.Time
		q.AcceptedAt = &at
	}
	return &q, nil
}

func (p *PostgresQuoteStore) MarkAccepted(ctx context.Context, id string, at time.Time) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE fee_quotes SET accepted_at = $1
		WHERE id = $2 AND accepted_at IS NULL`, at, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 1 {
		return nil
	}
	if _, err := p.Get(ctx, id); err != nil {
		return err
	}
	return ErrAlreadyAccepted
}

func (p *PostgresQuoteStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := p.db.ExecContext(ctx, `DELETE FROM fee_quotes WHERE valid_until < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
