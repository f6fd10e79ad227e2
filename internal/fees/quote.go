package fees

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Quote is a stored estimate offered to a payer. A quote is accepted at
// most once, and only while its estimate is fresh.
type Quote struct {
	Estimate   *FeeEstimate `json:"estimate"`
	PayerAddr  string       `json:"payerAddr,omitempty"`
	Signature  string       `json:"signature,omitempty"`
	AcceptedAt *time.Time   `json:"acceptedAt,omitempty"`
}

// ID is the estimate ID.
func (q *Quote) ID() string { return q.Estimate.ID }

// QuoteStore persists quotes.
type QuoteStore interface {
	Save(ctx context.Context, q *Quote) error
	Get(ctx context.Context, id string) (*Quote, error)
	MarkAccepted(ctx context.Context, id string, at time.Time) error
	// DeleteExpired removes quotes whose estimate expired before cutoff and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// signedFields is the canonical payload covered by a quote signature.
type signedFields struct {
	ID                  string `json:"id"`
	PayerAddr           string `json:"payerAddr"`
	BudgetAmount        string `json:"budgetAmount"`
	TotalFees           string `json:"totalFees"`
	EscrowBuffer        string `json:"escrowBuffer"`
	TotalEscrowRequired string `json:"totalEscrowRequired"`
	ValidUntil          int64  `json:"validUntil"`
}

func payloadFor(q *Quote) signedFields {
	e := q.Estimate
	return signedFields{
		ID:                  e.ID,
		PayerAddr:           q.PayerAddr,
		BudgetAmount:        e.BudgetAmount.StringFixed(2),
		TotalFees:           e.TotalFees.StringFixed(2),
		EscrowBuffer:        e.EscrowBuffer.StringFixed(2),
		TotalEscrowRequired: e.TotalEscrowRequired.StringFixed(2),
		ValidUntil:          e.ValidUntil.UnixMilli(),
	}
}

// Signer signs quote payloads with HMAC-SHA256 so a funding rail can verify
// the amounts it is presented.
type Signer struct {
	secret []byte
}

// NewSigner creates a new HMAC signer. If secret is empty, signing is disabled.
func NewSigner(secret string) *Signer {
	if secret == "" {
		return nil
	}
	return &Signer{secret: []byte(secret)}
}

// Sign returns the hex HMAC of the quote's canonical payload.
func (s *Signer) Sign(q *Quote) (string, error) {
	if s == nil {
		return "", nil
	}
	data, err := json.Marshal(payloadFor(q))
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify checks signature against the quote's canonical payload. A nil
// signer accepts everything.
func (s *Signer) Verify(q *Quote, signature string) bool {
	if s == nil {
		return true
	}
	expected, err := s.Sign(q)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}
