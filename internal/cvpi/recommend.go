package cvpi

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/aw3econ/internal/money"
	"github.com/mbd888/aw3econ/internal/validation"
)

// Campaign is an open campaign a creator could apply to.
type Campaign struct {
	ID                 string          `json:"id"`
	Title              string          `json:"title,omitempty"`
	Category           string          `json:"category,omitempty"`
	Budget             decimal.Decimal `json:"budget"`
	TargetAudience     []string        `json:"targetAudience,omitempty"`
	RequiredReputation decimal.Decimal `json:"requiredReputation"`
	Deadline           *time.Time      `json:"deadline,omitempty"`
}

// CreatorProfile is what the engine knows about a creator when matching.
// A zero AverageCVPI means no history.
type CreatorProfile struct {
	ID                 string          `json:"id,omitempty"`
	AverageCVPI        decimal.Decimal `json:"averageCvpi"`
	CompletedCampaigns int             `json:"completedCampaigns"`
	Audience           []string        `json:"audience,omitempty"`
	CategoryCampaigns  map[string]int  `json:"categoryCampaigns,omitempty"`
	OptimalBudgetMin   decimal.Decimal `json:"optimalBudgetMin"`
	OptimalBudgetMax   decimal.Decimal `json:"optimalBudgetMax"`
	ReputationScore    decimal.Decimal `json:"reputationScore"`
}

// Factors are the five 0-1 match components.
type Factors struct {
	HistoricalFit     decimal.Decimal `json:"historicalFit"`
	AudienceMatch     decimal.Decimal `json:"audienceMatch"`
	BudgetFit         decimal.Decimal `json:"budgetFit"`
	CategoryExpertise decimal.Decimal `json:"categoryExpertise"`
	ReputationMatch   decimal.Decimal `json:"reputationMatch"`
}

// Recommendation is a ranked campaign for a creator. MatchScore orders
// recommendations only; it never feeds a money calculation.
type Recommendation struct {
	Campaign        Campaign        `json:"campaign"`
	MatchScore      decimal.Decimal `json:"matchScore"`
	Factors         Factors         `json:"factors"`
	MatchReasons    []string        `json:"matchReasons"`
	EstimatedCVPI   decimal.Decimal `json:"estimatedCvpi"`
	ProjectedImpact decimal.Decimal `json:"projectedImpact"`
	YourReputation  decimal.Decimal `json:"yourReputation"`
	Eligible        bool            `json:"eligible"`
}

var half = money.MustParse("0.5")

// Factors derives the five match components from the campaign and creator.
func (s *Scorer) Factors(c Campaign, p CreatorProfile) Factors {
	return Factors{
		HistoricalFit:     s.historicalFit(p),
		AudienceMatch:     audienceMatch(c.TargetAudience, p.Audience),
		BudgetFit:         budgetFit(c.Budget, p.OptimalBudgetMin, p.OptimalBudgetMax),
		CategoryExpertise: s.categoryExpertise(c.Category, p.CategoryCampaigns),
		ReputationMatch:   ratioCapped(p.ReputationScore, c.RequiredReputation),
	}
}

// MatchScore is the weighted sum of the factors, in [0,1] at four places.
func (s *Scorer) MatchScore(c Campaign, p CreatorProfile) (decimal.Decimal, Factors) {
	f := s.Factors(c, p)
	w := s.tables.Recommendation
	score := money.Sum(
		f.HistoricalFit.Mul(w.HistoricalWeight),
		f.AudienceMatch.Mul(w.AudienceWeight),
		f.BudgetFit.Mul(w.BudgetWeight),
		f.CategoryExpertise.Mul(w.CategoryWeight),
		f.ReputationMatch.Mul(w.ReputationWeight),
	)
	return money.Round4(money.Clamp(score, decimal.Zero, money.One)), f
}

// historicalFit rewards creators whose average CVPI beats the platform
// average. No history is neutral.
func (s *Scorer) historicalFit(p CreatorProfile) decimal.Decimal {
	if !p.AverageCVPI.IsPositive() {
		return half
	}
	avg := s.tables.Recommendation.PlatformAverageCVPI
	return money.Clamp(avg.DivRound(p.AverageCVPI, money.IndexPlaces), decimal.Zero, money.One)
}

func audienceMatch(target, audience []string) decimal.Decimal {
	if len(target) == 0 {
		return money.One
	}
	have := make(map[string]bool, len(audience))
	for _, a := range audience {
		have[strings.ToLower(strings.TrimSpace(a))] = true
	}
	hits := 0
	for _, t := range target {
		if have[strings.ToLower(strings.TrimSpace(t))] {
			hits++
		}
	}
	return decimal.NewFromInt(int64(hits)).DivRound(decimal.NewFromInt(int64(len(target))), money.IndexPlaces)
}

// budgetFit is 1 inside the creator's optimal range and decays with the
// ratio outside it. An unset range is neutral.
func budgetFit(budget, lo, hi decimal.Decimal) decimal.Decimal {
	if !hi.IsPositive() || !budget.IsPositive() {
		return half
	}
	switch {
	case budget.LessThan(lo):
		return budget.DivRound(lo, money.IndexPlaces)
	case budget.GreaterThan(hi):
		return hi.DivRound(budget, money.IndexPlaces)
	default:
		return money.One
	}
}

func (s *Scorer) categoryExpertise(category string, counts map[string]int) decimal.Decimal {
	expertAt := s.tables.Recommendation.CategoryExpertAt
	if category == "" || expertAt <= 0 {
		return decimal.Zero
	}
	n := 0
	for k, v := range counts {
		if strings.EqualFold(k, category) {
			n += v
		}
	}
	return ratioCapped(decimal.NewFromInt(int64(n)), decimal.NewFromInt(int64(expertAt)))
}

// ratioCapped returns min(have/need, 1); a non-positive need is fully met.
func ratioCapped(have, need decimal.Decimal) decimal.Decimal {
	if !need.IsPositive() {
		return money.One
	}
	if have.IsNegative() {
		return decimal.Zero
	}
	return money.Min(have.DivRound(need, money.IndexPlaces), money.One)
}

// Recommend scores one campaign for a creator.
func (s *Scorer) Recommend(c Campaign, p CreatorProfile) Recommendation {
	score, f := s.MatchScore(c, p)
	avg := p.AverageCVPI
	if !avg.IsPositive() {
		avg = s.tables.Recommendation.PlatformAverageCVPI
	}
	estimated := money.Round4(avg.Mul(s.tables.Recommendation.ProjectionDiscount))
	impact := decimal.Zero
	if estimated.IsPositive() {
		impact = c.Budget.DivRound(estimated, 0)
	}
	return Recommendation{
		Campaign:        c,
		MatchScore:      score,
		Factors:         f,
		MatchReasons:    matchReasons(c, f, estimated),
		EstimatedCVPI:   estimated,
		ProjectedImpact: impact,
		YourReputation:  p.ReputationScore,
		Eligible:        p.ReputationScore.GreaterThanOrEqual(c.RequiredReputation),
	}
}

func matchReasons(c Campaign, f Factors, estimated decimal.Decimal) []string {
	var reasons []string
	if f.CategoryExpertise.GreaterThanOrEqual(half) && c.Category != "" {
		reasons = append(reasons, fmt.Sprintf("Track record in %s campaigns", c.Category))
	}
	if f.BudgetFit.Equal(money.One) {
		reasons = append(reasons, "Budget within your optimal range")
	}
	if f.AudienceMatch.GreaterThanOrEqual(half) && len(c.TargetAudience) > 0 {
		reasons = append(reasons, "Audience overlaps campaign targets")
	}
	if f.HistoricalFit.Equal(money.One) {
		reasons = append(reasons, "Historical CVPI beats platform average")
	}
	reasons = append(reasons, "Projected CVPI: "+estimated.StringFixed(2))
	return reasons
}

// Rank scores campaigns and returns the top limit by descending match
// score. Equal scores keep input order. limit <= 0 returns all.
func (s *Scorer) Rank(campaigns []Campaign, p CreatorProfile, limit int) ([]Recommendation, error) {
	var validators []func() *validation.ValidationError
	for _, c := range campaigns {
		validators = append(validators, validation.NonNegative("campaigns.budget", c.Budget))
	}
	if err := validation.Check(validators...); err != nil {
		return nil, err
	}
	recs := make([]Recommendation, 0, len(campaigns))
	for _, c := range campaigns {
		recs = append(recs, s.Recommend(c, p))
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].MatchScore.GreaterThan(recs[j].MatchScore)
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}
