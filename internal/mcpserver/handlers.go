package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *EconClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *EconClient) *Handlers {
	return &Handlers{client: client}
}

// HandleEstimateFees builds a fee estimate request from tool arguments.
func (h *Handlers) HandleEstimateFees(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	budget := req.GetString("budget_amount", "")
	if budget == "" {
		return mcp.NewToolResultError("budget_amount is required"), nil
	}

	payer := map[string]any{"cumulativeSpend": req.GetString("cumulative_spend", "0")}
	if v := req.GetString("reputation_score", ""); v != "" {
		payer["reputationScore"] = v
	}
	body := map[string]any{
		"budgetAmount":         budget,
		"numberOfParticipants": req.GetInt("participants", 1),
		"complexityTag":        req.GetString("complexity", ""),
		"payWithPlatformToken": req.GetBool("pay_with_platform_token", false),
		"payer":                payer,
	}
	if metrics := objectList(req.GetArguments()["kpi_metrics"]); len(metrics) > 0 {
		body["kpiMetrics"] = metrics
	}
	if v := req.GetString("payer_address", ""); v != "" {
		body["payerAddr"] = v
	}

	raw, err := h.client.EstimateFees(ctx, body)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to estimate fees: %v", err)), nil
	}
	text, err := formatEstimate(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse estimate: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleAcceptEstimate accepts a signed estimate.
func (h *Handlers) HandleAcceptEstimate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("estimate_id", "")
	if id == "" {
		return mcp.NewToolResultError("estimate_id is required"), nil
	}

	raw, err := h.client.AcceptEstimate(ctx, id, req.GetString("signature", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to accept estimate: %v", err)), nil
	}

	var resp struct {
		Quote struct {
			Estimate   estimateView `json:"estimate"`
			AcceptedAt string       `json:"acceptedAt"`
		} `json:"quote"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse quote: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Estimate %s accepted at %s.\nFund %s USDC into escrow.",
		resp.Quote.Estimate.ID, resp.Quote.AcceptedAt, resp.Quote.Estimate.TotalEscrowRequired)), nil
}

// HandleSettlePayment computes a settlement.
func (h *Handlers) HandleSettlePayment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	base := req.GetString("base_amount", "")
	if base == "" {
		return mcp.NewToolResultError("base_amount is required"), nil
	}

	body := map[string]any{"baseAmount": base}
	optional := map[string]string{
		"achievement_pct": "achievementPct",
		"fee_rate":        "feeRate",
		"creator_score":   "creatorScore",
		"creator_address": "creatorAddr",
	}
	for arg, field := range optional {
		if v := req.GetString(arg, ""); v != "" {
			body[field] = v
		}
	}
	if kpis := objectList(req.GetArguments()["kpis"]); len(kpis) > 0 {
		body["kpis"] = kpis
	}

	raw, err := h.client.Settle(ctx, body)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to settle: %v", err)), nil
	}
	text, err := formatSettlement(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse settlement: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleScoreCVPI scores a deliverable.
func (h *Handlers) HandleScoreCVPI(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cost := req.GetString("total_cost", "")
	impact := req.GetString("verified_impact_score", "")
	if cost == "" || impact == "" {
		return mcp.NewToolResultError("total_cost and verified_impact_score are required"), nil
	}

	body := map[string]any{
		"totalCost":           cost,
		"verifiedImpactScore": impact,
		"creatorId":           req.GetString("creator_id", ""),
		"campaignId":          req.GetString("campaign_id", ""),
	}
	raw, err := h.client.ScoreCVPI(ctx, body)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to score CVPI: %v", err)), nil
	}

	var resp struct {
		Score struct {
			ID             string `json:"id"`
			CVPI           string `json:"cvpi"`
			PercentileRank string `json:"percentileRank"`
		} `json:"score"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse score: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "CVPI: %s (lower is better)\n", resp.Score.CVPI)
	fmt.Fprintf(&sb, "Percentile rank: %s\n", resp.Score.PercentileRank)
	if resp.Score.ID != "" {
		fmt.Fprintf(&sb, "Recorded as %s\n", resp.Score.ID)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleCreatorHistory summarizes a creator's CVPI history.
func (h *Handlers) HandleCreatorHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("creator_id", "")
	if id == "" {
		return mcp.NewToolResultError("creator_id is required"), nil
	}

	raw, err := h.client.CreatorHistory(ctx, id, req.GetString("period", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load history: %v", err)), nil
	}

	var resp struct {
		History struct {
			Period     string            `json:"period"`
			DataPoints []json.RawMessage `json:"dataPoints"`
			Summary    struct {
				AverageCVPI    string `json:"averageCvpi"`
				BestCVPI       string `json:"bestCvpi"`
				WorstCVPI      string `json:"worstCvpi"`
				TotalCampaigns int    `json:"totalCampaigns"`
				Trend          string `json:"trend"`
			} `json:"summary"`
		} `json:"history"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse history: %v", err)), nil
	}
	hist := resp.History
	if len(hist.DataPoints) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No CVPI scores for %s in the last %s.", id, hist.Period)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "CVPI history for %s (%s, %d scores):\n", id, hist.Period, len(hist.DataPoints))
	fmt.Fprintf(&sb, "  Average: %s\n", hist.Summary.AverageCVPI)
	fmt.Fprintf(&sb, "  Best:    %s\n", hist.Summary.BestCVPI)
	fmt.Fprintf(&sb, "  Worst:   %s\n", hist.Summary.WorstCVPI)
	fmt.Fprintf(&sb, "  Trend:   %s\n", hist.Summary.Trend)
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleReputationTier evaluates a reputation score.
func (h *Handlers) HandleReputationTier(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	score := req.GetString("score", "")
	if score == "" {
		return mcp.NewToolResultError("score is required"), nil
	}

	raw, err := h.client.EvaluateReputation(ctx, req.GetString("scale", ""), score)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to evaluate reputation: %v", err)), nil
	}
	text, err := formatReputation(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse reputation: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleEconomicTables returns the effective tables as JSON.
func (h *Handlers) HandleEconomicTables(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.Info(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load tables: %v", err)), nil
	}
	var resp struct {
		Tables json.RawMessage `json:"tables"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Tables == nil {
		return mcp.NewToolResultError("Unexpected info response format"), nil
	}
	return mcp.NewToolResultText(formatJSON(resp.Tables)), nil
}

// -----------------------------------------------------------------------------
// Formatting
// -----------------------------------------------------------------------------

type estimateView struct {
	ID                     string `json:"id"`
	BudgetAmount           string `json:"budgetAmount"`
	BaseRate               string `json:"baseRate"`
	ComplexityMultiplier   string `json:"complexityMultiplier"`
	ReputationDiscountRate string `json:"reputationDiscountRate"`
	TokenDiscountAmount    string `json:"tokenDiscountAmount"`
	FinalServiceFee        string `json:"finalServiceFee"`
	OracleFee              string `json:"oracleFee"`
	TotalFees              string `json:"totalFees"`
	EscrowBuffer           string `json:"escrowBuffer"`
	TotalEscrowRequired    string `json:"totalEscrowRequired"`
	ValidUntil             string `json:"validUntil"`
}

func formatEstimate(raw json.RawMessage) (string, error) {
	var resp struct {
		Estimate  estimateView `json:"estimate"`
		Signature string       `json:"signature"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	e := resp.Estimate

	var sb strings.Builder
	fmt.Fprintf(&sb, "Fee estimate %s for a %s USDC budget:\n", e.ID, e.BudgetAmount)
	fmt.Fprintf(&sb, "  Base rate:          %s\n", e.BaseRate)
	fmt.Fprintf(&sb, "  Complexity:         x%s\n", e.ComplexityMultiplier)
	if !isZero(e.ReputationDiscountRate) {
		fmt.Fprintf(&sb, "  Reputation discount: %s\n", e.ReputationDiscountRate)
	}
	if !isZero(e.TokenDiscountAmount) {
		fmt.Fprintf(&sb, "  Token discount:     -%s USDC\n", e.TokenDiscountAmount)
	}
	fmt.Fprintf(&sb, "  Service fee:        %s USDC\n", e.FinalServiceFee)
	fmt.Fprintf(&sb, "  Oracle fee:         %s USDC\n", e.OracleFee)
	fmt.Fprintf(&sb, "  Total fees:         %s USDC\n", e.TotalFees)
	fmt.Fprintf(&sb, "  Escrow buffer:      %s USDC\n", e.EscrowBuffer)
	fmt.Fprintf(&sb, "  Total escrow:       %s USDC\n", e.TotalEscrowRequired)
	fmt.Fprintf(&sb, "Valid until %s.\n", e.ValidUntil)
	if resp.Signature != "" {
		fmt.Fprintf(&sb, "Signature: %s\n", resp.Signature)
	}
	return sb.String(), nil
}

func formatSettlement(raw json.RawMessage) (string, error) {
	var resp struct {
		Settlement struct {
			AchievementPct        string `json:"achievementPct"`
			AchievementMultiplier string `json:"achievementMultiplier"`
			Capped                bool   `json:"capped"`
			CalculatedPayment     string `json:"calculatedPayment"`
			FeeRate               string `json:"feeRate"`
			PlatformFee           string `json:"platformFee"`
			NetToCreator          string `json:"netToCreator"`
			RefundToProject       string `json:"refundToProject"`
			Distribution          struct {
				Breakdown map[string]string `json:"breakdown"`
			} `json:"distribution"`
		} `json:"settlement"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	s := resp.Settlement

	var sb strings.Builder
	fmt.Fprintf(&sb, "Achievement: %s%% (multiplier %s", s.AchievementPct, s.AchievementMultiplier)
	if s.Capped {
		sb.WriteString(", capped")
	}
	sb.WriteString(")\n")
	fmt.Fprintf(&sb, "Calculated payment: %s USDC\n", s.CalculatedPayment)
	fmt.Fprintf(&sb, "Platform fee (%s): %s USDC\n", s.FeeRate, s.PlatformFee)
	fmt.Fprintf(&sb, "Net to creator: %s USDC\n", s.NetToCreator)
	if !isZero(s.RefundToProject) {
		fmt.Fprintf(&sb, "Refund to project: %s USDC\n", s.RefundToProject)
	}
	if len(s.Distribution.Breakdown) > 0 {
		sb.WriteString("Fee distribution:\n")
		layers := make([]string, 0, len(s.Distribution.Breakdown))
		for layer := range s.Distribution.Breakdown {
			layers = append(layers, layer)
		}
		sort.Strings(layers)
		for _, layer := range layers {
			fmt.Fprintf(&sb, "  %s: %s\n", layer, s.Distribution.Breakdown[layer])
		}
	}
	return sb.String(), nil
}

func formatReputation(raw json.RawMessage) (string, error) {
	var resp struct {
		Reputation struct {
			Scale      string `json:"scale"`
			Score      string `json:"score"`
			Tier       string `json:"tier"`
			Percentile string `json:"percentile"`
			Benefits   struct {
				FeeDiscount           string `json:"feeDiscount"`
				PriorityApplications  bool   `json:"priorityApplications"`
				HigherPayoutPotential bool   `json:"higherPayoutPotential"`
				ExclusiveCampaigns    bool   `json:"exclusiveCampaigns"`
			} `json:"benefits"`
			NextTier *struct {
				Tier               string `json:"tier"`
				PointsNeeded       string `json:"pointsNeeded"`
				EstimatedCampaigns int64  `json:"estimatedCampaigns"`
			} `json:"nextTier"`
		} `json:"reputation"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	r := resp.Reputation

	var sb strings.Builder
	fmt.Fprintf(&sb, "Reputation %s on the %s scale: tier %s\n", r.Score, r.Scale, r.Tier)
	if !isZero(r.Percentile) {
		fmt.Fprintf(&sb, "  Percentile: %s\n", r.Percentile)
	}
	fmt.Fprintf(&sb, "  Fee discount: %s\n", r.Benefits.FeeDiscount)
	var perks []string
	if r.Benefits.PriorityApplications {
		perks = append(perks, "priority applications")
	}
	if r.Benefits.HigherPayoutPotential {
		perks = append(perks, "higher payout potential")
	}
	if r.Benefits.ExclusiveCampaigns {
		perks = append(perks, "exclusive campaigns")
	}
	if len(perks) > 0 {
		fmt.Fprintf(&sb, "  Perks: %s\n", strings.Join(perks, ", "))
	}
	if r.NextTier == nil {
		sb.WriteString("  Top tier reached.\n")
	} else {
		fmt.Fprintf(&sb, "  Next tier %s in %s points (about %d campaigns)\n",
			r.NextTier.Tier, r.NextTier.PointsNeeded, r.NextTier.EstimatedCampaigns)
	}
	return sb.String(), nil
}

func formatJSON(raw json.RawMessage) string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return string(raw)
	}
	return pretty.String()
}

// objectList keeps the object elements of a JSON array argument.
func objectList(v any) []map[string]any {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func isZero(s string) bool {
	return s == "" || strings.Trim(s, "0.") == ""
}
