package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the aw3econ MCP server.
// Descriptions are what the LLM reads to decide which tool to use.
// Money values are decimal strings so no precision is lost in transit.

var ToolEstimateFees = mcp.NewTool("estimate_fees",
	mcp.WithDescription(
		"Estimate the platform service fee, oracle verification fee and total escrow a project must fund "+
			"for a campaign. Returns a signed estimate valid for 24 hours; pass its id and signature to "+
			"accept_estimate to lock it in."),
	mcp.WithString("budget_amount",
		mcp.Required(),
		mcp.Description("Campaign budget in USDC (e.g. '4000')")),
	mcp.WithNumber("participants",
		mcp.Description("Number of creators taking part (default 1)")),
	mcp.WithString("complexity",
		mcp.Description("Campaign complexity. Unknown values are treated as standard."),
		mcp.Enum("simple", "standard", "complex", "enterprise")),
	mcp.WithString("cumulative_spend",
		mcp.Description("The project's lifetime spend in USDC, used for the loyalty discount (default '0')")),
	mcp.WithString("reputation_score",
		mcp.Description("The project's reputation score, used for the reputation discount")),
	mcp.WithBoolean("pay_with_platform_token",
		mcp.Description("Apply the platform token payment discount")),
	mcp.WithArray("kpi_metrics",
		mcp.Description("KPI metrics to verify, e.g. [{\"source\": \"twitter\", \"weight\": \"0.5\"}]. Each adds oracle cost."),
		mcp.Items(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"source": map[string]any{"type": "string"},
				"weight": map[string]any{"type": "string"},
			},
		})),
	mcp.WithString("payer_address",
		mcp.Description("Optional payer wallet address (0x...) to bind to the estimate")),
)

var ToolAcceptEstimate = mcp.NewTool("accept_estimate",
	mcp.WithDescription(
		"Accept a fee estimate returned by estimate_fees. Fails if the estimate expired, "+
			"was already accepted, or the signature does not match."),
	mcp.WithString("estimate_id",
		mcp.Required(),
		mcp.Description("The estimate id from estimate_fees")),
	mcp.WithString("signature",
		mcp.Description("The signature returned with the estimate")),
)

var ToolSettlePayment = mcp.NewTool("settle_payment",
	mcp.WithDescription(
		"Compute the performance-adjusted payout for a completed deliverable. Payment scales with KPI "+
			"achievement (capped at 150%), then the platform fee is deducted and split across the platform "+
			"treasury, validators, AI ecosystem fund, DAO treasury and token buyback. "+
			"Give either achievement_pct or kpis, not both."),
	mcp.WithString("base_amount",
		mcp.Required(),
		mcp.Description("Agreed base payment in USDC (e.g. '5000')")),
	mcp.WithString("achievement_pct",
		mcp.Description("Overall KPI achievement percentage (e.g. '116.3')")),
	mcp.WithArray("kpis",
		mcp.Description("Per-KPI achievement records: [{\"metric\", \"targetValue\", \"actualValue\", \"weight\"}] with decimal strings"),
		mcp.Items(map[string]any{"type": "object"})),
	mcp.WithString("fee_rate",
		mcp.Description("Platform fee rate override (e.g. '0.04')")),
	mcp.WithString("creator_score",
		mcp.Description("Creator reputation score; higher tiers get a fee discount")),
	mcp.WithString("creator_address",
		mcp.Description("Creator wallet address (0x...)")),
)

var ToolScoreCVPI = mcp.NewTool("score_cvpi",
	mcp.WithDescription(
		"Score cost efficiency (CVPI = total cost / verified impact; lower is better) for a deliverable "+
			"and place it in the platform percentile distribution. With a creator_id the score is recorded "+
			"in the creator's history."),
	mcp.WithString("total_cost",
		mcp.Required(),
		mcp.Description("Total cost in USDC")),
	mcp.WithString("verified_impact_score",
		mcp.Required(),
		mcp.Description("Oracle-verified impact score (must be greater than zero)")),
	mcp.WithString("creator_id",
		mcp.Description("Creator identifier to record the score against")),
	mcp.WithString("campaign_id",
		mcp.Description("Campaign identifier")),
)

var ToolCreatorHistory = mcp.NewTool("creator_cvpi_history",
	mcp.WithDescription(
		"Get a creator's CVPI history with average, best and worst scores and the trend."),
	mcp.WithString("creator_id",
		mcp.Required(),
		mcp.Description("Creator identifier")),
	mcp.WithString("period",
		mcp.Description("History window (default 30d)"),
		mcp.Enum("7d", "30d", "90d", "1y")),
)

var ToolReputationTier = mcp.NewTool("reputation_tier",
	mcp.WithDescription(
		"Look up the reputation tier, benefits, fee discount and next-tier target for a score."),
	mcp.WithString("score",
		mcp.Required(),
		mcp.Description("Reputation score (0-1000 on the creator scale)")),
	mcp.WithString("scale",
		mcp.Description("Which scale to evaluate on (default creator)"),
		mcp.Enum("creator", "generic")),
)

var ToolEconomicTables = mcp.NewTool("economic_tables",
	mcp.WithDescription(
		"Show the effective fee tiers, rates and thresholds the engine computes with."),
)
