// Package mcpserver exposes the economics API as MCP tools for LLM agents.
package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all aw3econ tools registered.
func NewMCPServer(cfg Config, version string) *server.MCPServer {
	s := server.NewMCPServer("aw3econ", version, server.WithToolCapabilities(false))
	h := NewHandlers(NewEconClient(cfg))

	s.AddTool(ToolEstimateFees, h.HandleEstimateFees)
	s.AddTool(ToolAcceptEstimate, h.HandleAcceptEstimate)
	s.AddTool(ToolSettlePayment, h.HandleSettlePayment)
	s.AddTool(ToolScoreCVPI, h.HandleScoreCVPI)
	s.AddTool(ToolCreatorHistory, h.HandleCreatorHistory)
	s.AddTool(ToolReputationTier, h.HandleReputationTier)
	s.AddTool(ToolEconomicTables, h.HandleEconomicTables)

	return s
}
