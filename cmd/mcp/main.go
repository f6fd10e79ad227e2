// aw3econ MCP server - exposes fee, settlement, CVPI and reputation
// calculations as MCP tools over stdio.
package main

import (
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/aw3econ/internal/logging"
	"github.com/mbd888/aw3econ/internal/mcpserver"
)

// Version is set by ldflags.
var Version = "dev"

func main() {
	// stdout carries the MCP protocol, so logs go to stderr.
	logger := logging.NewWriter(os.Stderr, envOrDefault("LOG_LEVEL", "info"), "text")

	cfg := mcpserver.Config{
		APIURL: envOrDefault("AW3ECON_API_URL", "http://localhost:8080"),
	}
	logger.Info("starting MCP server", "api_url", cfg.APIURL, "version", Version)

	s := mcpserver.NewMCPServer(cfg, Version)
	if err := server.ServeStdio(s); err != nil {
		logger.Error("MCP server error", "error", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
