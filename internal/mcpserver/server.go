// Package mcpserver exposes the analytics dispatcher as MCP tools so assistants
// can ask storefront questions in plain language.
package mcpserver

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/judyrop/storefront-analytics/internal/analytics"
	"github.com/judyrop/storefront-analytics/internal/querystats"
)

const (
	serverName    = "storefront-analytics"
	serverVersion = "1.0.0"
)

// New builds a server with the analytics_query, analytics_kinds and
// realtime_summary tools.
func New(d *analytics.Dispatcher, log *zap.Logger) *server.MCPServer {
	s := server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false))
	AddQueryTool(s, d, log)
	AddKindsTool(s)
	AddRealtimeTool(s, d, log)
	return s
}

func AddQueryTool(s *server.MCPServer, d *analytics.Dispatcher, log *zap.Logger) {
	tool := mcp.NewTool(
		"analytics_query",
		mcp.WithDescription(`Answer a storefront analytics question written in plain English.

Recognised phrasings include "monthly orders", "top selling products", "orders from <place>",
"peak months", "average order value", "customer spending patterns", "product performance in <place>",
"inventory alerts", "sales trends", "popular product combinations", "category performance <name>",
"customer retention", "price sensitivity", "seasonal trends", "customer lifetime value" and
"product affinity". The result is a JSON report, or {"error": "Query not understood"}.`),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The question, e.g. \"orders from Paris\"")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)
	s.AddTool(tool, queryHandler(d, log))
}

func queryHandler(d *analytics.Dispatcher, log *zap.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if strings.TrimSpace(query) == "" {
			return mcp.NewToolResultError("No query provided"), nil
		}

		resp, err := d.HandleQuery(ctx, query)
		if err != nil {
			log.Error("MCP analytics query failed", zap.String("query", query), zap.Error(err))
			return mcp.NewToolResultError("Failed to run analytics query"), nil
		}
		return jsonResult(resp)
	}
}

func AddKindsTool(s *server.MCPServer) {
	tool := mcp.NewTool(
		"analytics_kinds",
		mcp.WithDescription("List the report kinds analytics_query can route to, in matching order."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(map[string]any{"kinds": analytics.Kinds()})
	})
}

func AddRealtimeTool(s *server.MCPServer, d *analytics.Dispatcher, log *zap.Logger) {
	tool := mcp.NewTool(
		"realtime_summary",
		mcp.WithDescription("Today's revenue, this month's revenue and orders, today's conversion rate and today's best sellers."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(tool, realtimeHandler(d, log))
}

func realtimeHandler(d *analytics.Dispatcher, log *zap.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		summary, err := d.Realtime(ctx)
		if err != nil {
			log.Error("MCP realtime summary failed", zap.Error(err))
			return mcp.NewToolResultError("Failed to compute realtime summary"), nil
		}
		return jsonResult(summary)
	}
}

// AddStatsTool exposes per-kind latency summaries recorded by stats.
func AddStatsTool(s *server.MCPServer, stats *querystats.Recorder) {
	tool := mcp.NewTool(
		"query_stats",
		mcp.WithDescription("Per report kind: query count, error count and latency percentiles in milliseconds since the server started."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(tool, statsHandler(stats))
}

func statsHandler(stats *querystats.Recorder) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(map[string]any{"kinds": stats.Snapshot()})
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}
