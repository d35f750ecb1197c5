// Package mcp exposes search and query as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/kailas-cloud/flatrag/internal/domain/search/filter"
	"github.com/kailas-cloud/flatrag/internal/domain/search/result"
	queryuc "github.com/kailas-cloud/flatrag/internal/usecase/query"
	"github.com/kailas-cloud/flatrag/internal/version"
)

// Engine is the set of operations exposed as tools.
type Engine interface {
	Search(ctx context.Context, topic, question string, filters filter.Set) ([]result.ScoredChunk, error)
	Query(ctx context.Context, topic, question string, filters filter.Set) (string, error)
	QueryRaw(ctx context.Context, topic, question string, filters filter.Set) (queryuc.RawResult, error)
}

// Tool names.
const (
	ToolSearch = "search"
	ToolQuery  = "query"
)

type handlers struct {
	engine Engine
	logger *zap.Logger
}

// NewServer creates an MCP server with the search and query tools.
func NewServer(engine Engine, logger *zap.Logger) *server.MCPServer {
	h := &handlers{engine: engine, logger: logger}

	srv := server.NewMCPServer("flatrag", version.Version, server.WithToolCapabilities(false))
	srv.AddTool(mcp.NewTool(ToolSearch,
		mcp.WithDescription("Rank the stored chunks of a topic against a question"),
		topicArg(), questionArg(), filtersArg(),
	), h.search)
	srv.AddTool(mcp.NewTool(ToolQuery,
		mcp.WithDescription("Answer a question from the chunks of a topic"),
		topicArg(), questionArg(), filtersArg(),
		mcp.WithBoolean("raw",
			mcp.Description("Return chunks, prompt and response as JSON instead of text"),
		),
	), h.query)

	return srv
}

func topicArg() mcp.ToolOption {
	return mcp.WithString("topic", mcp.Required(), mcp.Description("Topic to search"))
}

func questionArg() mcp.ToolOption {
	return mcp.WithString("question", mcp.Required(), mcp.Description("Natural-language question"))
}

func filtersArg() mcp.ToolOption {
	return mcp.WithString("filters",
		mcp.Description("Metadata filters, one expression per line, e.g. category=pets"),
	)
}

func (h *handlers) search(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topic, question, filters, errResult := h.args(req)
	if errResult != nil {
		return errResult, nil
	}

	chunks, err := h.engine.Search(ctx, topic, question, filters)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	for _, c := range chunks {
		raw, err := json.Marshal(struct {
			Score    float64        `json:"score"`
			Distance float64        `json:"distance"`
			Text     string         `json:"text"`
			Meta     map[string]any `json:"meta"`
		}{
			Score:    c.Score,
			Distance: c.Distance,
			Text:     c.Text,
			Meta:     c.Meta,
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		b.Write(raw)
		b.WriteByte('\n')
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (h *handlers) query(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topic, question, filters, errResult := h.args(req)
	if errResult != nil {
		return errResult, nil
	}

	if !req.GetBool("raw", false) {
		answer, err := h.engine.Query(ctx, topic, question, filters)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(answer), nil
	}

	res, err := h.engine.QueryRaw(ctx, topic, question, filters)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}

// args extracts the common tool arguments. Malformed filters are dropped and logged.
func (h *handlers) args(req mcp.CallToolRequest) (string, string, filter.Set, *mcp.CallToolResult) {
	topic, err := req.RequireString("topic")
	if err != nil {
		return "", "", nil, mcp.NewToolResultError(err.Error())
	}
	question, err := req.RequireString("question")
	if err != nil {
		return "", "", nil, mcp.NewToolResultError(err.Error())
	}

	var exprs []string
	for _, line := range strings.Split(req.GetString("filters", ""), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			exprs = append(exprs, line)
		}
	}
	filters, diags := filter.ParseAll(exprs)
	for _, d := range diags {
		h.logger.Warn("Dropped malformed filter", zap.Error(d))
	}
	return topic, question, filters, nil
}
