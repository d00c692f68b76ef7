package mcp

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/usecase/memory"
	"github.com/m-mizutani/recall/pkg/utils/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const defaultSearchLimit = 3

type searchParams struct {
	Query string `json:"query" jsonschema:"Text to look up in past conversations"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of memories to return (default 3)"`
}

type appendParams struct {
	Query    string `json:"query" jsonschema:"Question of the exchange"`
	Response string `json:"response" jsonschema:"Answer of the exchange"`
}

// NewServer creates an MCP server exposing the memory to other agents
func NewServer(mem *memory.UseCase) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    implementationName,
		Version: implementationVersion,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_memory",
		Description: "Search past question and answer pairs by keyword similarity, most relevant first",
	}, func(ctx context.Context, req *mcp.CallToolRequest, params *searchParams) (*mcp.CallToolResult, any, error) {
		limit := params.Limit
		if limit <= 0 {
			limit = defaultSearchLimit
		}

		hits, err := mem.Retrieve(ctx, params.Query, limit)
		if err != nil {
			logging.From(ctx).Error("search_memory failed", logging.ErrAttr(err))
			return nil, nil, goerr.Wrap(err, "failed to search memory")
		}

		raw, err := json.Marshal(hits)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to marshal hits")
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(raw)}},
		}, nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "append_memory",
		Description: "Store a question and answer pair so it can be recalled later",
	}, func(ctx context.Context, req *mcp.CallToolRequest, params *appendParams) (*mcp.CallToolResult, any, error) {
		entry, err := mem.Append(ctx, params.Query, params.Response)
		if err != nil {
			logging.From(ctx).Warn("append_memory failed", logging.ErrAttr(err))
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
			}, nil, nil
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "stored memory " + string(entry.ID)}},
		}, nil, nil
	})

	return server
}

// ServeStdio serves the memory over stdin/stdout until ctx is done or the peer
// disconnects
func ServeStdio(ctx context.Context, server *mcp.Server) error {
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return goerr.Wrap(err, "MCP stdio server stopped")
	}
	return nil
}

// HTTPHandler serves the memory over the streamable HTTP transport
func HTTPHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return server
	}, nil)
}
