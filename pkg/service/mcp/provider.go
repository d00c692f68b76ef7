package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/tool"
	"github.com/m-mizutani/recall/pkg/utils/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

// Provider implements tool.Tool interface for tools of external MCP servers
type Provider struct {
	configPath string
	client     *Client
	tools      []*mcpTool
}

type mcpTool struct {
	serverName string
	mcpTool    *mcp.Tool
	funcDecl   *genai.FunctionDeclaration
}

// NewProvider creates a provider that connects to the servers listed in the
// file given by --mcp-config
func NewProvider() *Provider {
	return &Provider{}
}

// NewProviderWithClient creates a provider on an already connected client
func NewProviderWithClient(client *Client) *Provider {
	return &Provider{client: client}
}

func (p *Provider) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "mcp-config",
			Sources:     cli.EnvVars("RECALL_MCP_CONFIG"),
			Usage:       "YAML file listing MCP servers whose tools the agent may call",
			Destination: &p.configPath,
		},
	}
}

// Init connects to the configured servers and collects their tools. A server
// that cannot be reached is skipped with a warning.
func (p *Provider) Init(ctx context.Context, _ *tool.Client) (bool, error) {
	logger := logging.From(ctx)

	if p.client == nil {
		if p.configPath == "" {
			return false, nil
		}

		cfg, err := LoadConfig(p.configPath)
		if err != nil {
			return false, err
		}

		p.client = NewClient()
		for _, serverCfg := range cfg.Servers {
			if err := p.client.Connect(ctx, serverCfg); err != nil {
				logger.Warn("failed to connect to MCP server", "server", serverCfg.Name, logging.ErrAttr(err))
				continue
			}
			logger.Info("connected to MCP server", "server", serverCfg.Name)
		}
	}

	p.tools = nil
	for _, serverName := range p.client.Servers() {
		tools, err := p.client.Tools(serverName)
		if err != nil {
			return false, goerr.Wrap(err, "failed to get tools from server",
				goerr.V("server", serverName))
		}

		for _, t := range tools {
			funcDecl, err := convertToFunctionDeclaration(t)
			if err != nil {
				return false, goerr.Wrap(err, "failed to convert tool",
					goerr.V("server", serverName),
					goerr.V("tool", t.Name))
			}

			p.tools = append(p.tools, &mcpTool{
				serverName: serverName,
				mcpTool:    t,
				funcDecl:   funcDecl,
			})
		}
	}

	return len(p.tools) > 0, nil
}

// Close disconnects from every server
func (p *Provider) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

func convertToFunctionDeclaration(t *mcp.Tool) (*genai.FunctionDeclaration, error) {
	funcDecl := &genai.FunctionDeclaration{
		Name:        t.Name,
		Description: t.Description,
	}

	if t.InputSchema != nil {
		// InputSchema is untyped on the client side
		schemaJSON, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to marshal input schema")
		}

		var jsSchema jsonschema.Schema
		if err := json.Unmarshal(schemaJSON, &jsSchema); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal input schema")
		}

		schema, err := tool.ConvertSchema(&jsSchema)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to convert input schema")
		}
		funcDecl.Parameters = schema
	}

	return funcDecl, nil
}

func (p *Provider) Spec() *genai.Tool {
	if len(p.tools) == 0 {
		return nil
	}

	funcDecls := make([]*genai.FunctionDeclaration, len(p.tools))
	for i, t := range p.tools {
		funcDecls[i] = t.funcDecl
	}

	return &genai.Tool{
		FunctionDeclarations: funcDecls,
	}
}

func (p *Provider) Prompt(ctx context.Context) string {
	if len(p.tools) == 0 {
		return ""
	}

	return "You also have tools provided by external MCP (Model Context Protocol) servers. Use them when their descriptions match the task."
}

func (p *Provider) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	var target *mcpTool
	for _, t := range p.tools {
		if t.funcDecl.Name == fc.Name {
			target = t
			break
		}
	}

	if target == nil {
		return nil, goerr.Wrap(tool.ErrToolNotFound, "unknown MCP tool", goerr.V("name", fc.Name))
	}

	result, err := p.client.CallTool(ctx, target.serverName, target.mcpTool.Name, fc.Args)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call MCP tool")
	}

	text := resultText(result)
	key := "result"
	if result.IsError {
		key = "error"
	}

	return &genai.FunctionResponse{
		Name:     fc.Name,
		Response: map[string]any{key: text},
	}, nil
}

// resultText joins text contents. Results without text are returned as JSON.
func resultText(result *mcp.CallToolResult) string {
	var texts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	if len(texts) > 0 {
		return strings.Join(texts, "\n")
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return ""
	}
	return string(raw)
}
