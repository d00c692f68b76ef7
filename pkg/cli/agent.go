package cli

import (
	"context"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/service/mcp"
	"github.com/m-mizutani/recall/pkg/tool"
	"github.com/m-mizutani/recall/pkg/tool/fetch"
	"github.com/m-mizutani/recall/pkg/tool/search"
	"github.com/m-mizutani/recall/pkg/usecase/agent"
	"github.com/m-mizutani/recall/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// agentOptions are flags shared by ask and chat
type agentOptions struct {
	topK     int64
	maxSteps int64

	mcpProvider *mcp.Provider
	registry    *tool.Registry
}

func newAgentOptions() *agentOptions {
	provider := mcp.NewProvider()
	return &agentOptions{
		mcpProvider: provider,
		registry:    tool.New(fetch.New(), search.New(), provider),
	}
}

func (x *agentOptions) Flags() []cli.Flag {
	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "top-k",
			Usage:       "Number of memories injected into the prompt",
			Value:       agent.DefaultTopK,
			Sources:     cli.EnvVars("RECALL_TOP_K"),
			Destination: &x.topK,
		},
		&cli.IntFlag{
			Name:        "max-steps",
			Usage:       "Maximum number of model calls per question",
			Value:       agent.DefaultMaxSteps,
			Sources:     cli.EnvVars("RECALL_MAX_STEPS"),
			Destination: &x.maxSteps,
		},
	}
	return append(flags, x.registry.Flags()...)
}

// newAgent initializes tools and builds the agent. Progress of tool calls is
// written to output.
func (x *agentOptions) newAgent(ctx context.Context, cfg *config, env *env, output io.Writer) (*agent.UseCase, error) {
	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Gemini client")
	}

	if err := x.registry.Init(ctx, &tool.Client{Memory: env.memory}); err != nil {
		return nil, goerr.Wrap(err, "failed to initialize tools")
	}
	logging.From(ctx).Debug("tools enabled", "names", x.registry.Names())

	return agent.New(gemini, env.memory,
		agent.WithRegistry(x.registry),
		agent.WithTopK(int(x.topK)),
		agent.WithMaxSteps(int(x.maxSteps)),
		agent.WithOutput(output),
	), nil
}

func (x *agentOptions) Close(ctx context.Context) {
	if err := x.mcpProvider.Close(); err != nil {
		logging.From(ctx).Warn("failed to close MCP connections", logging.ErrAttr(err))
	}
}
