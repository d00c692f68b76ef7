package search

import (
	"context"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/tool"
	"github.com/m-mizutani/recall/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

const (
	Name         = "search_memory"
	DefaultLimit = 3
	maxLimit     = 20
)

type searchInput struct {
	Query string `json:"query" jsonschema:"Text to look up in past conversations"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of memories to return (default 3, max 20)"`
}

// Tool lets the model look up past exchanges beyond those injected in the prompt
type Tool struct {
	memory *memory.UseCase
	params *genai.Schema
}

// New creates a new search_memory tool
func New() *Tool {
	return &Tool{}
}

func (x *Tool) Flags() []cli.Flag {
	return nil
}

// Init enables the tool only when a memory use case is available
func (x *Tool) Init(ctx context.Context, client *tool.Client) (bool, error) {
	if client == nil || client.Memory == nil {
		return false, nil
	}
	x.memory = client.Memory

	params, err := tool.ParametersOf[searchInput]()
	if err != nil {
		return false, goerr.Wrap(err, "failed to build search_memory parameters")
	}
	x.params = params

	return true, nil
}

func (x *Tool) Prompt(ctx context.Context) string {
	return "Use the search_memory tool to look up other past conversations with a different query when the memories above are not enough."
}

func (x *Tool) Spec() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        Name,
				Description: "Search past question and answer pairs by keyword similarity. Results are ordered by relevance score between 0 and 1.",
				Parameters:  x.params,
			},
		},
	}
}

func (x *Tool) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	input, err := tool.DecodeArgs[searchInput](fc.Args)
	if err != nil {
		return nil, err
	}

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	hits, err := x.memory.Retrieve(ctx, input.Query, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search memory", goerr.V("query", input.Query))
	}

	resultJSON, err := json.MarshalIndent(hits, "", "  ")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal result")
	}

	return &genai.FunctionResponse{
		Name:     fc.Name,
		Response: map[string]any{"result": string(resultJSON)},
	}, nil
}
