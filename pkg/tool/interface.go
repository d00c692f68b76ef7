package tool

import (
	"context"

	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

// Tool is a set of functions the agent may call while answering a question.
// A Tool is constructed before flags are parsed, so anything that depends on
// flag values belongs in Init.
type Tool interface {
	// Flags may return nil
	Flags() []cli.Flag

	// Init reports whether the tool is usable with the given configuration.
	// Disabled tools are not offered to the model.
	Init(ctx context.Context, client *Client) (bool, error)

	// Spec declares the functions. Names must be unique across tools.
	Spec() *genai.Tool

	Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error)

	// Prompt is appended to the system prompt. Empty means nothing to add.
	Prompt(ctx context.Context) string
}
