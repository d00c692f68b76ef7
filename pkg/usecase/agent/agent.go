package agent

import (
	"context"
	"io"

	"github.com/m-mizutani/recall/pkg/adapter"
	"github.com/m-mizutani/recall/pkg/tool"
	"github.com/m-mizutani/recall/pkg/usecase/memory"
)

const (
	DefaultTopK     = 3
	DefaultMaxSteps = 8

	// ExhaustedMessage is the answer of a run that hit the step limit
	ExhaustedMessage = "Agent stopped after max steps without returning a final answer."
)

// UseCase answers questions with Gemini, using past exchanges as context and
// storing every final answer as a new memory
type UseCase struct {
	gemini   adapter.Gemini
	memory   *memory.UseCase
	registry *tool.Registry

	topK            int
	maxSteps        int
	temperature     float32
	maxOutputTokens int32
	output          io.Writer
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithRegistry sets the tools the model may call. The registry must be
// initialized.
func WithRegistry(registry *tool.Registry) Option {
	return func(uc *UseCase) {
		uc.registry = registry
	}
}

// WithTopK sets how many memories are injected into the system prompt
func WithTopK(k int) Option {
	return func(uc *UseCase) {
		uc.topK = k
	}
}

// WithMaxSteps sets the maximum number of model calls per question
func WithMaxSteps(n int) Option {
	return func(uc *UseCase) {
		uc.maxSteps = n
	}
}

func WithTemperature(t float32) Option {
	return func(uc *UseCase) {
		uc.temperature = t
	}
}

func WithMaxOutputTokens(n int32) Option {
	return func(uc *UseCase) {
		uc.maxOutputTokens = n
	}
}

// WithOutput sets the writer for progress messages such as tool calls
func WithOutput(w io.Writer) Option {
	return func(uc *UseCase) {
		uc.output = w
	}
}

// New creates a new agent UseCase instance
func New(gemini adapter.Gemini, mem *memory.UseCase, opts ...Option) *UseCase {
	uc := &UseCase{
		gemini:          gemini,
		memory:          mem,
		registry:        tool.New(),
		topK:            DefaultTopK,
		maxSteps:        DefaultMaxSteps,
		temperature:     0,
		maxOutputTokens: 1024,
	}

	for _, opt := range opts {
		opt(uc)
	}
	if uc.maxSteps < 1 {
		uc.maxSteps = 1
	}

	return uc
}

// Ask runs a single question in a fresh session
func (u *UseCase) Ask(ctx context.Context, question string) (*Result, error) {
	return u.NewSession().Ask(ctx, question)
}
