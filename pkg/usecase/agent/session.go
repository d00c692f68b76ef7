package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/utils/logging"
	"google.golang.org/genai"
)

// Result is the outcome of one question
type Result = model.AgentResult

// Session keeps the conversation across questions. Memories are retrieved
// again for every question.
type Session struct {
	uc      *UseCase
	history []*genai.Content
}

func (u *UseCase) NewSession() *Session {
	return &Session{uc: u}
}

// History returns the conversation so far
func (s *Session) History() []*genai.Content {
	return s.history
}

// Ask sends question to the model and runs tool calls until the model answers
// with text or the step limit is reached. A final answer is stored as a memory;
// an exhausted run stores nothing.
func (s *Session) Ask(ctx context.Context, question string) (*Result, error) {
	u := s.uc
	logger := logging.From(ctx)

	hits, err := u.memory.Retrieve(ctx, question, u.topK)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to retrieve memories")
	}
	logger.Debug("memories retrieved", "count", len(hits))

	systemPrompt, err := u.buildSystemPrompt(ctx, hits)
	if err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, ""),
		Temperature:       &u.temperature,
		MaxOutputTokens:   u.maxOutputTokens,
		Tools:             u.registry.Specs(),
	}

	contents := make([]*genai.Content, 0, len(s.history)+1)
	contents = append(contents, s.history...)
	contents = append(contents, genai.NewContentFromText(question, genai.RoleUser))
	result := &Result{
		Status:   model.AgentStatusExhausted,
		Answer:   ExhaustedMessage,
		Memories: hits,
	}

	for step := 1; step <= u.maxSteps; step++ {
		result.Steps = step

		resp, err := u.gemini.GenerateContent(ctx, contents, config)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to generate content", goerr.V("step", step))
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return nil, goerr.New("empty response from Gemini", goerr.V("step", step))
		}

		candidate := resp.Candidates[0]
		contents = append(contents, candidate.Content)

		var calls []*genai.FunctionCall
		var texts []string
		for _, part := range candidate.Content.Parts {
			if part.FunctionCall != nil {
				calls = append(calls, part.FunctionCall)
			}
			if part.Text != "" && !part.Thought {
				texts = append(texts, part.Text)
			}
		}

		if len(calls) == 0 {
			result.Status = model.AgentStatusFinal
			result.Answer = strings.Join(texts, "\n")
			break
		}

		for _, text := range texts {
			u.printf("💭 %s\n", text)
		}

		parts := make([]*genai.Part, 0, len(calls))
		for _, fc := range calls {
			parts = append(parts, &genai.Part{FunctionResponse: u.execute(ctx, *fc)})
		}
		contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: parts})
	}

	if result.Status != model.AgentStatusFinal {
		// keep user and model turns alternating for the next question
		contents = append(contents, genai.NewContentFromText(ExhaustedMessage, genai.RoleModel))
	}
	s.history = contents

	if result.Status != model.AgentStatusFinal {
		logger.Warn("agent exhausted steps", "steps", result.Steps)
		return result, nil
	}

	saved, err := u.memory.Append(ctx, question, result.Answer)
	switch {
	case errors.Is(err, model.ErrRejectedByPolicy):
		logger.Warn("answer not stored", logging.ErrAttr(err))
	case err != nil:
		return nil, goerr.Wrap(err, "failed to store answer")
	default:
		result.Saved = saved
	}

	return result, nil
}

// execute runs a function call. Failures are returned to the model as an
// error field rather than ending the run.
func (u *UseCase) execute(ctx context.Context, fc genai.FunctionCall) *genai.FunctionResponse {
	u.printf("🔧 %s\n", fc.Name)
	logging.From(ctx).Debug("tool call", "name", fc.Name, "args", fc.Args)

	resp, err := u.registry.Execute(ctx, fc)
	if err != nil {
		logging.From(ctx).Warn("tool call failed", "name", fc.Name, logging.ErrAttr(err))
		return &genai.FunctionResponse{
			ID:       fc.ID,
			Name:     fc.Name,
			Response: map[string]any{"error": err.Error()},
		}
	}
	resp.ID = fc.ID
	return resp
}

func (u *UseCase) printf(format string, args ...any) {
	if u.output == nil {
		return
	}
	fmt.Fprintf(u.output, format, args...)
}
