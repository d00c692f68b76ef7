package agent

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
)

//go:embed prompt/system.md
var systemPromptRaw string

var systemPromptTmpl = template.Must(template.New("system").Parse(systemPromptRaw))

type systemPromptData struct {
	Memories    string
	ToolPrompts string
}

// FormatMemories renders hits as the memory block of the system prompt
func FormatMemories(hits []*model.Hit) string {
	if len(hits) == 0 {
		return "None"
	}

	blocks := make([]string, len(hits))
	for i, h := range hits {
		blocks[i] = fmt.Sprintf("Memory #%d (score=%.3f):\nUser: %s\nAssistant: %s",
			i+1, h.Score, h.Query, h.Response)
	}
	return strings.Join(blocks, "\n\n")
}

func (u *UseCase) buildSystemPrompt(ctx context.Context, hits []*model.Hit) (string, error) {
	data := systemPromptData{
		Memories:    FormatMemories(hits),
		ToolPrompts: u.registry.Prompts(ctx),
	}

	var buf bytes.Buffer
	if err := systemPromptTmpl.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to render system prompt")
	}
	return buf.String(), nil
}
