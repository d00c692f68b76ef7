package search_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/repository"
	"github.com/m-mizutani/recall/pkg/tool"
	"github.com/m-mizutani/recall/pkg/tool/search"
	"github.com/m-mizutani/recall/pkg/usecase/memory"
	"google.golang.org/genai"
)

func TestSearchDisabledWithoutMemory(t *testing.T) {
	ok, err := search.New().Init(context.Background(), &tool.Client{})
	gt.NoError(t, err)
	gt.False(t, ok)
}

func TestSearchMemory(t *testing.T) {
	ctx := context.Background()
	uc := memory.New(repository.NewMemory())
	_, err := uc.Append(ctx, "tell me about cats", "cats are great pets")
	gt.NoError(t, err)
	_, err = uc.Append(ctx, "tell me about dogs", "dogs are loyal")
	gt.NoError(t, err)

	x := search.New()
	ok, err := x.Init(ctx, &tool.Client{Memory: uc})
	gt.NoError(t, err)
	gt.True(t, ok)

	decl := x.Spec().FunctionDeclarations[0]
	gt.Equal(t, decl.Name, search.Name)
	gt.V(t, decl.Parameters.Required).Equal([]string{"query"})

	resp, err := x.Execute(ctx, genai.FunctionCall{
		Name: search.Name,
		Args: map[string]any{"query": "loyal dogs", "limit": float64(1)},
	})
	gt.NoError(t, err)

	raw, ok := resp.Response["result"].(string)
	gt.True(t, ok)

	var hits []*model.Hit
	gt.NoError(t, json.Unmarshal([]byte(raw), &hits))
	gt.A(t, hits).Length(1)
	gt.Equal(t, hits[0].Response, "dogs are loyal")
}
