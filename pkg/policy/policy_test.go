package policy_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/policy"
)

const denyPolicy = `package memory

deny contains "response is empty" if {
	input.response == ""
}

deny contains "contains a secret" if {
	contains(lower(input.query), "password")
}
`

func newEntry(query, response string) *model.MemoryEntry {
	return &model.MemoryEntry{
		ID:        model.NewMemoryID(),
		Timestamp: time.Now(),
		Query:     query,
		Response:  response,
	}
}

func TestAdmission(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "memory.rego"), []byte(denyPolicy), 0644))

	a, err := policy.Load(ctx, dir)
	gt.NoError(t, err)

	t.Run("admitted", func(t *testing.T) {
		gt.NoError(t, a.Admit(ctx, newEntry("what are cats", "cats are pets")))
	})

	t.Run("single reason", func(t *testing.T) {
		d, err := a.Evaluate(ctx, newEntry("what are cats", ""))
		gt.NoError(t, err)
		gt.False(t, d.Allowed())
		gt.A(t, d.Deny).Length(1)
		gt.Equal(t, d.Deny[0], "response is empty")
	})

	t.Run("all reasons are reported", func(t *testing.T) {
		d, err := a.Evaluate(ctx, newEntry("my Password is hunter2", ""))
		gt.NoError(t, err)
		gt.A(t, d.Deny).Length(2)
		gt.Equal(t, d.Deny[0], "contains a secret")
		gt.Equal(t, d.Deny[1], "response is empty")
	})

	t.Run("rejection error", func(t *testing.T) {
		err := a.Admit(ctx, newEntry("password reset", "done"))
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrRejectedByPolicy))
	})
}

func TestEmptyPolicyDir(t *testing.T) {
	ctx := context.Background()
	a, err := policy.Load(ctx, t.TempDir())
	gt.NoError(t, err)
	gt.NoError(t, a.Admit(ctx, newEntry("anything", "")))

	var nilAdmission *policy.Admission
	gt.NoError(t, nilAdmission.Admit(ctx, newEntry("anything", "")))
}

func TestPolicyWithoutDenyRule(t *testing.T) {
	ctx := context.Background()
	a, err := policy.New(ctx, map[string]string{
		"other.rego": "package memory\n\nnote := \"no rules here\"\n",
	})
	gt.NoError(t, err)

	d, err := a.Evaluate(ctx, newEntry("q", "r"))
	gt.NoError(t, err)
	gt.True(t, d.Allowed())
}

func TestBrokenPolicy(t *testing.T) {
	_, err := policy.New(context.Background(), map[string]string{
		"broken.rego": "package memory\n\ndeny contains if {",
	})
	gt.Error(t, err)
}
