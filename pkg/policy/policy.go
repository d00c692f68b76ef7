package policy

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/utils/logging"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/topdown/print"
)

// Query is the Rego document evaluated for every new memory. Its "deny" rule
// is a set of reasons; an empty set admits the memory.
const Query = "data.memory"

// Admission decides whether a memory entry may be stored
type Admission struct {
	query *rego.PreparedEvalQuery
}

// Decision is the outcome of an admission check
type Decision struct {
	Deny []string
}

func (d *Decision) Allowed() bool {
	return d == nil || len(d.Deny) == 0
}

// printHook forwards Rego print() output to the logger
type printHook struct {
	ctx context.Context
}

func (h *printHook) Print(pctx print.Context, message string) error {
	logging.From(h.ctx).Debug("rego print", "message", message, "location", pctx.Location)
	return nil
}

// Load reads every *.rego file in dir. A directory without policies yields an
// Admission that allows everything.
func Load(ctx context.Context, dir string) (*Admission, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files", goerr.V("dir", dir))
	}

	sources := make(map[string]string, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		sources[file] = string(data)
	}

	return New(ctx, sources)
}

// New prepares an Admission from Rego sources keyed by file name
func New(ctx context.Context, sources map[string]string) (*Admission, error) {
	if len(sources) == 0 {
		return &Admission{}, nil
	}

	options := make([]func(*rego.Rego), 0, len(sources)+2)
	options = append(options, rego.Query(Query), rego.EnablePrintStatements(true))
	for name, src := range sources {
		options = append(options, rego.Module(name, src))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare policy query", goerr.V("query", Query))
	}

	return &Admission{query: &prepared}, nil
}

// Evaluate runs the policy against entry
func (a *Admission) Evaluate(ctx context.Context, entry *model.MemoryEntry) (*Decision, error) {
	if a == nil || a.query == nil {
		return &Decision{}, nil
	}

	input := map[string]any{
		"id":        string(entry.ID),
		"timestamp": entry.Timestamp.Unix(),
		"query":     entry.Query,
		"response":  entry.Response,
	}

	rs, err := a.query.Eval(ctx, rego.EvalInput(input), rego.EvalPrintHook(&printHook{ctx: ctx}))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate memory policy", goerr.V("id", entry.ID))
	}

	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return &Decision{}, nil
	}

	data, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return nil, goerr.New("invalid policy result: not an object", goerr.V("value", rs[0].Expressions[0].Value))
	}

	raw, ok := data["deny"]
	if !ok {
		return &Decision{}, nil
	}
	reasons, ok := raw.([]any)
	if !ok {
		return nil, goerr.New("invalid policy result: deny is not a set", goerr.V("deny", raw))
	}

	decision := &Decision{Deny: make([]string, 0, len(reasons))}
	for _, r := range reasons {
		s, ok := r.(string)
		if !ok {
			return nil, goerr.New("invalid policy result: deny reason is not a string", goerr.V("reason", r))
		}
		decision.Deny = append(decision.Deny, s)
	}
	sort.Strings(decision.Deny)

	return decision, nil
}

// Admit returns model.ErrRejectedByPolicy when the policy denies entry
func (a *Admission) Admit(ctx context.Context, entry *model.MemoryEntry) error {
	decision, err := a.Evaluate(ctx, entry)
	if err != nil {
		return err
	}
	if !decision.Allowed() {
		return goerr.Wrap(model.ErrRejectedByPolicy, "memory denied",
			goerr.V("id", entry.ID),
			goerr.V("reasons", decision.Deny))
	}
	return nil
}
