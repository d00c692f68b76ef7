package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/urfave/cli/v3"
)

func askCommand() *cli.Command {
	var (
		cfg      config
		asJSON   bool
		noSpin   bool
		agentOpt = newAgentOptions()
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "Output the result as JSON",
			Destination: &asJSON,
		},
		&cli.BoolFlag{
			Name:        "no-spinner",
			Usage:       "Do not show progress while waiting for the model",
			Destination: &noSpin,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, agentOpt.Flags()...)

	return &cli.Command{
		Name:      "ask",
		Usage:     "Ask a question using relevant memories and store the answer",
		ArgsUsage: "<question>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			question := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(question) == "" {
				return goerr.New("question is required")
			}

			ctx, env, err := setup(ctx, c, &cfg)
			if err != nil {
				return err
			}
			defer env.close()
			defer agentOpt.Close(ctx)

			progress := newProgress(c.Root().ErrWriter, !noSpin && !asJSON)
			uc, err := agentOpt.newAgent(ctx, &cfg, env, progress)
			if err != nil {
				return err
			}

			progress.Start()
			result, err := uc.Ask(ctx, question)
			progress.Stop()
			if err != nil {
				return goerr.Wrap(err, "failed to ask")
			}

			w := c.Root().Writer
			if asJSON {
				return writeJSON(w, result)
			}
			printResult(w, result)
			return nil
		},
	}
}

func printResult(w io.Writer, result *model.AgentResult) {
	fmt.Fprintln(w, result.Answer)

	switch {
	case result.Status == model.AgentStatusExhausted:
		fmt.Fprintf(w, "\n(stopped after %d steps, nothing stored)\n", result.Steps)
	case result.Saved != nil:
		fmt.Fprintf(w, "\n(stored as memory %s)\n", result.Saved.ID)
	}
}

// progress shows a spinner while the agent works. Writes pause the spinner so
// tool call messages are not mixed into the spinner line.
type progress struct {
	mu      sync.Mutex
	w       io.Writer
	spinner *spinner.Spinner
	running bool
}

func newProgress(w io.Writer, enabled bool) *progress {
	p := &progress{w: w}
	if enabled {
		p.spinner = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
		p.spinner.Suffix = " thinking..."
	}
	return p
}

func (p *progress) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.spinner != nil {
		p.spinner.Start()
	}
	p.running = true
}

func (p *progress) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.spinner != nil {
		p.spinner.Stop()
	}
	p.running = false
}

func (p *progress) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.spinner == nil || !p.running {
		return p.w.Write(b)
	}

	p.spinner.Stop()
	defer p.spinner.Start()
	return p.w.Write(b)
}
