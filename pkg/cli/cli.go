package cli

import (
	"context"
	"io"
	"os"

	"github.com/m-mizutani/recall/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	return run(ctx, argv, os.Stdout, os.Stderr)
}

func run(ctx context.Context, argv []string, stdout, stderr io.Writer) *Error {
	cmd := &cli.Command{
		Name:      "recall",
		Usage:     "Conversational memory with TF-IDF retrieval",
		Writer:    stdout,
		ErrWriter: stderr,
		Commands: []*cli.Command{
			appendCommand(),
			importCommand(),
			listCommand(),
			indexCommand(),
			searchCommand(),
			statsCommand(),
			askCommand(),
			chatCommand(),
			serveCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

// setup configures logging for the command and opens the memory use case.
// env.close must be called when the command finishes.
func setup(ctx context.Context, c *cli.Command, cfg *config) (context.Context, *env, error) {
	ctx, logger, err := cfg.newLogger(ctx, c.Root().ErrWriter)
	if err != nil {
		return ctx, nil, err
	}

	mem, closer, err := cfg.newMemory(ctx)
	if err != nil {
		return ctx, nil, err
	}

	logger.Debug("memory opened", "store", cfg.store, "index-dir", cfg.indexDir, "bucket", cfg.bucket)
	return ctx, &env{memory: mem, close: closer}, nil
}

// env holds resources opened for a single command run
type env struct {
	memory *memory.UseCase
	close  func()
}
