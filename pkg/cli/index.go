package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func indexCommand() *cli.Command {
	var cfg config
	flags := globalFlags(&cfg)

	return &cli.Command{
		Name:    "index",
		Aliases: []string{"rebuild"},
		Usage:   "Rebuild the TF-IDF index from all memories",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, env, err := setup(ctx, c, &cfg)
			if err != nil {
				return err
			}
			defer env.close()

			idx, err := env.memory.Rebuild(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to rebuild index")
			}

			fmt.Fprintf(c.Root().Writer, "Indexed %d memories (%d terms)\n", idx.DocCount(), idx.VocabSize())
			return nil
		},
	}
}
