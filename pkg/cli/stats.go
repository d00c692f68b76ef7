package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func statsCommand() *cli.Command {
	var (
		cfg    config
		asJSON bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "Output as JSON",
			Destination: &asJSON,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "stats",
		Usage: "Show statistics of the current index",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, env, err := setup(ctx, c, &cfg)
			if err != nil {
				return err
			}
			defer env.close()

			stats, err := env.memory.Stats(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to get stats")
			}

			w := c.Root().Writer
			if asJSON {
				return writeJSON(w, stats)
			}

			fmt.Fprintf(w, "Documents:    %d\n", stats.Documents)
			fmt.Fprintf(w, "Vocabulary:   %d\n", stats.Vocabulary)
			fmt.Fprintf(w, "MinDocFreq:   %d\n", stats.MinDocFreq)
			fmt.Fprintf(w, "CreatedAt:    %s\n", stats.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}
}
