package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/urfave/cli/v3"
)

func searchCommand() *cli.Command {
	var (
		cfg    config
		limit  int64
		asJSON bool
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"k"},
			Usage:       "Maximum number of memories to return",
			Value:       3,
			Destination: &limit,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "Output as JSON",
			Destination: &asJSON,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:      "search",
		Usage:     "Find memories relevant to a text",
		ArgsUsage: "<text>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			query := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(query) == "" {
				return goerr.New("search text is required")
			}

			ctx, env, err := setup(ctx, c, &cfg)
			if err != nil {
				return err
			}
			defer env.close()

			hits, err := env.memory.Retrieve(ctx, query, int(limit))
			if err != nil {
				return goerr.Wrap(err, "failed to search memories")
			}

			w := c.Root().Writer
			if asJSON {
				if hits == nil {
					hits = []*model.Hit{}
				}
				return writeJSON(w, hits)
			}

			if len(hits) == 0 {
				fmt.Fprintln(w, "No relevant memories found")
				return nil
			}

			for i, hit := range hits {
				fmt.Fprintf(w, "#%d score=%.3f id=%s\n", i+1, hit.Score, hit.EntryID)
				fmt.Fprintf(w, "User: %s\n", hit.Query)
				fmt.Fprintf(w, "Assistant: %s\n\n", hit.Response)
			}
			return nil
		},
	}
}
