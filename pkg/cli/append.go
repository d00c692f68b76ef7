package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func appendCommand() *cli.Command {
	var (
		cfg      config
		query    string
		response string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "query",
			Aliases:     []string{"q"},
			Usage:       "User side of the exchange",
			Required:    true,
			Destination: &query,
		},
		&cli.StringFlag{
			Name:        "response",
			Aliases:     []string{"r"},
			Usage:       "Assistant side of the exchange",
			Required:    true,
			Destination: &response,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "append",
		Usage: "Store an exchange as a new memory and rebuild the index",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, env, err := setup(ctx, c, &cfg)
			if err != nil {
				return err
			}
			defer env.close()

			entry, err := env.memory.Append(ctx, query, response)
			if err != nil {
				return goerr.Wrap(err, "failed to append memory")
			}

			fmt.Fprintf(c.Root().Writer, "Appended memory %s\n", entry.ID)
			return nil
		},
	}
}
