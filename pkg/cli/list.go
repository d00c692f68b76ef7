package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func listCommand() *cli.Command {
	var (
		cfg    config
		limit  int64
		asJSON bool
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Show only the latest N memories (0 for all)",
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
		Name:  "list",
		Usage: "List stored memories in insertion order",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, env, err := setup(ctx, c, &cfg)
			if err != nil {
				return err
			}
			defer env.close()

			entries, err := env.memory.Load(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to list memories")
			}

			if limit > 0 && int(limit) < len(entries) {
				entries = entries[len(entries)-int(limit):]
			}

			w := c.Root().Writer
			if asJSON {
				return writeJSON(w, entries)
			}

			if len(entries) == 0 {
				fmt.Fprintln(w, "No memories found")
				return nil
			}

			for _, entry := range entries {
				fmt.Fprintf(w, "%s  %s  %s\n",
					entry.ID,
					entry.Timestamp.Format(time.RFC3339),
					oneLine(entry.Query, 60),
				)
			}
			fmt.Fprintf(w, "\nTotal: %d memories\n", len(entries))
			return nil
		},
	}
}

// oneLine collapses whitespace and cuts s to at most n runes
func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return goerr.Wrap(err, "failed to encode output")
	}
	return nil
}
