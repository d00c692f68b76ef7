package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
)

func importCommand() *cli.Command {
	var cfg config
	flags := globalFlags(&cfg)

	return &cli.Command{
		Name:      "import",
		Usage:     "Import memories from a JSON or YAML file (- for stdin)",
		ArgsUsage: "<file>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.New("exactly one file is required")
			}
			path := c.Args().First()

			data, err := readInput(path)
			if err != nil {
				return err
			}

			records, err := memory.DecodeRecords(data)
			if err != nil {
				return goerr.Wrap(err, "failed to decode records", goerr.V("path", path))
			}

			ctx, env, err := setup(ctx, c, &cfg)
			if err != nil {
				return err
			}
			defer env.close()

			result, err := env.memory.Import(ctx, records)
			if err != nil {
				return goerr.Wrap(err, "failed to import memories", goerr.V("path", path))
			}

			fmt.Fprintf(c.Root().Writer, "Imported %d memories (skipped: %d, rejected: %d)\n",
				result.Imported, result.Skipped, result.Rejected)
			return nil
		},
	}
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read stdin")
		}
		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read file", goerr.V("path", path))
	}
	return data, nil
}
