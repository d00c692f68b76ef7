package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
	var (
		cfg         config
		historyFile string
		agentOpt    = newAgentOptions()
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "history-file",
			Usage:       "File to keep the input history in",
			Sources:     cli.EnvVars("RECALL_HISTORY_FILE"),
			Destination: &historyFile,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, agentOpt.Flags()...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive conversation that remembers every answer",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, env, err := setup(ctx, c, &cfg)
			if err != nil {
				return err
			}
			defer env.close()
			defer agentOpt.Close(ctx)

			w := c.Root().Writer
			uc, err := agentOpt.newAgent(ctx, &cfg, env, w)
			if err != nil {
				return err
			}
			session := uc.NewSession()

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "> ",
				HistoryFile:     historyFile,
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
				Stdout:          w,
				Stderr:          c.Root().ErrWriter,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to initialize readline")
			}
			defer rl.Close()

			fmt.Fprintln(w, "Type 'exit' or 'quit' to end the session")

			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					if line == "" {
						return nil
					}
					continue
				}
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				input := strings.TrimSpace(line)
				if input == "" {
					continue
				}
				if input == "exit" || input == "quit" {
					return nil
				}

				result, err := session.Ask(ctx, input)
				if err != nil {
					logging.From(ctx).Error("failed to ask", logging.ErrAttr(err))
					fmt.Fprintf(w, "Error: %v\n\n", err)
					continue
				}

				printResult(w, result)
				fmt.Fprintln(w)
			}
		},
	}
}
