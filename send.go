package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"etherpush/client"
	"etherpush/prompt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newSendCommand() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:     "send <host[:port]> <file>",
		Aliases: []string{"s"},
		Short:   "Push a file to a receiver",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			addr, path := args[0], args[1]

			var c client.Client
			if !quiet {
				c.Progress = prompt.SendProgress
			}

			result, err := c.SendFile(ctx, addr, path)
			if err != nil {
				return fmt.Errorf("[send] - error sending %s: %w", path, err)
			}

			name := filepath.Base(path)
			if !result.Accepted {
				pterm.Warning.Printfln("%s was rejected by %s", name, client.WithDefaultPort(addr))
				return nil
			}
			pterm.Success.Printfln("%s sent to %s (%s)", name, client.WithDefaultPort(addr), prompt.FormatSize(result.Sent))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not show a progress bar")

	return cmd
}
