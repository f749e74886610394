package main

import (
	"log"

	"etherpush/logger"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var logLevel, logFormat string

	rootCmd := &cobra.Command{
		Use:   "etherpush",
		Short: "etherpush pushes single files over raw TCP",
		Long: `etherpush receives files pushed over a plain TCP connection after a
human (or a configured policy) accepts them, and sends files to such receivers.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.Configure(logLevel, logFormat); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "PersistentPreRunE",
					"error":    err.Error(),
				}).Warn("Invalid logging flags, using defaults")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(newReceiveCommand(), newSendCommand())

	return rootCmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Fatalf("error: %v\n", err)
	}
}
