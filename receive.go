package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"etherpush/config"
	"etherpush/listener"
	"etherpush/logger"
	"etherpush/prompt"
	"etherpush/transfer"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// shutdownGrace bounds the wait for running sessions after a stop signal. A
// session waiting on a terminal prompt cannot be interrupted.
const shutdownGrace = 5 * time.Second

func newReceiveCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:     "receive",
		Aliases: []string{"r", "recv"},
		Short:   "Wait for incoming files",
		Long: `Listens for etherpush peers and asks what to do with every offered file.
With --mode accept every file is stored in --dir, with --mode reject every
file is refused.

In ask mode only warnings and errors are logged to the terminal unless
--log-file is given. On SIGINT or SIGTERM open connections are closed and
running sessions get a few seconds to finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.LoadConfig(configPath, cmd.Flags())
			if err != nil {
				return fmt.Errorf("[receive] - error loading config: %w", err)
			}

			return runReceiver(ctx, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "Path to config file (TOML)")
	flags.String("host", "", "Address to listen on, all interfaces when empty")
	flags.Int("port", listener.DefaultPort, "TCP port to listen on")
	flags.String("dir", ".", "Download directory")
	flags.String("mode", config.ModeAsk, "What to do with offered files (ask, accept, reject)")
	flags.String("log-file", "", "Append the log to this file")

	return cmd
}

func runReceiver(ctx context.Context, cfg config.Config) error {
	log := logrus.WithField("function", "runReceiver")

	applyLogConfig(cfg)
	closeLog, err := configureLogOutput(cfg, os.Stderr)
	if err != nil {
		return fmt.Errorf("[receive] - %w", err)
	}
	defer closeLog()

	if cfg.Watch(func(next config.Config) {
		applyLogConfig(next)
		logrus.WithFields(logrus.Fields{
			"function": "runReceiver",
			"file":     next.File(),
		}).Info("Configuration reloaded")
	}) {
		log.WithField("file", cfg.File()).Debug("Watching config file")
	}

	prompter, notifier, opts, err := collaborators(cfg)
	if err != nil {
		return err
	}

	ln := listener.New(listener.Config{
		HostName: cfg.Server.HostName,
		Port:     cfg.Server.Port,
	}, prompter, notifier, opts...)

	log.WithFields(logrus.Fields{
		"port": cfg.Server.Port,
		"mode": cfg.Receive.Mode,
		"dir":  cfg.Receive.Dir,
	}).Info("Receiver starting")

	if err := ln.Start(); err != nil {
		// the failure has been notified; stay up until asked to stop
		log.WithField("error", err.Error()).Error("Receiver is not listening")
		<-ctx.Done()
		return nil
	}

	serveErr := ln.Serve(ctx)

	closeErr := ln.Close()
	if !waitSessions(ln.Wait, shutdownGrace) {
		log.Warn("Sessions still waiting for an answer, exiting without them")
	}

	stats := ln.Stats()
	log.WithFields(logrus.Fields{
		"accepted": stats.Accepted,
		"done":     stats.Done,
		"aborted":  stats.Aborted,
	}).Info("Receiver stopped")

	if serveErr != nil {
		return fmt.Errorf("[receive] - error serving: %w", serveErr)
	}
	if closeErr != nil {
		log.WithField("error", closeErr.Error()).Warn("Error closing receiver")
	}
	return nil
}

// waitSessions calls wait and reports whether it returned within grace.
func waitSessions(wait func(), grace time.Duration) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		wait()
	}()

	select {
	case <-done:
		return true
	case <-time.After(grace):
		return false
	}
}

// configureLogOutput sends the log to the configured file, or keeps the
// terminal of an interactive receiver free of everything below warn.
func configureLogOutput(cfg config.Config, stderr io.Writer) (func(), error) {
	if cfg.Log.File != "" {
		file, err := logger.OpenFile(cfg.Log.File)
		if err != nil {
			return nil, err
		}
		return func() {
			logger.SetOutput(stderr)
			file.Close()
		}, nil
	}

	if cfg.Receive.Mode == config.ModeAsk {
		logger.WarningsOnly(stderr)
	}
	return func() {}, nil
}

func applyLogConfig(cfg config.Config) {
	if err := logger.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "applyLogConfig",
			"error":    err.Error(),
		}).Warn("Invalid logging configuration, using defaults")
	}
}

// collaborators picks the prompter and notifier for the configured mode.
func collaborators(cfg config.Config) (transfer.Prompter, transfer.Notifier, []transfer.Option, error) {
	switch cfg.Receive.Mode {
	case config.ModeAsk:
		return prompt.NewTerminal(cfg.Receive.Dir), prompt.NewNotifier(nil),
			[]transfer.Option{transfer.WithProgress(prompt.ReceiveProgress)}, nil
	case config.ModeAccept:
		if err := os.MkdirAll(cfg.Receive.Dir, 0o755); err != nil {
			return nil, nil, nil, fmt.Errorf("[receive] - error creating download directory: %w", err)
		}
		return prompt.AcceptAll(cfg.Receive.Dir), prompt.LogNotifier{}, nil, nil
	case config.ModeReject:
		return prompt.RejectAll(), prompt.LogNotifier{}, nil, nil
	}
	return nil, nil, nil, fmt.Errorf("[receive] - unknown mode %q", cfg.Receive.Mode)
}
