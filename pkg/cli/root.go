/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/chatdocs/shipit/pkg/config"
	"github.com/chatdocs/shipit/pkg/logging"
)

const name = "shipit"

var (
	// overridden during build with ldflags
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Shared flags across commands.
var (
	envFileFlag = &cli.StringFlag{
		Name:    "env-file",
		Usage:   "deployment env file (merged under the process environment)",
		Sources: cli.EnvVars("SHIPIT_ENV_FILE"),
		Value:   config.DefaultEnvFile,
	}

	kubeconfigFlag = &cli.StringFlag{
		Name:    "kubeconfig",
		Usage:   "kubeconfig path (default: $KUBECONFIG, then ~/.kube/config)",
		Sources: cli.EnvVars("KUBECONFIG"),
	}

	logLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "log level (debug, info, warn, error)",
		Sources: cli.EnvVars("LOG_LEVEL"),
		Value:   "info",
	}
)

func rootCmd() *cli.Command {
	return &cli.Command{
		Name:    name,
		Usage:   "Build, publish, and deploy the docchat application to GKE",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Flags: []cli.Flag{
			logLevelFlag,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			logging.SetDefaultStructuredLoggerWithLevel(name, version, cmd.String("log-level"))
			return ctx, nil
		},
		Commands: []*cli.Command{
			deployCmd(),
			buildCmd(),
			renderCmd(),
			applyCmd(),
			statusCmd(),
			monitoringCmd(),
		},
	}
}

// Execute runs the CLI. It is called by main.main and wires SIGINT/SIGTERM
// into context cancellation so partially completed stages clean up.
func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, shutting down gracefully...")
		cancel()
	}()

	if err := rootCmd().Run(ctx, os.Args); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// out returns the command tree's output writer, defaulting to stdout.
func out(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

// loadConfig reads the pipeline configuration from the command's env-file
// flag merged under the process environment.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("env-file")
	if path == config.DefaultEnvFile {
		// The default file is optional; an explicitly flagged one is not.
		path = ""
	}
	return config.Load(path)
}
