// Package cmd provides the alertrelay command-line interface.
package cmd

import (
	"context"
	"fmt"

	"alertrelay/config"
	"alertrelay/core"
	"alertrelay/handlers"
	"alertrelay/metrics"
	"alertrelay/runner"
	"alertrelay/storage"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
)

// Global flags
var (
	configFile string
	debugMode  bool
	noColor    bool
)

// NewRootCmd builds the alertrelay command tree.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "alertrelay",
		Short: "Dispatch pending security alerts to ticketing handlers",
		Long: `alertrelay polls the results alerts table for unticketed,
unsuppressed alerts, dispatches each to its requested handlers and
records handler failures back into the same table.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	root.AddCommand(newRunCmd())
	root.AddCommand(newVersionCmd(version))

	return root
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the alertrelay version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("alertrelay %s\n", version)
		},
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute one fetch-dispatch-record pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context())
		},
	}
}

func newLogger() (*zap.SugaredLogger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if debugMode {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger.Sugar(), nil
}

func runOnce(ctx context.Context) error {
	if noColor {
		color.NoColor = true
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	// Fail-safe default-off: without the built-in handler's credential
	// the dispatch loop must not run at all.
	if err := config.LoadSecrets(cfg); err != nil {
		warningColor.Println("Jira credential not configured; refusing to run")
		logger.Infof("Jira credential unavailable, skipping run: %v", err)
		return nil
	}

	store, err := storage.NewRowStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warnf("Failed to close row store: %v", err)
		}
	}()

	registry := handlers.NewRegistry(logger)
	registry.Register(core.DefaultHandler, handlers.NewJiraHandler(cfg, store, logger))

	recorder, err := runner.NewRecorder(store, cfg, logger)
	if err != nil {
		return err
	}

	var sink runner.RunSink
	if cfg.CloudWatchMetrics {
		cwSink, err := metrics.NewCloudWatchSink(cfg, logger)
		if err != nil {
			// Best-effort boundary: a broken metrics sink never blocks
			// alert dispatch
			logger.Errorf("CloudWatch sink unavailable, continuing without it: %v", err)
		} else {
			sink = cwSink
		}
	}

	r := runner.NewRunner(store, registry, recorder, sink, cfg, logger)

	infoColor.Println("Dispatching pending alerts...")
	summary, err := r.RunOnce(ctx)
	if err != nil {
		return err
	}

	if cfg.PushgatewayURL != "" {
		if err := metrics.PushCounters(ctx, cfg.PushgatewayURL); err != nil {
			logger.Errorf("Pushgateway export failed: %v", err)
		}
	}

	successColor.Printf("Run complete: %d alert(s) fetched, %d handler failure(s)\n",
		summary.Fetched, summary.Failed)
	return nil
}
