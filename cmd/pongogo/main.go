package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pongogo/internal/config"
	"pongogo/internal/logging"
	"pongogo/internal/server"
	"pongogo/internal/store"
)

var (
	verbose bool

	// logger serves the management commands; the serve path uses the
	// category file logger instead, because stdio belongs to the transport.
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pongogo",
	Short: "pongogo - knowledge routing server",
	Long: `pongogo serves project instructions to coding agents over stdio.

It loads Markdown instruction files with YAML frontmatter, routes user
messages to the most relevant instructions through a versioned scoring
engine, and hot-reloads the knowledge base when files change.

Run without arguments to start the stdio server.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The serve path must not touch stdout/stderr casually.
		if cmd.Name() == "serve" || cmd.Name() == "pongogo" {
			return nil
		}
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the stdio knowledge routing server",
	Long: `Starts the JSON-RPC server on stdin/stdout. The knowledge base is
watched for changes and reloaded automatically. Diagnostics go to
.pongogo/logs/; stdout carries only protocol responses.`,
	RunE: runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pongogo version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.Version())
	},
}

func runServe(cmd *cobra.Command, args []string) error {
	projectRoot := config.ResolveProjectRoot()

	cfg, err := config.Load(projectRoot)
	if err != nil {
		return err
	}

	if err := logging.Initialize(projectRoot, cfg.Server.LogLevel); err != nil {
		// Logging is best-effort; the server can run without files.
		fmt.Fprintf(os.Stderr, "pongogo: logging unavailable: %v\n", err)
	}
	defer logging.CloseAll()

	logging.Boot("pongogo %s starting, project root %s", config.Version(), projectRoot)

	var sub *store.Substrate
	sub, err = store.Open(config.DatabasePath(projectRoot))
	if err != nil {
		// Routing works without persistence; look-back and event capture
		// are disabled until the database is reachable.
		logging.Get(logging.CategoryBoot).Error("Substrate unavailable: %v", err)
		sub = nil
	} else {
		defer sub.Close()
	}

	runtime, err := server.NewRuntime(cfg, sub)
	if err != nil {
		logging.Get(logging.CategoryBoot).Error("Startup failed: %v", err)
		return err
	}

	watcher, err := server.NewWatcher(runtime, cfg.Knowledge.Path)
	if err != nil {
		logging.Get(logging.CategoryBoot).Error("Watcher unavailable: %v", err)
	} else {
		watcher.Start()
		defer watcher.Stop()
	}

	srv := server.NewServer(runtime, os.Stdin, os.Stdout)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logging.Boot("Received %s, shutting down", sig)
		return nil
	}
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(discoveriesCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
