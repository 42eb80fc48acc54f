package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pongogo/internal/config"
)

var cleanupPurge bool

var cleanupCmd = &cobra.Command{
	Use:   "uninstall-cleanup",
	Short: "Remove pongogo runtime artifacts from the current project",
	Long: `Deletes the database and log files under .pongogo/. User-authored
instruction files are kept unless --purge is given, which removes the
entire .pongogo directory.`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupPurge, "purge", false, "also remove instruction files and config")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	projectRoot := config.ResolveProjectRoot()
	base := filepath.Join(projectRoot, ".pongogo")

	if _, err := os.Stat(base); os.IsNotExist(err) {
		fmt.Println("Nothing to clean up.")
		return nil
	}

	if cleanupPurge {
		if err := os.RemoveAll(base); err != nil {
			return fmt.Errorf("failed to remove %s: %w", base, err)
		}
		logger.Info("purged pongogo directory", zap.String("path", base))
		fmt.Printf("Removed %s\n", base)
		return nil
	}

	removed := 0
	// Runtime artifacts only; instructions/ and config.yaml stay.
	targets := []string{
		filepath.Join(base, "pongogo.db"),
		filepath.Join(base, "pongogo.db-wal"),
		filepath.Join(base, "pongogo.db-shm"),
		filepath.Join(base, "logs"),
	}
	for _, target := range targets {
		if _, err := os.Stat(target); err != nil {
			continue
		}
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("failed to remove %s: %w", target, err)
		}
		removed++
		fmt.Printf("Removed %s\n", target)
	}

	if removed == 0 {
		fmt.Println("Nothing to clean up.")
	}
	logger.Info("cleanup complete", zap.Int("removed", removed))
	return nil
}
