package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"pongogo/internal/knowledge"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold a .pongogo directory in the current project",
	Long: `Creates .pongogo/ with a starter config.yaml and an instructions/
tree. Existing files are left untouched unless --force is given.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing config")
}

const starterConfig = `# pongogo configuration
routing:
  # engine: durian-0.6.2
  # features:
  #   instruction_bundles: true
server:
  log_level: info
`

const starterInstruction = `---
id: project/getting_started
description: Project-specific conventions the agent should follow
tags:
  - conventions
---
# Getting started

Replace this file with your project's instructions. Each
*.instructions.md file under this tree becomes routable knowledge;
the parent directory name is its category.
`

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	base := filepath.Join(cwd, ".pongogo")
	instructionsDir := filepath.Join(base, "instructions", "project")
	if err := os.MkdirAll(instructionsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", instructionsDir, err)
	}

	created := []string{}

	configPath := filepath.Join(base, "config.yaml")
	if wrote, err := writeIfAbsent(configPath, starterConfig, initForce); err != nil {
		return err
	} else if wrote {
		created = append(created, configPath)
	}

	starterPath := filepath.Join(instructionsDir, "getting_started"+knowledge.InstructionSuffix)
	if wrote, err := writeIfAbsent(starterPath, starterInstruction, initForce); err != nil {
		return err
	} else if wrote {
		created = append(created, starterPath)
	}

	success := lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	fmt.Println(success.Render("pongogo initialized"))
	for _, path := range created {
		fmt.Println("  " + dim.Render("created ") + path)
	}
	if len(created) == 0 {
		fmt.Println(dim.Render("  nothing to do (use --force to overwrite)"))
	}
	return nil
}

func writeIfAbsent(path, content string, force bool) (bool, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}
