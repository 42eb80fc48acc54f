package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pongogo/internal/config"
	"pongogo/internal/discovery"
	"pongogo/internal/store"
)

var (
	discoveriesStatus       string
	discoveriesObservations bool
	discoveriesScan         string
	discoveriesPromote      int64
	discoveriesArchive      int64
)

var discoveriesCmd = &cobra.Command{
	Use:   "discoveries",
	Short: "Inspect and manage discovered knowledge candidates",
	Long: `Lists artifacts and observations in the discovery lifecycle.

  pongogo discoveries                    list discovered artifacts
  pongogo discoveries --status promoted  filter by lifecycle status
  pongogo discoveries --observations     list observations instead
  pongogo discoveries --scan README.md   import sections from a file
  pongogo discoveries --promote 3        promote artifact 3 to an instruction
  pongogo discoveries --archive 3        archive artifact 3`,
	RunE: runDiscoveries,
}

func init() {
	discoveriesCmd.Flags().StringVar(&discoveriesStatus, "status", store.StatusDiscovered, "lifecycle status to list")
	discoveriesCmd.Flags().BoolVar(&discoveriesObservations, "observations", false, "list observations instead of artifacts")
	discoveriesCmd.Flags().StringVar(&discoveriesScan, "scan", "", "import artifact candidates from a Markdown file")
	discoveriesCmd.Flags().Int64Var(&discoveriesPromote, "promote", 0, "promote an artifact by id")
	discoveriesCmd.Flags().Int64Var(&discoveriesArchive, "archive", 0, "archive an artifact by id")
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	idStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
)

func runDiscoveries(cmd *cobra.Command, args []string) error {
	projectRoot := config.ResolveProjectRoot()
	cfg, err := config.Load(projectRoot)
	if err != nil {
		return err
	}

	sub, err := store.Open(config.DatabasePath(projectRoot))
	if err != nil {
		return fmt.Errorf("failed to open substrate: %w", err)
	}
	defer sub.Close()

	switch {
	case discoveriesScan != "":
		return scanFile(sub, discoveriesScan)
	case discoveriesPromote != 0:
		return promoteArtifact(sub, cfg.Knowledge.Path, discoveriesPromote)
	case discoveriesArchive != 0:
		if err := sub.SetArtifactStatus(discoveriesArchive, store.StatusArchived); err != nil {
			return err
		}
		fmt.Println(okStyle.Render(fmt.Sprintf("Artifact %d archived", discoveriesArchive)))
		return nil
	case discoveriesObservations:
		return listObservations(sub)
	default:
		return listArtifacts(sub)
	}
}

func scanFile(sub *store.Substrate, path string) error {
	res, err := discovery.ScanFile(sub, path, "")
	if err != nil {
		return err
	}
	logger.Info("scan complete",
		zap.String("path", path),
		zap.Int("found", res.ArtifactsFound),
		zap.Int("duplicates", res.Duplicates))
	fmt.Println(okStyle.Render(fmt.Sprintf("Scanned %s: %d new artifacts, %d duplicates",
		path, res.ArtifactsFound, res.Duplicates)))
	return nil
}

func promoteArtifact(sub *store.Substrate, knowledgePath string, id int64) error {
	artifact, err := sub.ArtifactByID(id)
	if err != nil {
		return err
	}
	if artifact == nil {
		return fmt.Errorf("artifact %d not found", id)
	}

	promoter := discovery.NewPromoter(sub, knowledgePath)
	instructionID, err := promoter.Promote(artifact)
	if err != nil {
		return err
	}
	fmt.Println(okStyle.Render(fmt.Sprintf("Artifact %d promoted to %s", id, instructionID)))
	return nil
}

func listArtifacts(sub *store.Substrate) error {
	artifacts, err := sub.ArtifactsByStatus(discoveriesStatus, 50)
	if err != nil {
		return err
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("Artifacts (%s)", discoveriesStatus)))
	if len(artifacts) == 0 {
		fmt.Println(dimStyle.Render("  none"))
		return nil
	}
	for _, a := range artifacts {
		title := a.SectionTitle
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("  %s  %s\n", idStyle.Render(fmt.Sprintf("#%-4d", a.ID)), title)
		fmt.Printf("        %s\n", dimStyle.Render(fmt.Sprintf("%s [%s] keywords: %s",
			a.SourcePath, a.SourceType, strings.Join(a.Keywords, ", "))))
	}
	return nil
}

func listObservations(sub *store.Substrate) error {
	observations, err := sub.ObservationsByStatus(discoveriesStatus, 50)
	if err != nil {
		return err
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("Observations (%s)", discoveriesStatus)))
	if len(observations) == 0 {
		fmt.Println(dimStyle.Render("  none"))
		return nil
	}
	for _, o := range observations {
		fmt.Printf("  %s  %s\n", idStyle.Render(fmt.Sprintf("#%-4d", o.ID)), truncateLine(o.Content, 80))
		fmt.Printf("        %s\n", dimStyle.Render(fmt.Sprintf("type=%s guidance=%s scope=%s",
			o.Type, o.GuidanceType, o.PersistenceScope)))
	}
	return nil
}

func truncateLine(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
