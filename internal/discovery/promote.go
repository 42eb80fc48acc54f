// Package discovery manages the candidate-knowledge lifecycle: artifacts
// imported from project files and observations captured at runtime move
// through discovered → reviewing → promoted/archived. Promotion
// synthesizes a real instruction file under the user knowledge root, so
// the watcher picks it up on the next reload cycle.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"pongogo/internal/knowledge"
	"pongogo/internal/logging"
	"pongogo/internal/store"
)

// PromotedCategory is the category directory synthesized instructions
// land in.
const PromotedCategory = "discoveries"

// Promoter turns discovered artifacts into instruction files.
type Promoter struct {
	sub      *store.Substrate
	userRoot string
}

// NewPromoter builds a promoter writing under the given user knowledge
// root.
func NewPromoter(sub *store.Substrate, userRoot string) *Promoter {
	return &Promoter{sub: sub, userRoot: userRoot}
}

// AutoPromote checks the discovered-artifact pool against the request's
// keywords and promotes the best-overlapping candidate. Promotion happens
// on the first keyword hit; the synthesized file becomes routable after
// the next reload. Returns the ids of instructions promoted during this
// call (usually zero or one). Errors are logged, never propagated: a
// failed promotion must not fail the route.
func (p *Promoter) AutoPromote(keywords []string) []string {
	if p == nil || p.sub == nil || p.userRoot == "" || len(keywords) == 0 {
		return nil
	}

	candidates, err := p.sub.ArtifactsByStatus(store.StatusDiscovered, 100)
	if err != nil {
		logging.Get(logging.CategoryDiscovery).Warn("Artifact lookup failed: %v", err)
		return nil
	}
	if len(candidates) == 0 {
		return nil
	}

	kwSet := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		kwSet[strings.ToLower(kw)] = true
	}

	var best *store.Artifact
	bestOverlap := 0
	for _, a := range candidates {
		overlap := 0
		for _, kw := range a.Keywords {
			if kwSet[strings.ToLower(kw)] {
				overlap++
			}
		}
		if overlap > bestOverlap || (overlap == bestOverlap && overlap > 0 && best != nil && a.ID < best.ID) {
			best = a
			bestOverlap = overlap
		}
	}
	if best == nil || bestOverlap == 0 {
		return nil
	}

	id, err := p.Promote(best)
	if err != nil {
		logging.Get(logging.CategoryDiscovery).Warn("Auto-promotion of artifact %d failed: %v", best.ID, err)
		return nil
	}
	return []string{id}
}

// Promote synthesizes the instruction file for one artifact and records
// the implementation row. Returns the new instruction's id.
func (p *Promoter) Promote(a *store.Artifact) (string, error) {
	name := slugify(a.SectionTitle)
	if name == "" {
		name = slugify(strings.TrimSuffix(filepath.Base(a.SourcePath), filepath.Ext(a.SourcePath)))
	}
	if name == "" {
		name = fmt.Sprintf("artifact_%d", a.ID)
	}

	instructionID := PromotedCategory + "/" + name
	relPath := filepath.Join(PromotedCategory, name+knowledge.InstructionSuffix)
	absPath := filepath.Join(p.userRoot, relPath)

	content := synthesize(instructionID, a)

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create category directory: %w", err)
	}
	if err := os.WriteFile(absPath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write instruction file: %w", err)
	}

	_, err := p.sub.PromoteArtifact(a.ID, &store.Implementation{
		InstructionPath: relPath,
		Category:        PromotedCategory,
		Title:           a.SectionTitle,
	})
	if err != nil {
		// The file exists but the row flip failed; remove the file so the
		// artifact stays promotable.
		_ = os.Remove(absPath)
		return "", err
	}

	logging.Discovery("Promoted artifact %d to %s", a.ID, instructionID)
	return instructionID, nil
}

// synthesize renders the instruction file from the stored section.
func synthesize(id string, a *store.Artifact) string {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "id: %s\n", id)
	if a.SectionTitle != "" {
		fmt.Fprintf(&b, "description: %s\n", yamlScalar(a.SectionTitle))
	}
	if len(a.Keywords) > 0 {
		b.WriteString("tags:\n")
		for _, kw := range a.Keywords {
			fmt.Fprintf(&b, "  - %s\n", yamlScalar(kw))
		}
	}
	b.WriteString("metadata:\n")
	fmt.Fprintf(&b, "  source_path: %s\n", yamlScalar(a.SourcePath))
	if a.SourceType != "" {
		fmt.Fprintf(&b, "  source_type: %s\n", a.SourceType)
	}
	fmt.Fprintf(&b, "  content_hash: %s\n", a.ContentHash)
	b.WriteString("---\n")

	if a.SectionTitle != "" {
		fmt.Fprintf(&b, "# %s\n\n", a.SectionTitle)
	}
	b.WriteString(strings.TrimSpace(a.Section))
	b.WriteString("\n")
	return b.String()
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// slugify reduces a title to a safe file stem.
func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugPattern.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// yamlScalar quotes a value when it could be misparsed as YAML syntax.
func yamlScalar(s string) string {
	if strings.ContainsAny(s, ":#{}[]&*!|>'\"%@`") || strings.TrimSpace(s) != s {
		return fmt.Sprintf("%q", s)
	}
	return s
}
