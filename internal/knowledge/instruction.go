// Package knowledge loads, parses, and indexes instruction files.
// An instruction is a Markdown file with optional YAML frontmatter; the
// store overlays a protected bundled core under any user-provided tree.
package knowledge

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// InstructionSuffix is the filename suffix the store and the watcher
// recognize.
const InstructionSuffix = ".instructions.md"

// RoutingHints carries the frontmatter routing block.
type RoutingHints struct {
	Globs           []string // applyTo.globs
	Keywords        []string // triggers.keywords
	NLP             []string // triggers.nlp
	ContextFiles    []string // contextual.files
	ContextBranches []string // contextual.branches
}

// Instruction is the unit of knowledge.
type Instruction struct {
	ID          string
	Version     string
	Description string
	Tags        []string
	Categories  []string
	Routing     RoutingHints

	Foundational bool
	Procedural   bool

	// Body is the Markdown content below the frontmatter.
	Body string

	// Metadata preserves frontmatter keys that do not influence scoring.
	Metadata map[string]interface{}

	// Protected marks instructions loaded from the bundled core; a user
	// file with a colliding id is skipped.
	Protected bool

	// FilePath is the path the instruction was parsed from (relative to
	// its load root). FileStem is the filename without the suffix.
	FilePath string
	FileStem string
}

// frontmatterPattern splits the YAML header from the Markdown body.
var frontmatterPattern = regexp.MustCompile(`(?s)\A---\n(.*?)\n---\n?(.*)\z`)

// frontmatter mirrors the recognized keys. Everything else lands in the
// opaque metadata map.
type frontmatter struct {
	ID           string                 `yaml:"id"`
	Version      string                 `yaml:"version"`
	Schema       string                 `yaml:"schema"`
	Description  string                 `yaml:"description"`
	Tags         []string               `yaml:"tags"`
	Categories   []string               `yaml:"categories"`
	Domains      []string               `yaml:"domains"`
	Patterns     []string               `yaml:"patterns"`
	AppliesTo    []string               `yaml:"applies_to"`
	Routing      *routingBlock          `yaml:"routing"`
	Foundational bool                   `yaml:"foundational"`
	Procedural   bool                   `yaml:"procedural"`
	Metadata     map[string]interface{} `yaml:"metadata"`
}

type routingBlock struct {
	ApplyTo *struct {
		Globs []string `yaml:"globs"`
	} `yaml:"applyTo"`
	Triggers *struct {
		Keywords []string `yaml:"keywords"`
		NLP      []string `yaml:"nlp"`
	} `yaml:"triggers"`
	Contextual *struct {
		Files    []string `yaml:"files"`
		Branches []string `yaml:"branches"`
	} `yaml:"contextual"`
}

// recognizedKeys are extracted into typed fields; anything else in the
// frontmatter is preserved opaquely.
var recognizedKeys = map[string]bool{
	"id": true, "version": true, "schema": true, "description": true,
	"tags": true, "categories": true, "domains": true, "patterns": true,
	"applies_to": true, "routing": true, "foundational": true,
	"procedural": true, "metadata": true,
}

// Parse builds an Instruction from file content. relPath is the path
// relative to the load root; its parent directory supplies the leading
// category unless the parent is the root itself.
func Parse(relPath string, content []byte) (*Instruction, error) {
	stem := strings.TrimSuffix(filepath.Base(relPath), InstructionSuffix)
	stem = strings.TrimSuffix(stem, ".md") // tolerate bare .md during parse

	inst := &Instruction{
		FilePath: relPath,
		FileStem: stem,
		Metadata: make(map[string]interface{}),
	}

	var fm frontmatter
	body := string(content)

	if m := frontmatterPattern.FindSubmatch(content); m != nil {
		if err := yaml.Unmarshal(m[1], &fm); err != nil {
			return nil, fmt.Errorf("invalid frontmatter in %s: %w", relPath, err)
		}
		// Second pass for unknown keys preserved in the opaque map.
		var raw map[string]interface{}
		if err := yaml.Unmarshal(m[1], &raw); err == nil {
			for k, v := range raw {
				if !recognizedKeys[k] {
					inst.Metadata[k] = v
				}
			}
		}
		body = string(m[2])
	}

	for k, v := range fm.Metadata {
		inst.Metadata[k] = v
	}

	inst.ID = fm.ID
	if inst.ID == "" {
		inst.ID = stem
	}
	inst.Version = fm.Version
	inst.Description = fm.Description
	inst.Foundational = fm.Foundational
	inst.Procedural = fm.Procedural
	inst.Body = body

	// tags default to patterns when absent.
	inst.Tags = fm.Tags
	if len(inst.Tags) == 0 && len(fm.Patterns) > 0 {
		inst.Tags = append([]string(nil), fm.Patterns...)
	}

	// domains append after explicit categories.
	inst.Categories = append([]string(nil), fm.Categories...)
	inst.Categories = append(inst.Categories, fm.Domains...)

	// Directory-derived category goes first; downstream category/name
	// matching depends on this ordering.
	dir := filepath.Base(filepath.Dir(relPath))
	if dir != "." && dir != "/" && dir != "" {
		if len(inst.Categories) == 0 || inst.Categories[0] != dir {
			inst.Categories = append([]string{dir}, removeString(inst.Categories, dir)...)
		}
	}

	if fm.Routing != nil {
		if fm.Routing.ApplyTo != nil {
			inst.Routing.Globs = append([]string(nil), fm.Routing.ApplyTo.Globs...)
		}
		if fm.Routing.Triggers != nil {
			inst.Routing.Keywords = fm.Routing.Triggers.Keywords
			inst.Routing.NLP = fm.Routing.Triggers.NLP
		}
		if fm.Routing.Contextual != nil {
			inst.Routing.ContextFiles = fm.Routing.Contextual.Files
			inst.Routing.ContextBranches = fm.Routing.Contextual.Branches
		}
	}

	// Top-level applies_to merges (set union) into the routing globs.
	inst.Routing.Globs = unionStrings(inst.Routing.Globs, fm.AppliesTo)

	return inst, nil
}

// Category returns the primary (directory-derived) category, or "" when
// the instruction lives at the root namespace.
func (i *Instruction) Category() string {
	if len(i.Categories) == 0 {
		return ""
	}
	return i.Categories[0]
}

// NormalizedID returns category/stem, the form used for bundle and
// look-back matching.
func (i *Instruction) NormalizedID() string {
	if c := i.Category(); c != "" && !strings.Contains(i.FileStem, "/") {
		return c + "/" + i.FileStem
	}
	return i.FileStem
}

// HasCategory reports whether the instruction carries the given category.
func (i *Instruction) HasCategory(category string) bool {
	for _, c := range i.Categories {
		if c == category {
			return true
		}
	}
	return false
}

func removeString(ss []string, target string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

func unionStrings(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a))
	out := append([]string(nil), a...)
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
