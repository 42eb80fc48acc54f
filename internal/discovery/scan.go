package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"pongogo/internal/logging"
	"pongogo/internal/store"
)

// ScanResult summarizes one import run.
type ScanResult struct {
	FilesScanned   int
	ArtifactsFound int
	Duplicates     int
}

var headingPattern = regexp.MustCompile(`(?m)^##\s+(.+)$`)

// ScanFile splits a Markdown file into level-2 sections and inserts each
// as a discovered artifact. Duplicate sections (same content hash) are
// counted but not re-inserted.
func ScanFile(sub *store.Substrate, path, sourceType string) (*ScanResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if sourceType == "" {
		sourceType = classifySource(path)
	}

	res := &ScanResult{FilesScanned: 1}
	for _, sec := range splitSections(string(content)) {
		a := &store.Artifact{
			SourcePath:   path,
			SourceType:   sourceType,
			SectionTitle: sec.title,
			Section:      sec.body,
			Keywords:     sectionKeywords(sec.title, sec.body),
		}
		_, inserted, err := sub.InsertArtifact(a)
		if err != nil {
			logging.Get(logging.CategoryDiscovery).Warn("Skipping section %q in %s: %v", sec.title, path, err)
			continue
		}
		if inserted {
			res.ArtifactsFound++
		} else {
			res.Duplicates++
		}
	}

	if err := sub.RecordScan(path, res.FilesScanned, res.ArtifactsFound); err != nil {
		logging.Get(logging.CategoryDiscovery).Warn("Failed to record scan of %s: %v", path, err)
	}
	return res, nil
}

type section struct {
	title string
	body  string
}

// splitSections carves the document at level-2 headings. Content before
// the first heading is ignored; empty sections are dropped.
func splitSections(content string) []section {
	matches := headingPattern.FindAllStringSubmatchIndex(content, -1)
	var sections []section
	for i, m := range matches {
		title := strings.TrimSpace(content[m[2]:m[3]])
		start := m[1]
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		body := strings.TrimSpace(content[start:end])
		if body == "" {
			continue
		}
		sections = append(sections, section{title: title, body: body})
	}
	return sections
}

// classifySource maps a file path to an artifact source type.
func classifySource(path string) string {
	base := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasPrefix(base, "readme"):
		return "readme"
	case strings.HasPrefix(base, "changelog"):
		return "changelog"
	case strings.Contains(path, string(filepath.Separator)+"adr") || strings.HasPrefix(base, "adr"):
		return "adr"
	default:
		return "doc"
	}
}

var wordPattern = regexp.MustCompile(`[a-z][a-z0-9_-]{3,}`)

// sectionKeywords pulls a bounded keyword set from the title and the
// first part of the body. Title words are weighted by coming first.
func sectionKeywords(title, body string) []string {
	const max = 12
	text := strings.ToLower(title + " " + truncate(body, 500))
	var keywords []string
	seen := make(map[string]bool)
	for _, w := range wordPattern.FindAllString(text, -1) {
		if seen[w] {
			continue
		}
		seen[w] = true
		keywords = append(keywords, w)
		if len(keywords) >= max {
			break
		}
	}
	return keywords
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
