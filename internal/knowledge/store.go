package knowledge

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pongogo/internal/logging"
)

// Store holds the loaded instruction index. It is immutable after Load;
// hot reload builds a fresh Store and swaps the pointer.
type Store struct {
	byID       map[string]*Instruction
	byCategory map[string][]*Instruction
	order      []*Instruction
	protected  map[string]bool
	userRoot   string
}

// SearchResult is one scored hit from Search.
type SearchResult struct {
	Instruction *Instruction
	Score       int
	Snippet     string
}

// Load builds a store in two phases: the bundled core first (protected),
// then the user tree. A user instruction whose id collides with a
// protected id is skipped with a warning — loading user files first would
// silently break the protection guarantee.
func Load(coreFS fs.FS, userRoot string) (*Store, error) {
	s := &Store{
		byID:       make(map[string]*Instruction),
		byCategory: make(map[string][]*Instruction),
		protected:  make(map[string]bool),
		userRoot:   userRoot,
	}

	timer := logging.StartTimer(logging.CategoryKnowledge, "knowledge.Load")
	defer timer.Stop()

	if coreFS != nil {
		if err := s.loadCore(coreFS); err != nil {
			return nil, err
		}
	}
	if userRoot != "" {
		s.loadUser(userRoot)
	}

	logging.Knowledge("Instruction store loaded: %d instructions (%d protected)",
		len(s.order), len(s.protected))
	return s, nil
}

// loadCore walks the bundled core filesystem and indexes every
// instruction as protected.
func (s *Store) loadCore(coreFS fs.FS) error {
	return fs.WalkDir(coreFS, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, InstructionSuffix) {
			return nil
		}
		content, err := fs.ReadFile(coreFS, path)
		if err != nil {
			logging.Get(logging.CategoryKnowledge).Error("Failed to read core instruction %s: %v", path, err)
			return nil
		}
		inst, err := Parse(path, content)
		if err != nil {
			logging.Get(logging.CategoryKnowledge).Error("Failed to parse core instruction %s: %v", path, err)
			return nil
		}
		inst.Protected = true
		s.index(inst)
		s.protected[inst.ID] = true
		return nil
	})
}

// loadUser walks the user knowledge root. A missing root is not fatal;
// per-file errors are logged and skipped.
func (s *Store) loadUser(root string) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		logging.Knowledge("User knowledge root missing, loaded 0 user instructions: %s", root)
		return
	}

	loaded, skipped := 0, 0
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.Get(logging.CategoryKnowledge).Warn("Walk error at %s: %v", path, err)
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(path, InstructionSuffix) {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		content, err := os.ReadFile(path)
		if err != nil {
			logging.Get(logging.CategoryKnowledge).Warn("Failed to read %s: %v", path, err)
			skipped++
			return nil
		}
		inst, err := Parse(filepath.ToSlash(rel), content)
		if err != nil {
			logging.Get(logging.CategoryKnowledge).Warn("Skipping %s: %v", path, err)
			skipped++
			return nil
		}
		if s.protected[inst.ID] {
			logging.Get(logging.CategoryKnowledge).Warn(
				"Skipping user instruction %s: id %q shadows a protected core instruction", path, inst.ID)
			skipped++
			return nil
		}
		if _, dup := s.byID[inst.ID]; dup {
			logging.Get(logging.CategoryKnowledge).Warn(
				"Skipping user instruction %s: duplicate id %q", path, inst.ID)
			skipped++
			return nil
		}
		s.index(inst)
		loaded++
		return nil
	})

	logging.KnowledgeDebug("User phase: loaded=%d skipped=%d root=%s", loaded, skipped, root)
}

func (s *Store) index(inst *Instruction) {
	s.byID[inst.ID] = inst
	s.order = append(s.order, inst)
	for _, cat := range inst.Categories {
		s.byCategory[cat] = append(s.byCategory[cat], inst)
	}
}

// Count returns the number of loaded instructions.
func (s *Store) Count() int {
	return len(s.order)
}

// UserRoot returns the user knowledge root the store was loaded from.
func (s *Store) UserRoot() string {
	return s.userRoot
}

// All enumerates instructions in insertion order (core first).
func (s *Store) All() []*Instruction {
	return s.order
}

// ByID returns the instruction with the exact id, or nil.
func (s *Store) ByID(id string) *Instruction {
	return s.byID[id]
}

// IsProtected reports whether an id belongs to the bundled core.
func (s *Store) IsProtected(id string) bool {
	return s.protected[id]
}

// Get resolves category/name to an instruction. With exact set, only the
// id forms "category/name" and "name" match; otherwise a file stem equal
// to name combined with a matching category or parent directory also
// resolves.
func (s *Store) Get(category, name string, exact bool) *Instruction {
	if category != "" {
		if inst, ok := s.byID[category+"/"+name]; ok {
			return inst
		}
	}
	if inst, ok := s.byID[name]; ok {
		if category == "" || inst.HasCategory(category) || !exact {
			return inst
		}
	}
	if exact {
		return nil
	}

	for _, inst := range s.order {
		if inst.FileStem != name {
			continue
		}
		if category == "" || inst.HasCategory(category) ||
			filepath.Base(filepath.Dir(inst.FilePath)) == category {
			return inst
		}
	}
	return nil
}

// ByCategory enumerates a category's instructions in insertion order.
func (s *Store) ByCategory(category string) []*Instruction {
	return s.byCategory[category]
}

// Categories returns all known category names, sorted.
func (s *Store) Categories() []string {
	cats := make([]string, 0, len(s.byCategory))
	for c := range s.byCategory {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

// Search scores instructions against a case-insensitive query: id +10,
// description +8, category +7, tag +5, body +3. Body hits also return a
// snippet around the first occurrence. Results come back sorted by score
// descending, capped at limit.
func (s *Store) Search(query string, limit int) []SearchResult {
	if limit <= 0 {
		limit = 10
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var results []SearchResult
	for _, inst := range s.order {
		score := 0
		snippet := ""

		if strings.Contains(strings.ToLower(inst.ID), q) {
			score += 10
		}
		if strings.Contains(strings.ToLower(inst.Description), q) {
			score += 8
		}
		for _, cat := range inst.Categories {
			if strings.Contains(strings.ToLower(cat), q) {
				score += 7
				break
			}
		}
		for _, tag := range inst.Tags {
			if strings.Contains(strings.ToLower(tag), q) {
				score += 5
				break
			}
		}
		if idx := strings.Index(strings.ToLower(inst.Body), q); idx >= 0 {
			score += 3
			snippet = extractSnippet(inst.Body, idx, len(q))
		}

		if score > 0 {
			results = append(results, SearchResult{Instruction: inst, Score: score, Snippet: snippet})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// extractSnippet returns ±100 characters around the first body match.
func extractSnippet(body string, idx, matchLen int) string {
	start := idx - 100
	if start < 0 {
		start = 0
	}
	end := idx + matchLen + 100
	if end > len(body) {
		end = len(body)
	}
	snippet := strings.TrimSpace(body[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(body) {
		snippet += "..."
	}
	return snippet
}

// Foundational enumerates instructions flagged foundational, in discovery
// order.
func (s *Store) Foundational() []*Instruction {
	var out []*Instruction
	for _, inst := range s.order {
		if inst.Foundational || metadataFlag(inst.Metadata, "foundational") {
			out = append(out, inst)
		}
	}
	return out
}

func metadataFlag(meta map[string]interface{}, key string) bool {
	if meta == nil {
		return false
	}
	v, ok := meta[key]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// Validate checks the store-wide invariants: unique ids and the
// directory-derived category at index 0.
func (s *Store) Validate() error {
	for _, inst := range s.order {
		dir := filepath.Base(filepath.Dir(inst.FilePath))
		if dir != "." && dir != "" && len(inst.Categories) > 0 && inst.Categories[0] != dir {
			return fmt.Errorf("instruction %s: categories[0]=%q, want directory %q",
				inst.ID, inst.Categories[0], dir)
		}
	}
	return nil
}
