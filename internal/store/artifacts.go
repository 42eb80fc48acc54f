package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"pongogo/internal/logging"
)

// =============================================================================
// ARTIFACT LIFECYCLE - file-sourced knowledge candidates
// =============================================================================

// Artifact statuses. A promoted artifact always carries a PromotedTo link.
const (
	StatusDiscovered = "discovered"
	StatusReviewing  = "reviewing"
	StatusPromoted   = "promoted"
	StatusRejected   = "rejected"
	StatusArchived   = "archived"
)

// Artifact source types — the closed set of places a candidate can come from.
var ArtifactSourceTypes = map[string]bool{
	"readme":        true,
	"doc":           true,
	"comment_block": true,
	"changelog":     true,
	"adr":           true,
}

// Artifact is a file-sourced knowledge candidate, deduplicated on the
// SHA-256 hash of its section content.
type Artifact struct {
	ID           int64
	SourcePath   string
	SourceType   string
	SectionTitle string
	Section      string
	ContentHash  string
	Keywords     []string
	Status       string
	PromotedTo   sql.NullInt64
	DiscoveredAt time.Time
	UpdatedAt    time.Time
}

// Implementation is the record created when an artifact is promoted into a
// real instruction file.
type Implementation struct {
	ID              int64
	InstructionPath string
	Category        string
	Title           string
	Status          string
	CreatedAt       time.Time
}

// ContentHash computes the dedup hash over section content.
func ContentHash(section string) string {
	sum := sha256.Sum256([]byte(section))
	return hex.EncodeToString(sum[:])
}

// InsertArtifact stores a discovered artifact. Returns inserted=false when
// an artifact with the same content hash already exists ("no new row").
func (s *Substrate) InsertArtifact(a *Artifact) (int64, bool, error) {
	if a.SourceType != "" && !ArtifactSourceTypes[a.SourceType] {
		return 0, false, fmt.Errorf("unknown artifact source type %q", a.SourceType)
	}
	if a.ContentHash == "" {
		a.ContentHash = ContentHash(a.Section)
	}
	keywordsJSON, _ := json.Marshal(a.Keywords)

	var id int64
	var inserted bool
	err := s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`INSERT INTO artifact_discovered
			 (source_path, source_type, section_title, section_content, content_hash, keywords, status)
			 VALUES (?, ?, ?, ?, ?, ?, 'discovered')
			 ON CONFLICT(content_hash) DO NOTHING`,
			a.SourcePath, a.SourceType, a.SectionTitle, a.Section, a.ContentHash, string(keywordsJSON),
		)
		if err != nil {
			return fmt.Errorf("failed to insert artifact: %w", err)
		}
		n, _ := res.RowsAffected()
		inserted = n > 0
		if inserted {
			id, err = res.LastInsertId()
			return err
		}
		return tx.QueryRow(
			`SELECT id FROM artifact_discovered WHERE content_hash = ?`, a.ContentHash,
		).Scan(&id)
	})
	if err != nil {
		return 0, false, err
	}

	if inserted {
		logging.Discovery("Artifact discovered: id=%d source=%s title=%q", id, a.SourcePath, a.SectionTitle)
	}
	return id, inserted, nil
}

// ArtifactsByStatus enumerates artifacts in one lifecycle state.
func (s *Substrate) ArtifactsByStatus(status string, limit int) ([]*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(
		`SELECT id, source_path, source_type, COALESCE(section_title, ''),
		        COALESCE(section_content, ''), content_hash, keywords, status,
		        promoted_to, discovered_at, updated_at
		 FROM artifact_discovered WHERE status = ?
		 ORDER BY discovered_at DESC LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []*Artifact
	for rows.Next() {
		a := &Artifact{}
		var keywordsJSON string
		if err := rows.Scan(&a.ID, &a.SourcePath, &a.SourceType, &a.SectionTitle,
			&a.Section, &a.ContentHash, &keywordsJSON, &a.Status,
			&a.PromotedTo, &a.DiscoveredAt, &a.UpdatedAt); err != nil {
			continue
		}
		_ = json.Unmarshal([]byte(keywordsJSON), &a.Keywords)
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

// ArtifactByID fetches one artifact.
func (s *Substrate) ArtifactByID(id int64) (*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a := &Artifact{}
	var keywordsJSON string
	err := s.db.QueryRow(
		`SELECT id, source_path, source_type, COALESCE(section_title, ''),
		        COALESCE(section_content, ''), content_hash, keywords, status,
		        promoted_to, discovered_at, updated_at
		 FROM artifact_discovered WHERE id = ?`, id).Scan(
		&a.ID, &a.SourcePath, &a.SourceType, &a.SectionTitle,
		&a.Section, &a.ContentHash, &keywordsJSON, &a.Status,
		&a.PromotedTo, &a.DiscoveredAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(keywordsJSON), &a.Keywords)
	return a, nil
}

// PromoteArtifact creates the implementation row and flips the artifact to
// promoted with a FK to it, in one transaction.
func (s *Substrate) PromoteArtifact(artifactID int64, impl *Implementation) (int64, error) {
	var implID int64
	err := s.withTx(func(tx *sql.Tx) error {
		var status string
		if err := tx.QueryRow(
			`SELECT status FROM artifact_discovered WHERE id = ?`, artifactID,
		).Scan(&status); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("artifact %d not found", artifactID)
			}
			return err
		}
		if status == StatusPromoted {
			return fmt.Errorf("artifact %d already promoted", artifactID)
		}

		res, err := tx.Exec(
			`INSERT INTO artifact_implemented (instruction_path, category, title, status)
			 VALUES (?, ?, ?, 'active')`,
			impl.InstructionPath, impl.Category, impl.Title,
		)
		if err != nil {
			return fmt.Errorf("failed to insert implementation: %w", err)
		}
		implID, err = res.LastInsertId()
		if err != nil {
			return err
		}

		_, err = tx.Exec(
			`UPDATE artifact_discovered
			 SET status = 'promoted', promoted_to = ?, updated_at = CURRENT_TIMESTAMP
			 WHERE id = ?`, implID, artifactID)
		if err != nil {
			return fmt.Errorf("failed to promote artifact: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	logging.Discovery("Artifact promoted: artifact=%d implementation=%d path=%s",
		artifactID, implID, impl.InstructionPath)
	return implID, nil
}

// SetArtifactStatus moves an artifact to reviewing/archived without
// creating an implementation. Promotion must go through PromoteArtifact.
func (s *Substrate) SetArtifactStatus(artifactID int64, status string) error {
	if status == StatusPromoted {
		return fmt.Errorf("use PromoteArtifact to promote")
	}
	return s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`UPDATE artifact_discovered SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			status, artifactID)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("artifact %d not found", artifactID)
		}
		return nil
	})
}

// ImplementationByID fetches one implementation row.
func (s *Substrate) ImplementationByID(id int64) (*Implementation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	impl := &Implementation{}
	err := s.db.QueryRow(
		`SELECT id, instruction_path, COALESCE(category, ''), COALESCE(title, ''), status, created_at
		 FROM artifact_implemented WHERE id = ?`, id).Scan(
		&impl.ID, &impl.InstructionPath, &impl.Category, &impl.Title, &impl.Status, &impl.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return impl, nil
}

// RecordScan appends a scan_history row.
func (s *Substrate) RecordScan(source string, filesScanned, artifactsFound int) error {
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO scan_history (source, files_scanned, artifacts_found) VALUES (?, ?, ?)`,
			source, filesScanned, artifactsFound)
		return err
	})
}

// RecentScans returns scan history, newest first.
func (s *Substrate) RecentScans(limit int) ([]map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT scan_date, COALESCE(source, ''), files_scanned, artifacts_found
		 FROM scan_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scans []map[string]interface{}
	for rows.Next() {
		var date time.Time
		var source string
		var files, found int
		if err := rows.Scan(&date, &source, &files, &found); err != nil {
			continue
		}
		scans = append(scans, map[string]interface{}{
			"scan_date":       date,
			"source":          source,
			"files_scanned":   files,
			"artifacts_found": found,
		})
	}
	return scans, rows.Err()
}
