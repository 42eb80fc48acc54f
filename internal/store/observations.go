package store

import (
	"database/sql"
	"fmt"
	"time"

	"pongogo/internal/logging"
)

// =============================================================================
// OBSERVATION LIFECYCLE - runtime-sourced knowledge candidates
// =============================================================================

// Observation types.
const (
	ObservationExplicitGuidance = "explicit_guidance"
	ObservationImplicitGuidance = "implicit_guidance"
	ObservationCorrection       = "correction"
	ObservationPattern          = "pattern"
)

// Implementation types accepted by PromoteObservation.
var ObservationImplementationTypes = map[string]bool{
	"trigger":      true,
	"instruction":  true,
	"project_rule": true,
}

// Observation is a runtime-sourced knowledge candidate, optionally linked
// to the routing event that produced it.
type Observation struct {
	ID               int64
	RoutingEventID   sql.NullInt64
	Type             string
	Content          string
	Target           string
	GuidanceType     string
	PersistenceScope string
	Status           string
	PromotedTo       sql.NullInt64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ObservationImplementation records what a promoted observation became.
type ObservationImplementation struct {
	ID                 int64
	ImplementationType string
	Reference          string
	Status             string
	CreatedAt          time.Time
}

// InsertObservation stores a discovered observation.
func (s *Substrate) InsertObservation(o *Observation) (int64, error) {
	if o.Type == "" || o.Content == "" {
		return 0, fmt.Errorf("observation type and content are required")
	}

	var id int64
	err := s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`INSERT INTO observation_discovered
			 (routing_event_id, observation_type, content, target, guidance_type, persistence_scope, status)
			 VALUES (?, ?, ?, ?, ?, ?, 'discovered')`,
			nullInt(o.RoutingEventID), o.Type, o.Content,
			nullable(o.Target), nullable(o.GuidanceType), nullable(o.PersistenceScope),
		)
		if err != nil {
			return fmt.Errorf("failed to insert observation: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}

	logging.Discovery("Observation recorded: id=%d type=%s", id, o.Type)
	return id, nil
}

// ObservationsByStatus enumerates observations in one lifecycle state.
func (s *Substrate) ObservationsByStatus(status string, limit int) ([]*Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(
		`SELECT id, routing_event_id, observation_type, content,
		        COALESCE(target, ''), COALESCE(guidance_type, ''), COALESCE(persistence_scope, ''),
		        status, promoted_to, created_at, updated_at
		 FROM observation_discovered WHERE status = ?
		 ORDER BY created_at DESC LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var observations []*Observation
	for rows.Next() {
		o := &Observation{}
		if err := rows.Scan(&o.ID, &o.RoutingEventID, &o.Type, &o.Content,
			&o.Target, &o.GuidanceType, &o.PersistenceScope,
			&o.Status, &o.PromotedTo, &o.CreatedAt, &o.UpdatedAt); err != nil {
			continue
		}
		observations = append(observations, o)
	}
	return observations, rows.Err()
}

// PromoteObservation creates the implementation row and flips the
// observation to promoted. implementationType must be one of trigger,
// instruction, or project_rule.
func (s *Substrate) PromoteObservation(observationID int64, implementationType, reference string) (int64, error) {
	if !ObservationImplementationTypes[implementationType] {
		return 0, fmt.Errorf("unknown implementation type %q", implementationType)
	}

	var implID int64
	err := s.withTx(func(tx *sql.Tx) error {
		var status string
		if err := tx.QueryRow(
			`SELECT status FROM observation_discovered WHERE id = ?`, observationID,
		).Scan(&status); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("observation %d not found", observationID)
			}
			return err
		}
		if status == StatusPromoted {
			return fmt.Errorf("observation %d already promoted", observationID)
		}

		res, err := tx.Exec(
			`INSERT INTO observation_implemented (implementation_type, reference, status)
			 VALUES (?, ?, 'active')`, implementationType, reference)
		if err != nil {
			return fmt.Errorf("failed to insert observation implementation: %w", err)
		}
		implID, err = res.LastInsertId()
		if err != nil {
			return err
		}

		_, err = tx.Exec(
			`UPDATE observation_discovered
			 SET status = 'promoted', promoted_to = ?, updated_at = CURRENT_TIMESTAMP
			 WHERE id = ?`, implID, observationID)
		return err
	})
	if err != nil {
		return 0, err
	}

	logging.Discovery("Observation promoted: observation=%d implementation=%d type=%s",
		observationID, implID, implementationType)
	return implID, nil
}

// SetObservationStatus moves an observation to reviewing/rejected/archived.
func (s *Substrate) SetObservationStatus(observationID int64, status string) error {
	if status == StatusPromoted {
		return fmt.Errorf("use PromoteObservation to promote")
	}
	return s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`UPDATE observation_discovered SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			status, observationID)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("observation %d not found", observationID)
		}
		return nil
	})
}

// =============================================================================
// GUIDANCE FULFILLMENT - tracks whether a guidance_action was acted on
// =============================================================================

// InsertGuidanceFulfillment records an emitted guidance_action directive.
func (s *Substrate) InsertGuidanceFulfillment(sessionID, action, guidanceType, content string) (int64, error) {
	var id int64
	err := s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`INSERT INTO guidance_fulfillment (session_id, action, guidance_type, content, status)
			 VALUES (?, ?, ?, ?, 'pending')`,
			nullable(sessionID), action, nullable(guidanceType), nullable(content))
		if err != nil {
			return fmt.Errorf("failed to insert guidance fulfillment: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// ResolveGuidanceFulfillment marks a pending directive fulfilled or ignored.
func (s *Substrate) ResolveGuidanceFulfillment(id int64, status string) error {
	return s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`UPDATE guidance_fulfillment SET status = ?, resolved_at = CURRENT_TIMESTAMP WHERE id = ?`,
			status, id)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("guidance fulfillment %d not found", id)
		}
		return nil
	})
}

// PendingGuidance returns unresolved guidance directives for a session.
func (s *Substrate) PendingGuidance(sessionID string) ([]map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, action, COALESCE(guidance_type, ''), COALESCE(content, ''), created_at
		 FROM guidance_fulfillment
		 WHERE status = 'pending' AND (session_id = ? OR ? = '')
		 ORDER BY id DESC`, sessionID, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []map[string]interface{}
	for rows.Next() {
		var id int64
		var action, gtype, content string
		var created time.Time
		if err := rows.Scan(&id, &action, &gtype, &content, &created); err != nil {
			continue
		}
		pending = append(pending, map[string]interface{}{
			"id":            id,
			"action":        action,
			"guidance_type": gtype,
			"content":       content,
			"created_at":    created,
		})
	}
	return pending, rows.Err()
}

func nullInt(n sql.NullInt64) interface{} {
	if !n.Valid {
		return nil
	}
	return n.Int64
}
