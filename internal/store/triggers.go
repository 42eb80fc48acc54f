package store

import (
	"database/sql"
	"fmt"
	"time"
)

// =============================================================================
// ROUTING TRIGGERS - the learned/built-in trigger dictionary
// =============================================================================

// Trigger types. The dictionary holds exactly these four families.
const (
	TriggerFriction         = "friction"
	TriggerExplicitGuidance = "explicit_guidance"
	TriggerImplicitGuidance = "implicit_guidance"
	TriggerViolation        = "violation"
)

// Trigger sources.
const (
	TriggerSourceBuiltin = "builtin"
	TriggerSourceLearned = "learned"
	TriggerSourceUser    = "user"
)

// Trigger is one dictionary entry, unique on (Type, Key).
type Trigger struct {
	ID          int64
	Type        string
	Key         string
	Value       string
	Category    string
	Description string
	Source      string
	Confidence  string
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UpsertTrigger inserts or updates a dictionary entry keyed on
// (trigger_type, trigger_key).
func (s *Substrate) UpsertTrigger(t *Trigger) error {
	if t.Type == "" || t.Key == "" {
		return fmt.Errorf("trigger type and key are required")
	}
	if t.Source == "" {
		t.Source = TriggerSourceBuiltin
	}
	if t.Confidence == "" {
		t.Confidence = "medium"
	}

	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO routing_triggers
			 (trigger_type, trigger_key, trigger_value, category, description, source, confidence, enabled, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
			 ON CONFLICT(trigger_type, trigger_key) DO UPDATE SET
			   trigger_value = excluded.trigger_value,
			   category = excluded.category,
			   description = excluded.description,
			   source = excluded.source,
			   confidence = excluded.confidence,
			   enabled = excluded.enabled,
			   updated_at = CURRENT_TIMESTAMP`,
			t.Type, t.Key, t.Value, t.Category, t.Description, t.Source, t.Confidence, boolToInt(t.Enabled),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert trigger %s/%s: %w", t.Type, t.Key, err)
		}
		return nil
	})
}

// TriggersByType returns dictionary entries of one type. When enabledOnly
// is set, disabled entries are filtered out.
func (s *Substrate) TriggersByType(triggerType string, enabledOnly bool) ([]*Trigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, trigger_type, trigger_key, COALESCE(trigger_value, ''),
	                 COALESCE(category, ''), COALESCE(description, ''),
	                 source, confidence, enabled, created_at, updated_at
	          FROM routing_triggers WHERE trigger_type = ?`
	if enabledOnly {
		query += ` AND enabled = 1`
	}
	query += ` ORDER BY trigger_key`

	rows, err := s.db.Query(query, triggerType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var triggers []*Trigger
	for rows.Next() {
		t := &Trigger{}
		var enabled int
		if err := rows.Scan(&t.ID, &t.Type, &t.Key, &t.Value, &t.Category, &t.Description,
			&t.Source, &t.Confidence, &enabled, &t.CreatedAt, &t.UpdatedAt); err != nil {
			continue
		}
		t.Enabled = enabled != 0
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}

// SetTriggerEnabled flips the enabled flag on one entry.
func (s *Substrate) SetTriggerEnabled(triggerType, key string, enabled bool) error {
	return s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`UPDATE routing_triggers SET enabled = ?, updated_at = CURRENT_TIMESTAMP
			 WHERE trigger_type = ? AND trigger_key = ?`,
			boolToInt(enabled), triggerType, key,
		)
		if err != nil {
			return fmt.Errorf("failed to update trigger: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("trigger %s/%s not found", triggerType, key)
		}
		return nil
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
