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
// ROUTING EVENTS - append-only record of every route invocation
// =============================================================================

// RoutingEvent is the persisted record of a single route call. Events are
// append-only; there is no update path.
type RoutingEvent struct {
	ID		int64
	Timestamp	time.Time
	UserMessage	string
	MessageHash	string
	RoutedIDs	[]string
	Count		int
	Scores		map[string]float64
	EngineVer	string
	SessionID	string
	Context		map[string]interface{}
	LatencyMs	float64
}

// MessageHash returns the 16-character hash used to correlate events
// without storing duplicate message text in indexes.
func MessageHash(message string) string {
	sum := sha256.Sum256([]byte(message))
	return hex.EncodeToString(sum[:])[:16]
}

// InsertRoutingEvent appends one routing event.
func (s *Substrate) InsertRoutingEvent(ev *RoutingEvent) (int64, error) {
	routedJSON, _ := json.Marshal(ev.RoutedIDs)
	scoresJSON, _ := json.Marshal(ev.Scores)
	var contextJSON []byte
	if ev.Context != nil {
		contextJSON, _ = json.Marshal(ev.Context)
	}

	var id int64
	err := s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`INSERT INTO routing_events
			 (user_message, message_hash, routed_instructions, instruction_count,
			  instruction_scores, engine_version, session_id, context_snapshot, latency_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.UserMessage, MessageHash(ev.UserMessage), string(routedJSON), len(ev.RoutedIDs),
			string(scoresJSON), ev.EngineVer, nullable(ev.SessionID), nullableBytes(contextJSON), ev.LatencyMs,
		)
		if err != nil {
			return fmt.Errorf("failed to insert routing event: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}

	logging.StoreDebug("Routing event recorded: id=%d count=%d engine=%s", id, len(ev.RoutedIDs), ev.EngineVer)
	return id, nil
}

// EventCount returns the number of persisted routing events.
func (s *Substrate) EventCount() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM routing_events`).Scan(&count)
	return count, err
}

// RecentEvents returns the most recent events, newest first.
func (s *Substrate) RecentEvents(limit int) ([]*RoutingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT id, timestamp, user_message, message_hash, routed_instructions,
		        instruction_count, instruction_scores, engine_version,
		        COALESCE(session_id, ''), COALESCE(context_snapshot, ''), COALESCE(latency_ms, 0)
		 FROM routing_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*RoutingEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// LastEvent returns the most recent routing event, or nil when none exist.
func (s *Substrate) LastEvent() (*RoutingEvent, error) {
	events, err := s.RecentEvents(1)
	if err != nil || len(events) == 0 {
		return nil, err
	}
	return events[0], nil
}

// PreviousRoutedIDs returns the routed-id list of the most recent event
// with a non-zero instruction count, offset positions back (offset 1 skips
// the event for the request currently in flight).
func (s *Substrate) PreviousRoutedIDs(offset int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if offset < 0 {
		offset = 0
	}

	var routedJSON string
	err := s.db.QueryRow(
		`SELECT routed_instructions FROM routing_events
		 WHERE instruction_count > 0
		 ORDER BY id DESC LIMIT 1 OFFSET ?`, offset).Scan(&routedJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var ids []string
	if err := json.Unmarshal([]byte(routedJSON), &ids); err != nil {
		return nil, fmt.Errorf("failed to decode routed instructions: %w", err)
	}
	return ids, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*RoutingEvent, error) {
	ev := &RoutingEvent{}
	var routedJSON, scoresJSON, contextJSON string
	if err := row.Scan(
		&ev.ID, &ev.Timestamp, &ev.UserMessage, &ev.MessageHash, &routedJSON,
		&ev.Count, &scoresJSON, &ev.EngineVer, &ev.SessionID, &contextJSON, &ev.LatencyMs,
	); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(routedJSON), &ev.RoutedIDs)
	_ = json.Unmarshal([]byte(scoresJSON), &ev.Scores)
	if contextJSON != "" {
		_ = json.Unmarshal([]byte(contextJSON), &ev.Context)
	}
	return ev, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
