package routing

import (
	"time"

	"pongogo/internal/logging"
	"pongogo/internal/store"
)

// EventSink persists routing events. *store.Substrate satisfies it.
type EventSink interface {
	InsertRoutingEvent(ev *store.RoutingEvent) (int64, error)
}

const (
	captureAttempts = 3
	captureBackoff  = 50 * time.Millisecond
)

// CaptureEvent persists one routing event with bounded retries. Capture
// is best-effort: a routing response is never failed because the event
// row could not be written. Returns whether the event was persisted.
func CaptureEvent(sink EventSink, engineVersion, message string, ctx *Context, result *Result, latency time.Duration) bool {
	if sink == nil || result == nil {
		return false
	}

	ev := buildEvent(engineVersion, message, ctx, result, latency)

	var err error
	backoff := captureBackoff
	for attempt := 1; attempt <= captureAttempts; attempt++ {
		if _, err = sink.InsertRoutingEvent(ev); err == nil {
			return true
		}
		if attempt < captureAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}

	logging.Get(logging.CategoryRouting).Error(
		"Event capture failed after %d attempts (hash=%s): %v",
		captureAttempts, store.MessageHash(message), err)
	return false
}

func buildEvent(engineVersion, message string, ctx *Context, result *Result, latency time.Duration) *store.RoutingEvent {
	ev := &store.RoutingEvent{
		UserMessage: message,
		EngineVer:   engineVersion,
		Count:       result.Count,
		LatencyMs:   float64(latency.Microseconds()) / 1000.0,
	}

	ids := make([]string, 0, len(result.Instructions))
	scores := make(map[string]float64, len(result.Instructions))
	for _, si := range result.Instructions {
		ids = append(ids, si.Instruction.ID)
		scores[si.Instruction.ID] = si.Score
	}
	ev.RoutedIDs = ids
	ev.Scores = scores

	if ctx != nil {
		ev.SessionID = ctx.SessionID
		ev.Context = ctx.Raw
	}
	return ev
}
