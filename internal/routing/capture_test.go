package routing

import (
	"errors"
	"testing"
	"time"

	"pongogo/internal/store"
)

// flakySink fails a configured number of times before accepting writes.
type flakySink struct {
	failures int
	attempts int
	last     *store.RoutingEvent
}

func (f *flakySink) InsertRoutingEvent(ev *store.RoutingEvent) (int64, error) {
	f.attempts++
	if f.attempts <= f.failures {
		return 0, errors.New("database locked")
	}
	f.last = ev
	return int64(f.attempts), nil
}

func captureFixtureResult(t *testing.T) *Result {
	t.Helper()
	engine := newTestEngine(t, nil)
	return engine.Route("fix the github api integration", &Context{SessionID: "sess-7"}, 5)
}

func TestCaptureEventFirstTry(t *testing.T) {
	sink := &flakySink{}
	result := captureFixtureResult(t)

	ok := CaptureEvent(sink, Durian06Version, "fix the github api integration",
		&Context{SessionID: "sess-7"}, result, 2*time.Millisecond)
	if !ok {
		t.Fatal("capture should succeed")
	}
	if sink.attempts != 1 {
		t.Errorf("attempts = %d, want 1", sink.attempts)
	}
	if sink.last.EngineVer != Durian06Version {
		t.Errorf("EngineVer = %q", sink.last.EngineVer)
	}
	if sink.last.SessionID != "sess-7" {
		t.Errorf("SessionID = %q", sink.last.SessionID)
	}
	if len(sink.last.RoutedIDs) != result.Count {
		t.Errorf("RoutedIDs = %v, want %d ids", sink.last.RoutedIDs, result.Count)
	}
	if len(sink.last.Scores) != result.Count {
		t.Errorf("Scores = %v", sink.last.Scores)
	}
}

func TestCaptureEventRetriesThenSucceeds(t *testing.T) {
	sink := &flakySink{failures: 2}
	result := captureFixtureResult(t)

	ok := CaptureEvent(sink, Durian06Version, "msg", nil, result, time.Millisecond)
	if !ok {
		t.Fatal("third attempt should succeed")
	}
	if sink.attempts != 3 {
		t.Errorf("attempts = %d, want 3", sink.attempts)
	}
}

func TestCaptureEventGivesUpAfterThree(t *testing.T) {
	sink := &flakySink{failures: 10}
	result := captureFixtureResult(t)

	ok := CaptureEvent(sink, Durian06Version, "msg", nil, result, time.Millisecond)
	if ok {
		t.Fatal("capture should report failure")
	}
	if sink.attempts != captureAttempts {
		t.Errorf("attempts = %d, want %d", sink.attempts, captureAttempts)
	}
}

func TestCaptureEventNilSink(t *testing.T) {
	result := captureFixtureResult(t)
	if CaptureEvent(nil, Durian06Version, "msg", nil, result, 0) {
		t.Error("nil sink should report false without panicking")
	}
}
