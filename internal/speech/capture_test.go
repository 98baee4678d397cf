package speech

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
)

// fakeRecognizer records every opened session so tests can drive events.
type fakeRecognizer struct {
	mu       sync.Mutex
	sessions []*fakeSession
	openErr  error
}

type fakeSession struct {
	callbacks CaptureCallbacks
	closed    bool
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

func (r *fakeRecognizer) Open(language string, callbacks CaptureCallbacks) (CaptureSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.openErr != nil {
		return nil, r.openErr
	}
	s := &fakeSession{callbacks: callbacks}
	r.sessions = append(r.sessions, s)
	return s, nil
}

func (r *fakeRecognizer) last() *fakeSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[len(r.sessions)-1]
}

func (r *fakeRecognizer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestRestartOnEndWhileListening(t *testing.T) {
	rec := &fakeRecognizer{}
	c := NewCaptureController(rec, "en", nil, testLogger())

	c.Start()
	if got := c.State(); got != CaptureListening {
		t.Fatalf("State() = %v, want listening", got)
	}

	sess := rec.last()
	sess.callbacks.OnResult([]string{"hi"})
	sess.callbacks.OnResult([]string{"hi there"})
	sess.callbacks.OnResult([]string{"hi there doctor"})
	sess.callbacks.OnEnd()

	if got := rec.count(); got != 2 {
		t.Fatalf("session count = %d, want 2 (self-healing restart)", got)
	}
	if got := c.State(); got != CaptureListening {
		t.Fatalf("State() after restart = %v, want listening", got)
	}
	if got := c.Transcript(); got != "hi there doctor" {
		t.Fatalf("Transcript() = %q, want %q", got, "hi there doctor")
	}
}

func TestTranscriptAccumulatesAcrossRestarts(t *testing.T) {
	rec := &fakeRecognizer{}
	c := NewCaptureController(rec, "en", nil, testLogger())
	c.Start()

	first := rec.last()
	first.callbacks.OnResult([]string{"my head"})
	first.callbacks.OnResult([]string{"my head hurts"})
	first.callbacks.OnEnd() // silence, restart

	second := rec.last()
	second.callbacks.OnResult([]string{"and I feel dizzy"})

	if got := c.Transcript(); got != "my head hurts and I feel dizzy" {
		t.Fatalf("Transcript() = %q, want %q", got, "my head hurts and I feel dizzy")
	}

	// An explicit Start begins a fresh dictation.
	c.Stop()
	c.Start()
	rec.last().callbacks.OnResult([]string{"new question"})
	if got := c.Transcript(); got != "new question" {
		t.Fatalf("Transcript() after restart = %q, want %q", got, "new question")
	}
}

func TestResultReplacesTranscriptWithJoinedAlternatives(t *testing.T) {
	rec := &fakeRecognizer{}
	c := NewCaptureController(rec, "en", nil, testLogger())
	c.Start()

	rec.last().callbacks.OnResult([]string{"i have ", "a headache"})
	if got := c.Transcript(); got != "i have a headache" {
		t.Fatalf("Transcript() = %q", got)
	}
}

func TestTranscriptMirroredLive(t *testing.T) {
	rec := &fakeRecognizer{}
	var seen []string
	c := NewCaptureController(rec, "en", func(tr string) { seen = append(seen, tr) }, testLogger())
	c.Start()

	rec.last().callbacks.OnResult([]string{"hel"})
	rec.last().callbacks.OnResult([]string{"hello"})

	if len(seen) != 2 || seen[0] != "hel" || seen[1] != "hello" {
		t.Fatalf("mirrored transcripts = %v", seen)
	}
}

func TestStopPreventsRestart(t *testing.T) {
	rec := &fakeRecognizer{}
	c := NewCaptureController(rec, "en", nil, testLogger())
	c.Start()

	sess := rec.last()
	c.Stop()
	if !sess.closed {
		t.Fatalf("Stop did not close the active session")
	}
	if got := c.State(); got != CaptureIdle {
		t.Fatalf("State() = %v, want idle", got)
	}

	// A late end event from the closed session must not reopen capture.
	sess.callbacks.OnEnd()
	if got := rec.count(); got != 1 {
		t.Fatalf("session count = %d, want 1 (no restart after Stop)", got)
	}
	if c.Listening() {
		t.Fatalf("Listening() = true after Stop")
	}
}

func TestErrorStopsRestartsUntilExplicitStart(t *testing.T) {
	rec := &fakeRecognizer{}
	c := NewCaptureController(rec, "en", nil, testLogger())
	c.Start()

	rec.last().callbacks.OnError(errors.New("microphone unplugged"))

	if got := c.State(); got != CaptureError {
		t.Fatalf("State() = %v, want error", got)
	}
	if c.Listening() {
		t.Fatalf("Listening() = true after error")
	}
	if got := c.LastError(); got != "microphone unplugged" {
		t.Fatalf("LastError() = %q", got)
	}
	if got := rec.count(); got != 1 {
		t.Fatalf("session count = %d, want 1 (no restart on error)", got)
	}

	// Explicit Start recovers.
	c.Start()
	if got := c.State(); got != CaptureListening {
		t.Fatalf("State() after retry = %v, want listening", got)
	}
	if got := c.LastError(); got != "" {
		t.Fatalf("LastError() after retry = %q, want empty", got)
	}
}

func TestStaleResultsFromSupersededSessionDropped(t *testing.T) {
	rec := &fakeRecognizer{}
	c := NewCaptureController(rec, "en", nil, testLogger())
	c.Start()

	first := rec.last()
	first.callbacks.OnEnd() // restart
	second := rec.last()

	first.callbacks.OnResult([]string{"stale"})
	second.callbacks.OnResult([]string{"fresh"})

	if got := c.Transcript(); got != "fresh" {
		t.Fatalf("Transcript() = %q, want %q", got, "fresh")
	}
}

func TestUnavailableRecognizerIsPermanentError(t *testing.T) {
	c := NewCaptureController(nil, "en", nil, testLogger())
	if got := c.State(); got != CaptureError {
		t.Fatalf("State() = %v, want error", got)
	}
	if c.Available() {
		t.Fatalf("Available() = true with nil recognizer")
	}

	c.Start() // must be a no-op
	if got := c.State(); got != CaptureError {
		t.Fatalf("State() after Start = %v, want error", got)
	}
}

func TestOpenFailureEntersErrorState(t *testing.T) {
	rec := &fakeRecognizer{openErr: errors.New("service unreachable")}
	c := NewCaptureController(rec, "en", nil, testLogger())
	c.Start()

	if got := c.State(); got != CaptureError {
		t.Fatalf("State() = %v, want error", got)
	}
	if c.Listening() {
		t.Fatalf("Listening() = true after failed open")
	}
}

func TestStartWhileListeningIsNoOp(t *testing.T) {
	rec := &fakeRecognizer{}
	c := NewCaptureController(rec, "en", nil, testLogger())
	c.Start()
	rec.last().callbacks.OnResult([]string{"keep me"})

	c.Start()
	if got := rec.count(); got != 1 {
		t.Fatalf("session count = %d, want 1", got)
	}
	if got := c.Transcript(); got != "keep me" {
		t.Fatalf("Transcript() = %q, want %q", got, "keep me")
	}
}
