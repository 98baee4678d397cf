package speech

import (
	"sync"
	"testing"
)

// fakeSynthesizer records utterances and exposes their completion callbacks.
type fakeSynthesizer struct {
	mu         sync.Mutex
	utterances []*fakeUtterance
}

type fakeUtterance struct {
	text      string
	voice     Voice
	done      func(err error)
	cancelled int
}

func (u *fakeUtterance) Cancel() { u.cancelled++ }

func (s *fakeSynthesizer) Speak(u Utterance, done func(err error)) (UtteranceHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	utt := &fakeUtterance{text: u.Text, voice: u.Voice, done: done}
	s.utterances = append(s.utterances, utt)
	return utt, nil
}

func (s *fakeSynthesizer) at(i int) *fakeUtterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.utterances[i]
}

func (s *fakeSynthesizer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.utterances)
}

func TestSpeakCancelsPreviousUtterance(t *testing.T) {
	synth := &fakeSynthesizer{}
	p := NewPlaybackController(synth, VoiceForPersona("ama", "en"), testLogger())

	p.Speak("first")
	p.Speak("second")

	if got := synth.count(); got != 2 {
		t.Fatalf("utterance count = %d, want 2", got)
	}
	if got := synth.at(0).cancelled; got != 1 {
		t.Fatalf("first utterance cancelled %d times, want 1", got)
	}
	if got := synth.at(1).cancelled; got != 0 {
		t.Fatalf("second utterance cancelled %d times, want 0", got)
	}
	if got := p.ActiveUtteranceID(); got == "" {
		t.Fatalf("ActiveUtteranceID() empty while second utterance plays")
	}
}

func TestCompletionClearsActiveUtterance(t *testing.T) {
	synth := &fakeSynthesizer{}
	p := NewPlaybackController(synth, VoiceForPersona("ama", "en"), testLogger())

	p.Speak("hello")
	synth.at(0).done(nil)

	if got := p.ActiveUtteranceID(); got != "" {
		t.Fatalf("ActiveUtteranceID() = %q after completion, want empty", got)
	}
}

func TestStaleCompletionIgnored(t *testing.T) {
	synth := &fakeSynthesizer{}
	p := NewPlaybackController(synth, VoiceForPersona("ama", "en"), testLogger())

	p.Speak("first")
	p.Speak("second")

	// The first utterance finishes after it was superseded.
	synth.at(0).done(nil)
	if got := p.ActiveUtteranceID(); got == "" {
		t.Fatalf("stale completion cleared the active utterance")
	}

	synth.at(1).done(nil)
	if got := p.ActiveUtteranceID(); got != "" {
		t.Fatalf("ActiveUtteranceID() = %q, want empty", got)
	}
}

func TestCancelActive(t *testing.T) {
	synth := &fakeSynthesizer{}
	p := NewPlaybackController(synth, VoiceForPersona("kwame", "ak"), testLogger())

	p.Speak("hello")
	p.CancelActive()

	if got := synth.at(0).cancelled; got != 1 {
		t.Fatalf("utterance cancelled %d times, want 1", got)
	}
	if got := p.ActiveUtteranceID(); got != "" {
		t.Fatalf("ActiveUtteranceID() = %q after cancel, want empty", got)
	}
}

func TestMissingSynthesizerDegradesSilently(t *testing.T) {
	p := NewPlaybackController(nil, VoiceForPersona("ama", "en"), testLogger())
	if p.Supported() {
		t.Fatalf("Supported() = true without a synthesizer")
	}
	p.Speak("hello") // must not panic
	p.CancelActive()
	if got := p.ActiveUtteranceID(); got != "" {
		t.Fatalf("ActiveUtteranceID() = %q, want empty", got)
	}
}

func TestPersonaVoicesDiffer(t *testing.T) {
	ama := VoiceForPersona("ama", "en")
	kwame := VoiceForPersona("kwame", "en")
	if ama.Pitch <= kwame.Pitch {
		t.Fatalf("ama pitch %v should be higher than kwame pitch %v", ama.Pitch, kwame.Pitch)
	}

	synth := &fakeSynthesizer{}
	p := NewPlaybackController(synth, ama, testLogger())
	p.Speak("hello")
	if got := synth.at(0).voice.Pitch; got != ama.Pitch {
		t.Fatalf("utterance pitch = %v, want %v", got, ama.Pitch)
	}
}
