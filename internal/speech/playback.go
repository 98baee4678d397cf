package speech

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"

	"AkanHealth/internal/config"
)

// Voice holds the synthesis parameters for one avatar persona.
type Voice struct {
	Language string
	Rate     float64 // 1.0 is normal speed
	Pitch    float64 // 1.0 is normal pitch
	Volume   float64 // 0.0 to 1.0
}

// VoiceForPersona returns the playback voice for an avatar persona.
func VoiceForPersona(persona, language string) Voice {
	switch persona {
	case config.PersonaKwame:
		return Voice{Language: language, Rate: 0.95, Pitch: 0.8, Volume: 1.0}
	default: // ama
		return Voice{Language: language, Rate: 1.0, Pitch: 1.15, Volume: 1.0}
	}
}

// Utterance is one text-to-speech request.
type Utterance struct {
	Text  string
	Voice Voice
}

// UtteranceHandle controls an in-flight utterance.
type UtteranceHandle interface {
	Cancel()
}

// Synthesizer starts utterances. done is invoked exactly once when the
// utterance finishes, fails, or is cancelled; it must not be called before
// Speak returns.
type Synthesizer interface {
	Speak(u Utterance, done func(err error)) (UtteranceHandle, error)
}

// PlaybackController guarantees at most one utterance in flight. A missing
// synthesizer degrades silently: Speak becomes a no-op and Supported reports
// false, never a hard failure.
type PlaybackController struct {
	mu     sync.Mutex
	synth  Synthesizer
	voice  Voice
	seq    int
	active string // active utterance id, empty when silent
	handle UtteranceHandle
	logger *slog.Logger
}

// NewPlaybackController creates a playback controller. synth may be nil.
func NewPlaybackController(synth Synthesizer, voice Voice, logger *slog.Logger) *PlaybackController {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlaybackController{synth: synth, voice: voice, logger: logger}
}

// Supported reports whether speech synthesis is available.
func (p *PlaybackController) Supported() bool {
	return p.synth != nil
}

// Speak cancels any active utterance and starts a new one.
func (p *PlaybackController) Speak(text string) {
	if p.synth == nil || text == "" {
		return
	}

	p.mu.Lock()
	p.cancelLocked()

	p.seq++
	id := fmt.Sprintf("utt_%d", p.seq)
	handle, err := p.synth.Speak(Utterance{Text: text, Voice: p.voice}, func(err error) {
		p.clearActive(id, err)
	})
	if err != nil {
		p.mu.Unlock()
		p.logger.Warn("failed to start utterance", "error", err)
		return
	}
	p.active = id
	p.handle = handle
	p.mu.Unlock()

	p.logger.Debug("utterance started", "id", id)
}

// CancelActive stops the active utterance, if any.
func (p *PlaybackController) CancelActive() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelLocked()
}

func (p *PlaybackController) cancelLocked() {
	if p.handle != nil {
		p.handle.Cancel()
	}
	p.active = ""
	p.handle = nil
}

// clearActive resets playback state when the utterance with the given id
// finishes. Stale completions from superseded utterances are ignored.
func (p *PlaybackController) clearActive(id string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active != id {
		return
	}
	p.active = ""
	p.handle = nil
	if err != nil {
		p.logger.Warn("utterance failed", "id", id, "error", err)
	}
}

// ActiveUtteranceID returns the id of the in-flight utterance, empty when
// silent.
func (p *PlaybackController) ActiveUtteranceID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// SetVoice switches the playback voice, e.g. after a persona change.
func (p *PlaybackController) SetVoice(voice Voice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voice = voice
}

// CommandSynthesizer speaks through a local TTS command. Tried in order:
// say (macOS), espeak-ng, espeak.
type CommandSynthesizer struct {
	name   string
	logger *slog.Logger
}

// NewCommandSynthesizer locates a usable TTS command on PATH.
func NewCommandSynthesizer(logger *slog.Logger) (*CommandSynthesizer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, name := range []string{"say", "espeak-ng", "espeak"} {
		if _, err := exec.LookPath(name); err == nil {
			return &CommandSynthesizer{name: name, logger: logger}, nil
		}
	}
	return nil, fmt.Errorf("no speech synthesis command found (tried say, espeak-ng, espeak)")
}

// Speak starts the TTS command for one utterance.
func (s *CommandSynthesizer) Speak(u Utterance, done func(err error)) (UtteranceHandle, error) {
	cmd := exec.Command(s.name, s.commandArgs(u)...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", s.name, err)
	}

	go func() {
		done(cmd.Wait())
	}()

	return &commandUtterance{cmd: cmd}, nil
}

// commandArgs maps voice parameters onto the flags of the resolved command.
func (s *CommandSynthesizer) commandArgs(u Utterance) []string {
	switch s.name {
	case "say":
		// say has no pitch flag; rate is words per minute.
		return []string{"-r", strconv.Itoa(int(175 * u.Voice.Rate)), u.Text}
	default: // espeak-ng / espeak
		args := []string{
			"-s", strconv.Itoa(int(175 * u.Voice.Rate)),
			"-p", strconv.Itoa(int(50 * u.Voice.Pitch)),
			"-a", strconv.Itoa(int(100 * u.Voice.Volume)),
		}
		if u.Voice.Language != "" {
			args = append(args, "-v", u.Voice.Language)
		}
		return append(args, u.Text)
	}
}

// commandUtterance kills the TTS process on cancel; the Wait goroutine then
// reports completion through done.
type commandUtterance struct {
	cmd *exec.Cmd
}

func (c *commandUtterance) Cancel() {
	if c.cmd.Process != nil {
		c.cmd.Process.Kill()
	}
}
