package speech

import (
	"log/slog"
	"strings"
	"sync"
)

// CaptureState is the state of the capture state machine.
type CaptureState int

const (
	CaptureIdle CaptureState = iota
	CaptureListening
	CaptureError
)

func (s CaptureState) String() string {
	switch s {
	case CaptureIdle:
		return "idle"
	case CaptureListening:
		return "listening"
	case CaptureError:
		return "error"
	default:
		return "unknown"
	}
}

// CaptureCallbacks receives events from an open capture session. Callbacks
// may be invoked from session-owned goroutines.
type CaptureCallbacks struct {
	// OnResult delivers the best transcript of every recognized alternative
	// so far, in event order. Fired on interim results too.
	OnResult func(alternatives []string)

	// OnEnd fires when the session stops on its own, e.g. after silence.
	OnEnd func()

	// OnError fires on any session failure. The session is dead afterwards.
	OnError func(err error)
}

// CaptureSession is one open instance of the continuous recognition
// primitive.
type CaptureSession interface {
	Close() error
}

// Recognizer opens capture sessions against some transcription backend.
// Implementations must not invoke callbacks before Open returns.
type Recognizer interface {
	Open(language string, callbacks CaptureCallbacks) (CaptureSession, error)
}

// CaptureController drives continuous dictation as an explicit state machine.
// Recognition sessions stop themselves after short silences, so the
// controller reopens a fresh session whenever one ends while the user still
// wants to listen; the transcript accumulated so far carries across those
// restarts. An explicit Stop is distinguishable from a session ending on its
// own: only Stop clears the listening intent.
type CaptureController struct {
	mu         sync.Mutex
	recognizer Recognizer
	language   string
	state      CaptureState
	desired    bool
	transcript string
	prefix     string // transcript carried across silence restarts
	lastErr    string
	active     CaptureSession
	generation int // events from superseded sessions are dropped

	onTranscript func(string)
	logger       *slog.Logger
}

// NewCaptureController creates a capture controller. A nil recognizer means
// the platform offers no speech capture: the controller starts in a permanent
// error state and Start is a no-op. onTranscript, when set, mirrors the live
// transcript after every result event.
func NewCaptureController(recognizer Recognizer, language string, onTranscript func(string), logger *slog.Logger) *CaptureController {
	if logger == nil {
		logger = slog.Default()
	}
	c := &CaptureController{
		recognizer:   recognizer,
		language:     language,
		state:        CaptureIdle,
		onTranscript: onTranscript,
		logger:       logger,
	}
	if recognizer == nil {
		c.state = CaptureError
		c.lastErr = "speech capture is not available on this platform"
	}
	return c
}

// Start expresses the intent to listen and opens a recognition session.
// No-op when capture is unavailable or already listening.
func (c *CaptureController) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recognizer == nil {
		return
	}
	if c.state == CaptureListening {
		return
	}

	c.desired = true
	c.transcript = ""
	c.prefix = ""
	c.lastErr = ""
	c.openSessionLocked()
}

// Stop clears the listening intent and closes the active session. A late end
// event from the closed session must not trigger a restart.
func (c *CaptureController) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.desired = false
	if c.active != nil {
		c.generation++
		c.active.Close()
		c.active = nil
	}
	if c.state == CaptureListening {
		c.state = CaptureIdle
	}
}

// openSessionLocked opens a new session under the current generation.
func (c *CaptureController) openSessionLocked() {
	c.generation++
	gen := c.generation

	sess, err := c.recognizer.Open(c.language, CaptureCallbacks{
		OnResult: func(alternatives []string) { c.handleResult(gen, alternatives) },
		OnEnd:    func() { c.handleEnd(gen) },
		OnError:  func(err error) { c.handleError(gen, err) },
	})
	if err != nil {
		c.desired = false
		c.state = CaptureError
		c.lastErr = err.Error()
		c.logger.Warn("failed to open capture session", "error", err)
		return
	}

	c.active = sess
	c.state = CaptureListening
	c.logger.Debug("capture session opened", "generation", gen)
}

func (c *CaptureController) handleResult(gen int, alternatives []string) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	transcript := strings.Join(alternatives, "")
	if c.prefix != "" {
		if transcript != "" {
			transcript = c.prefix + " " + transcript
		} else {
			transcript = c.prefix
		}
	}
	c.transcript = transcript
	notify := c.onTranscript
	c.mu.Unlock()

	if notify != nil {
		notify(transcript)
	}
}

func (c *CaptureController) handleEnd(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return
	}
	c.active = nil

	if c.desired {
		// Self-healing restart: the primitive gave up after silence but the
		// user still wants to listen. What was heard so far becomes the
		// prefix of the restarted session's results.
		c.prefix = c.transcript
		c.logger.Debug("capture session ended, restarting", "generation", gen)
		c.openSessionLocked()
		return
	}
	c.state = CaptureIdle
}

func (c *CaptureController) handleError(gen int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return
	}

	c.desired = false
	c.state = CaptureError
	c.lastErr = err.Error()
	if c.active != nil {
		c.generation++
		c.active.Close()
		c.active = nil
	}
	c.logger.Warn("capture session error", "error", err)
}

// State returns the current state machine state.
func (c *CaptureController) State() CaptureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Listening reports whether the user's listening intent is on.
func (c *CaptureController) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desired
}

// Transcript returns the running transcript.
func (c *CaptureController) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript
}

// LastError returns the recorded error message, empty when none.
func (c *CaptureController) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Available reports whether speech capture can work at all.
func (c *CaptureController) Available() bool {
	return c.recognizer != nil
}
