package speech

import (
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/gorilla/websocket"
)

// AudioSource opens a raw audio stream (16 kHz, 16-bit, mono) from the
// microphone or another input.
type AudioSource interface {
	Open() (io.ReadCloser, error)
}

// frameSize is 100ms of 16 kHz 16-bit mono audio.
const frameSize = 3200

// streamEvent is one JSON message from the transcription service.
type streamEvent struct {
	Type         string `json:"type"` // result | end | error
	Alternatives []struct {
		Transcript string `json:"transcript"`
	} `json:"alternatives"`
	Message string `json:"message"`
}

// streamConfig is the first message on a new transcription stream.
type streamConfig struct {
	Language       string `json:"language"`
	Continuous     bool   `json:"continuous"`
	InterimResults bool   `json:"interim_results"`
	SampleRate     int    `json:"sample_rate"`
}

// StreamRecognizer streams microphone audio to a transcription service over
// WebSocket and turns its JSON events into capture callbacks.
type StreamRecognizer struct {
	url    string
	source AudioSource
	logger *slog.Logger
}

// NewStreamRecognizer creates a recognizer against the given WebSocket URL.
func NewStreamRecognizer(url string, source AudioSource, logger *slog.Logger) *StreamRecognizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamRecognizer{url: url, source: source, logger: logger}
}

// Open dials the service, starts streaming audio, and delivers events on
// background goroutines. Callbacks are never invoked before Open returns.
func (r *StreamRecognizer) Open(language string, callbacks CaptureCallbacks) (CaptureSession, error) {
	conn, _, err := websocket.DefaultDialer.Dial(r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to transcription service: %w", err)
	}

	audio, err := r.source.Open()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open audio source: %w", err)
	}

	cfg := streamConfig{
		Language:       language,
		Continuous:     true,
		InterimResults: true,
		SampleRate:     16000,
	}
	if err := conn.WriteJSON(cfg); err != nil {
		conn.Close()
		audio.Close()
		return nil, fmt.Errorf("failed to send stream config: %w", err)
	}

	sess := &streamSession{
		conn:   conn,
		audio:  audio,
		logger: r.logger,
	}
	go sess.pumpAudio()
	go sess.readEvents(callbacks)

	r.logger.Info("transcription stream opened", "url", r.url, "language", language)
	return sess, nil
}

// streamSession is one open transcription stream.
type streamSession struct {
	conn   *websocket.Conn
	audio  io.ReadCloser
	logger *slog.Logger

	mu      sync.Mutex
	writeMu sync.Mutex
	closed  bool
}

// pumpAudio copies fixed-size audio frames from the source to the socket.
func (s *streamSession) pumpAudio() {
	buf := make([]byte, frameSize)
	for {
		n, err := s.audio.Read(buf)
		if n > 0 {
			s.writeMu.Lock()
			werr := s.conn.WriteMessage(websocket.BinaryMessage, buf[:n])
			s.writeMu.Unlock()
			if werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// readEvents translates service events into capture callbacks. A clean close
// or an end event reports OnEnd; anything else reports OnError.
func (s *streamSession) readEvents(callbacks CaptureCallbacks) {
	for {
		var ev streamEvent
		if err := s.conn.ReadJSON(&ev); err != nil {
			if s.isClosed() {
				return
			}
			s.markClosed()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				if callbacks.OnEnd != nil {
					callbacks.OnEnd()
				}
			} else if callbacks.OnError != nil {
				callbacks.OnError(fmt.Errorf("transcription stream failed: %w", err))
			}
			return
		}

		switch ev.Type {
		case "result":
			alternatives := make([]string, 0, len(ev.Alternatives))
			for _, alt := range ev.Alternatives {
				alternatives = append(alternatives, alt.Transcript)
			}
			if callbacks.OnResult != nil {
				callbacks.OnResult(alternatives)
			}
		case "end":
			s.markClosed()
			if callbacks.OnEnd != nil {
				callbacks.OnEnd()
			}
			return
		case "error":
			s.markClosed()
			if callbacks.OnError != nil {
				callbacks.OnError(fmt.Errorf("transcription service error: %s", ev.Message))
			}
			return
		default:
			s.logger.Debug("ignoring unknown stream event", "type", ev.Type)
		}
	}
}

func (s *streamSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// markClosed flags the session as finished and releases the transport.
// Returns false when it was already closed.
func (s *streamSession) markClosed() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	s.mu.Unlock()

	s.writeMu.Lock()
	s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	s.conn.Close()
	s.audio.Close()
	return true
}

// Close ends the session without delivering further events.
func (s *streamSession) Close() error {
	s.markClosed()
	return nil
}

// CommandAudioSource records microphone audio through a local recording
// command. Tried in order: arecord (ALSA), rec (SoX), sox.
type CommandAudioSource struct {
	name string
	args []string
}

// NewCommandAudioSource locates a usable recording command on PATH.
func NewCommandAudioSource() (*CommandAudioSource, error) {
	candidates := []struct {
		name string
		args []string
	}{
		{"arecord", []string{"-q", "-f", "S16_LE", "-r", "16000", "-c", "1", "-t", "raw", "-"}},
		{"rec", []string{"-q", "-t", "raw", "-r", "16000", "-e", "signed", "-b", "16", "-c", "1", "-"}},
		{"sox", []string{"-q", "-d", "-t", "raw", "-r", "16000", "-e", "signed", "-b", "16", "-c", "1", "-"}},
	}
	for _, c := range candidates {
		if _, err := exec.LookPath(c.name); err == nil {
			return &CommandAudioSource{name: c.name, args: c.args}, nil
		}
	}
	return nil, fmt.Errorf("no recording command found (tried arecord, rec, sox)")
}

// Open starts the recording command and returns its stdout stream.
func (c *CommandAudioSource) Open() (io.ReadCloser, error) {
	cmd := exec.Command(c.name, c.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open recording pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", c.name, err)
	}
	return &commandStream{ReadCloser: stdout, cmd: cmd}, nil
}

// commandStream terminates the recording process when closed.
type commandStream struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (c *commandStream) Close() error {
	c.cmd.Process.Kill()
	err := c.ReadCloser.Close()
	c.cmd.Wait()
	return err
}
