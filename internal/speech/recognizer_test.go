package speech

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// pipeSource feeds a blocking stream so pumpAudio has something to read.
type pipeSource struct {
	r *io.PipeReader
}

func (p *pipeSource) Open() (io.ReadCloser, error) { return p.r, nil }

func newPipeSource() (*pipeSource, *io.PipeWriter) {
	r, w := io.Pipe()
	return &pipeSource{r: r}, w
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStreamRecognizerDeliversResultsAndEnd(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		var cfg streamConfig
		if err := conn.ReadJSON(&cfg); err != nil {
			t.Errorf("read config failed: %v", err)
			return
		}
		if cfg.Language != "ak" || !cfg.Continuous || !cfg.InterimResults {
			t.Errorf("config = %+v", cfg)
		}

		conn.WriteJSON(map[string]any{
			"type":         "result",
			"alternatives": []map[string]string{{"transcript": "me ti"}},
		})
		conn.WriteJSON(map[string]any{
			"type":         "result",
			"alternatives": []map[string]string{{"transcript": "me ti pae me"}},
		})
		conn.WriteJSON(map[string]string{"type": "end"})
	}))
	defer srv.Close()

	source, pipe := newPipeSource()
	defer pipe.Close()
	rec := NewStreamRecognizer(wsURL(srv), source, testLogger())

	results := make(chan []string, 4)
	ended := make(chan struct{}, 1)
	sess, err := rec.Open("ak", CaptureCallbacks{
		OnResult: func(alts []string) { results <- alts },
		OnEnd:    func() { ended <- struct{}{} },
		OnError:  func(err error) { t.Errorf("unexpected error: %v", err) },
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer sess.Close()

	want := []string{"me ti", "me ti pae me"}
	for _, expected := range want {
		select {
		case alts := <-results:
			if len(alts) != 1 || alts[0] != expected {
				t.Fatalf("result = %v, want [%s]", alts, expected)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for result %q", expected)
		}
	}

	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for end event")
	}
}

func TestStreamRecognizerReportsServiceError(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var cfg streamConfig
		conn.ReadJSON(&cfg)
		conn.WriteJSON(map[string]string{"type": "error", "message": "no audio received"})
	}))
	defer srv.Close()

	source, pipe := newPipeSource()
	defer pipe.Close()
	rec := NewStreamRecognizer(wsURL(srv), source, testLogger())

	errs := make(chan error, 1)
	sess, err := rec.Open("en", CaptureCallbacks{
		OnError: func(err error) { errs <- err },
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer sess.Close()

	select {
	case err := <-errs:
		if !strings.Contains(err.Error(), "no audio received") {
			t.Fatalf("error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for error event")
	}
}

func TestStreamRecognizerOpenFailsWhenUnreachable(t *testing.T) {
	source, pipe := newPipeSource()
	defer pipe.Close()
	rec := NewStreamRecognizer("ws://127.0.0.1:1/stt", source, testLogger())

	if _, err := rec.Open("en", CaptureCallbacks{}); err == nil {
		t.Fatalf("Open succeeded against an unreachable service")
	}
}

func TestClosedSessionDeliversNoFurtherEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ready := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var cfg streamConfig
		conn.ReadJSON(&cfg)
		ready <- conn
		// Keep the connection open until the test finishes.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	source, pipe := newPipeSource()
	defer pipe.Close()
	rec := NewStreamRecognizer(wsURL(srv), source, testLogger())

	events := make(chan string, 4)
	sess, err := rec.Open("en", CaptureCallbacks{
		OnEnd:   func() { events <- "end" },
		OnError: func(err error) { events <- "error" },
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	<-ready
	sess.Close()

	select {
	case ev := <-events:
		t.Fatalf("event %q delivered after Close", ev)
	case <-time.After(200 * time.Millisecond):
	}
}
