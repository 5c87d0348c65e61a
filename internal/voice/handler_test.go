package voice

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/LalitKJ/Aanya-Voice-Bot/internal/transcript"
)

// fakeTranscriber replays scripted events and records forwarded audio.
type fakeTranscriber struct {
	mu        sync.Mutex
	events    chan transcript.Event
	audio     [][]byte
	reformats int
	closed    bool
}

func newFakeTranscriber() *fakeTranscriber {
	return &fakeTranscriber{events: make(chan transcript.Event, 16)}
}

func (f *fakeTranscriber) Connect() error { return nil }
func (f *fakeTranscriber) SendAudio(pcm []byte) error {
	f.mu.Lock()
	f.audio = append(f.audio, append([]byte(nil), pcm...))
	f.mu.Unlock()
	return nil
}
func (f *fakeTranscriber) RequestFormatting() error {
	f.mu.Lock()
	f.reformats++
	f.mu.Unlock()
	return nil
}
func (f *fakeTranscriber) Events() <-chan transcript.Event { return f.events }
func (f *fakeTranscriber) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

type scriptedGenerator struct{ reply []string }

func (g *scriptedGenerator) Stream(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	out := make(chan string, len(g.reply))
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		for _, c := range g.reply {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, errc
}

type scriptedSynth struct{}

func (scriptedSynth) Synthesize(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	audio := make(chan []byte, 1)
	errc := make(chan error, 1)
	audio <- []byte("voice:" + text)
	close(audio)
	close(errc)
	return audio, errc
}

func dialHandler(t *testing.T, tr *fakeTranscriber) (*websocket.Conn, func()) {
	t.Helper()
	h := &Handler{
		NewTranscriber: func() Transcriber { return tr },
		Generator:      &scriptedGenerator{reply: []string{"Hello", " to you too."}},
		Synthesizer:    scriptedSynth{},
		Fallback:       func(ctx context.Context) ([]byte, error) { return []byte("fallback"), nil },
		DefaultPersona: "default",
	}

	e := echo.New()
	e.GET("/ws/audio", h.ServeWS)
	srv := httptest.NewServer(e)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/audio"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func readEvents(t *testing.T, conn *websocket.Conn, stop func([]ServerEvent) bool) []ServerEvent {
	t.Helper()
	var events []ServerEvent
	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read after %d events: %v", len(events), err)
		}
		var ev ServerEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("bad frame %q: %v", data, err)
		}
		events = append(events, ev)
		if stop(events) {
			return events
		}
	}
}

func TestServeWS_FullConversationTurn(t *testing.T) {
	tr := newFakeTranscriber()
	conn, cleanup := dialHandler(t, tr)
	defer cleanup()

	// microphone audio flows to the transcriber
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	tr.events <- transcript.Event{Text: "hello th"}
	tr.events <- transcript.Event{Text: "hello there", EndOfTurn: true, Formatted: false}
	tr.events <- transcript.Event{Text: "Hello there.", EndOfTurn: true, Formatted: true}

	events := readEvents(t, conn, func(evs []ServerEvent) bool {
		audio := 0
		for _, e := range evs {
			if e.Type == "audio" {
				audio++
			}
		}
		return audio >= 2
	})

	var sawStatus, sawInterim, sawFinal bool
	var llmText strings.Builder
	for _, e := range events {
		switch e.Type {
		case "status":
			sawStatus = true
		case "transcript":
			if e.Final {
				if e.Text != "Hello there." {
					t.Fatalf("final transcript = %q", e.Text)
				}
				sawFinal = true
			} else if e.Text == "hello th" {
				sawInterim = true
			}
		case "llm-response":
			llmText.WriteString(e.Text)
		}
	}
	if !sawStatus || !sawInterim || !sawFinal {
		t.Fatalf("missing events: status=%v interim=%v final=%v", sawStatus, sawInterim, sawFinal)
	}
	if llmText.String() != "Hello to you too." {
		t.Fatalf("streamed reply = %q", llmText.String())
	}

	tr.mu.Lock()
	audioIn := len(tr.audio)
	reformats := tr.reformats
	tr.mu.Unlock()
	if audioIn != 1 {
		t.Fatalf("forwarded audio frames = %d", audioIn)
	}
	if reformats != 1 {
		t.Fatalf("reformat requests = %d", reformats)
	}
}

// blockingGenerator holds its reply stream open until released.
type blockingGenerator struct{ gate chan struct{} }

func (g *blockingGenerator) Stream(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	out := make(chan string, 1)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		select {
		case <-g.gate:
			out <- "done"
		case <-ctx.Done():
		}
	}()
	return out, errc
}

func TestServeWS_SaturatedPipelineReportsDroppedTurn(t *testing.T) {
	tr := newFakeTranscriber()
	gen := &blockingGenerator{gate: make(chan struct{})}
	h := &Handler{
		NewTranscriber: func() Transcriber { return tr },
		Generator:      gen,
		Synthesizer:    scriptedSynth{},
		Fallback:       func(ctx context.Context) ([]byte, error) { return []byte("fallback"), nil },
		DefaultPersona: "default",
	}

	e := echo.New()
	e.GET("/ws/audio", h.ServeWS)
	srv := httptest.NewServer(e)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/audio"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	defer close(gen.gate)

	// One turn occupies the run loop, four fill the queue; the next one
	// has nowhere to go and must be reported back.
	for i := 0; i < 6; i++ {
		tr.events <- transcript.Event{Text: "hello again", EndOfTurn: true, Formatted: true}
	}

	events := readEvents(t, conn, func(evs []ServerEvent) bool {
		for _, e := range evs {
			if e.Type == "error" {
				return true
			}
		}
		return false
	})

	last := events[len(events)-1]
	if last.Message == "" {
		t.Fatalf("dropped-turn error must carry a message: %+v", last)
	}
}

func TestServeWS_ClientDisconnectTearsDown(t *testing.T) {
	tr := newFakeTranscriber()
	conn, cleanup := dialHandler(t, tr)

	// first event proves the session is live
	tr.events <- transcript.Event{Text: "hi"}
	readEvents(t, conn, func(evs []ServerEvent) bool { return len(evs) >= 2 })

	cleanup()

	deadline := time.After(3 * time.Second)
	for {
		tr.mu.Lock()
		closed := tr.closed
		tr.mu.Unlock()
		if closed {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("transcriber was not closed on disconnect")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
