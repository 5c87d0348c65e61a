package voice

import (
	"encoding/base64"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	egressQueueSize = 256
	writeTimeout    = 5 * time.Second
)

// ServerEvent is the JSON envelope for every message pushed to the browser.
// Transcript and reply events carry their payload in "text"; status and
// error events carry theirs in "message".
type ServerEvent struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
	Final   bool   `json:"final,omitempty"`
	B64     string `json:"b64,omitempty"`
}

type wsConn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
}

// EgressWriter serializes all outbound writes onto one goroutine so the
// pipeline, the turn detector, and the connection handler can all emit
// events without coordinating over the socket.
type EgressWriter struct {
	conn   wsConn
	frames chan []byte

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func NewEgressWriter(conn wsConn) *EgressWriter {
	w := &EgressWriter{
		conn:   conn,
		frames: make(chan []byte, egressQueueSize),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *EgressWriter) run() {
	defer close(w.done)
	for frame := range w.frames {
		_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := w.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			log.Printf("egress: write failed: %v", err)
			w.drain()
			return
		}
	}
}

// drain keeps closers from blocking after the socket dies.
func (w *EgressWriter) drain() {
	for range w.frames {
	}
}

func (w *EgressWriter) send(ev ServerEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("egress: marshal %s event: %v", ev.Type, err)
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.frames <- payload:
	default:
		log.Printf("egress: queue full, dropping %s event", ev.Type)
	}
}

func (w *EgressWriter) Status(message string) {
	w.send(ServerEvent{Type: "status", Message: message})
}

func (w *EgressWriter) Transcript(text string, final bool) {
	w.send(ServerEvent{Type: "transcript", Text: text, Final: final})
}

func (w *EgressWriter) ResponseText(text string) {
	w.send(ServerEvent{Type: "llm-response", Text: text})
}

func (w *EgressWriter) Audio(audio []byte) {
	if len(audio) == 0 {
		return
	}
	w.send(ServerEvent{Type: "audio", B64: base64.StdEncoding.EncodeToString(audio)})
}

func (w *EgressWriter) Error(message string) {
	w.send(ServerEvent{Type: "error", Message: message})
}

// Close stops accepting events and waits for queued frames to flush.
func (w *EgressWriter) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	close(w.frames)
	w.mu.Unlock()
	<-w.done
}
