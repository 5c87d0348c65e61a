package voice

import (
	"encoding/base64"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *fakeConn) SetWriteDeadline(t time.Time) error { return nil }
func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	c.frames = append(c.frames, append([]byte(nil), data...))
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) events(t *testing.T) []ServerEvent {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ServerEvent, len(c.frames))
	for i, f := range c.frames {
		if err := json.Unmarshal(f, &out[i]); err != nil {
			t.Fatalf("frame %d is not valid JSON: %v", i, err)
		}
	}
	return out
}

func TestEgressWriter_PreservesEnqueueOrder(t *testing.T) {
	conn := &fakeConn{}
	w := NewEgressWriter(conn)

	w.Status("connected")
	w.Transcript("hel", false)
	w.Transcript("hello", true)
	w.ResponseText("Hi!")
	w.Audio([]byte{1, 2, 3})
	w.Error("oops")
	w.Close()

	events := conn.events(t)
	wantTypes := []string{"status", "transcript", "transcript", "llm-response", "audio", "error"}
	if len(events) != len(wantTypes) {
		t.Fatalf("events = %+v", events)
	}
	for i, wt := range wantTypes {
		if events[i].Type != wt {
			t.Fatalf("event %d type = %q, want %q", i, events[i].Type, wt)
		}
	}
	if events[1].Final || !events[2].Final {
		t.Fatalf("transcript finality wrong: %+v %+v", events[1], events[2])
	}
	if events[4].B64 != base64.StdEncoding.EncodeToString([]byte{1, 2, 3}) {
		t.Fatalf("audio payload = %q", events[4].B64)
	}
}

// The browser client reads "message" on status/error frames and "text" on
// transcript/llm-response frames; the wire keys are part of the protocol.
func TestEgressWriter_WireFieldNames(t *testing.T) {
	conn := &fakeConn{}
	w := NewEgressWriter(conn)

	w.Status("connected")
	w.Error("Transcription failed.")
	w.Transcript("hello", true)
	w.ResponseText("Hi!")
	w.Close()

	conn.mu.Lock()
	frames := append([][]byte(nil), conn.frames...)
	conn.mu.Unlock()
	if len(frames) != 4 {
		t.Fatalf("frames = %d", len(frames))
	}

	var raw []map[string]any
	for i, f := range frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		raw = append(raw, m)
	}

	if raw[0]["type"] != "status" || raw[0]["message"] != "connected" {
		t.Fatalf("status frame = %v", raw[0])
	}
	if raw[1]["type"] != "error" || raw[1]["message"] != "Transcription failed." {
		t.Fatalf("error frame = %v", raw[1])
	}
	for _, i := range []int{0, 1} {
		if _, has := raw[i]["text"]; has {
			t.Fatalf("%s frame must not carry a text key: %v", raw[i]["type"], raw[i])
		}
	}
	if raw[2]["type"] != "transcript" || raw[2]["text"] != "hello" || raw[2]["final"] != true {
		t.Fatalf("transcript frame = %v", raw[2])
	}
	if raw[3]["type"] != "llm-response" || raw[3]["text"] != "Hi!" {
		t.Fatalf("llm-response frame = %v", raw[3])
	}
	for _, i := range []int{2, 3} {
		if _, has := raw[i]["message"]; has {
			t.Fatalf("%s frame must not carry a message key: %v", raw[i]["type"], raw[i])
		}
	}
}

func TestEgressWriter_SendAfterCloseIsNoop(t *testing.T) {
	conn := &fakeConn{}
	w := NewEgressWriter(conn)
	w.Status("connected")
	w.Close()

	w.Status("late")
	w.Audio([]byte{9})

	events := conn.events(t)
	if len(events) != 1 {
		t.Fatalf("events after close = %+v", events)
	}
}

func TestEgressWriter_EmptyAudioDropped(t *testing.T) {
	conn := &fakeConn{}
	w := NewEgressWriter(conn)
	w.Audio(nil)
	w.Close()

	if len(conn.events(t)) != 0 {
		t.Fatalf("empty audio must not produce a frame")
	}
}

func TestEgressWriter_ConcurrentProducers(t *testing.T) {
	conn := &fakeConn{}
	w := NewEgressWriter(conn)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				w.ResponseText("chunk")
			}
		}()
	}
	wg.Wait()
	w.Close()

	if got := len(conn.events(t)); got != 80 {
		t.Fatalf("events = %d, want 80", got)
	}
}
