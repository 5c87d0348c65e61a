// Package transcript wraps AssemblyAI speech-to-text: the v3 realtime
// streaming socket and the v2 batch transcription API.
package transcript

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/LalitKJ/Aanya-Voice-Bot/internal/errs"
)

// DefaultStreamingURL is the AssemblyAI Universal-Streaming v3 endpoint.
const DefaultStreamingURL = "wss://streaming.assemblyai.com/v3/ws"

// Event is one transcript update from the streaming provider. Interim events
// carry EndOfTurn=false and are transient. A final event with Formatted=false
// still needs reformatting before its text is canonical.
type Event struct {
	Text      string
	EndOfTurn bool
	Formatted bool
	Err       error
}

// NeedsReformat reports whether this final event's text must be re-requested
// in formatted form before being trusted.
func (e Event) NeedsReformat() bool { return e.EndOfTurn && !e.Formatted }

// Service is a streaming transcription session over a single WebSocket.
// Audio frames go in through a buffered queue; transcript events come out on
// Events(). The socket's read goroutine only ever publishes into the events
// channel, never touches caller state.
type Service struct {
	apiKey     string
	endpoint   string
	sampleRate int

	mu        sync.Mutex
	writeMu   sync.Mutex
	conn      *websocket.Conn
	connected bool

	events  chan Event
	audioCh chan []byte
	stopCh  chan struct{}

	closeOnce sync.Once
}

// streaming v3 server message shapes
type beginMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

type turnMessage struct {
	Type          string `json:"type"`
	Transcript    string `json:"transcript"`
	EndOfTurn     bool   `json:"end_of_turn"`
	TurnFormatted bool   `json:"turn_is_formatted"`
}

type terminationMessage struct {
	Type                   string  `json:"type"`
	AudioDurationSeconds   float64 `json:"audio_duration_seconds"`
	SessionDurationSeconds float64 `json:"session_duration_seconds"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// NewService creates a streaming transcription service for 16kHz mono PCM.
func NewService(apiKey string) *Service {
	return &Service{
		apiKey:     apiKey,
		endpoint:   DefaultStreamingURL,
		sampleRate: 16000,
		events:     make(chan Event, 100),
		audioCh:    make(chan []byte, 1000),
		stopCh:     make(chan struct{}),
	}
}

// SetEndpoint overrides the streaming endpoint (tests).
func (s *Service) SetEndpoint(u string) { s.endpoint = u }

// Events returns the transcript event stream. The channel is closed when the
// provider connection ends.
func (s *Service) Events() <-chan Event { return s.events }

// Connect establishes the streaming WebSocket connection.
func (s *Service) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}
	if s.apiKey == "" {
		return errs.New(errs.KindExternalService, "assemblyai api key is empty")
	}

	params := url.Values{}
	params.Set("sample_rate", strconv.Itoa(s.sampleRate))
	params.Set("encoding", "pcm_s16le")
	// Unformatted turns arrive faster; formatting is switched on per turn
	// once the detector asks for it.
	params.Set("format_turns", "false")

	wsURL := fmt.Sprintf("%s?%s", s.endpoint, params.Encode())
	headers := map[string][]string{"Authorization": {s.apiKey}}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, resp, err := dialer.Dial(wsURL, headers)
	if err != nil {
		if resp != nil {
			log.Printf("assemblyai: connection failed with status %d", resp.StatusCode)
		}
		return errs.Wrap(errs.KindExternalService, "assemblyai connect", err)
	}

	s.conn = conn
	s.connected = true

	go s.readLoop(conn)
	go s.writeLoop(conn)

	log.Println("assemblyai: streaming session connected")
	return nil
}

// SendAudio queues one PCM frame for delivery to the provider. Frames are
// dropped with a log line when the queue is full rather than blocking the
// connection's read loop.
func (s *Service) SendAudio(pcm []byte) error {
	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()
	if !connected {
		return errs.New(errs.KindConnection, "not connected to assemblyai")
	}
	select {
	case s.audioCh <- pcm:
	default:
		log.Println("assemblyai: audio queue full, dropping frame")
	}
	return nil
}

// RequestFormatting asks the provider to start emitting formatted turns.
// Called at most once per turn by the turn detector.
func (s *Service) RequestFormatting() error {
	s.mu.Lock()
	conn := s.conn
	connected := s.connected
	s.mu.Unlock()
	if !connected || conn == nil {
		return errs.New(errs.KindConnection, "not connected to assemblyai")
	}
	msg := map[string]any{"type": "UpdateConfiguration", "format_turns": true}
	s.writeMu.Lock()
	err := conn.WriteJSON(msg)
	s.writeMu.Unlock()
	if err != nil {
		return errs.Wrap(errs.KindExternalService, "assemblyai update configuration", err)
	}
	return nil
}

// Close terminates the streaming session and releases the socket. Idempotent.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		s.mu.Lock()
		conn := s.conn
		s.conn = nil
		s.connected = false
		s.mu.Unlock()
		if conn != nil {
			s.writeMu.Lock()
			_ = conn.WriteJSON(map[string]string{"type": "Terminate"})
			s.writeMu.Unlock()
			_ = conn.Close()
		}
		log.Println("assemblyai: streaming session closed")
	})
	return nil
}

// readLoop owns the socket reads and closes the events channel on exit.
func (s *Service) readLoop(conn *websocket.Conn) {
	defer close(s.events)
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopCh:
			default:
				log.Printf("assemblyai: read error: %v", err)
				s.publish(Event{Err: errs.Wrap(errs.KindExternalService, "assemblyai stream", err)})
			}
			return
		}
		s.processMessage(message)
	}
}

func (s *Service) processMessage(message []byte) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &base); err != nil {
		log.Printf("assemblyai: unmarshal: %v", err)
		return
	}
	switch base.Type {
	case "Begin":
		var msg beginMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return
		}
		log.Printf("assemblyai: session began id=%s expires=%s", msg.ID, time.Unix(msg.ExpiresAt, 0).Format(time.RFC3339))
	case "Turn":
		var msg turnMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return
		}
		if msg.Transcript == "" && !msg.EndOfTurn {
			return
		}
		s.publish(Event{Text: msg.Transcript, EndOfTurn: msg.EndOfTurn, Formatted: msg.TurnFormatted})
	case "Termination":
		var msg terminationMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return
		}
		log.Printf("assemblyai: session terminated, %.2fs audio processed", msg.AudioDurationSeconds)
	case "Error":
		var msg errorMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return
		}
		s.publish(Event{Err: errs.Newf(errs.KindExternalService, "assemblyai: %s", msg.Error)})
	default:
		log.Printf("assemblyai: unknown message type %q", base.Type)
	}
}

func (s *Service) publish(ev Event) {
	select {
	case s.events <- ev:
	default:
		log.Println("assemblyai: event queue full, dropping event")
	}
}

// writeLoop forwards queued audio frames to the provider.
func (s *Service) writeLoop(conn *websocket.Conn) {
	for {
		select {
		case <-s.stopCh:
			return
		case pcm := <-s.audioCh:
			s.writeMu.Lock()
			err := conn.WriteMessage(websocket.BinaryMessage, pcm)
			s.writeMu.Unlock()
			if err != nil {
				select {
				case <-s.stopCh:
				default:
					log.Printf("assemblyai: audio write error: %v", err)
				}
				return
			}
		}
	}
}
