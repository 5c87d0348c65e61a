// Package voice owns the duplex audio WebSocket: browser microphone audio in,
// transcription, turn detection, the reply pipeline, and JSON events out.
package voice

import (
	"context"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/LalitKJ/Aanya-Voice-Bot/internal/agent"
	"github.com/LalitKJ/Aanya-Voice-Bot/internal/persona"
	"github.com/LalitKJ/Aanya-Voice-Bot/internal/transcript"
	"github.com/LalitKJ/Aanya-Voice-Bot/internal/turn"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Transcriber is the streaming speech-to-text surface the handler needs.
type Transcriber interface {
	Connect() error
	SendAudio(pcm []byte) error
	RequestFormatting() error
	Events() <-chan transcript.Event
	Close() error
}

// Handler wires one WebSocket connection into a full voice session.
type Handler struct {
	NewTranscriber func() Transcriber
	Generator      agent.Generator
	Synthesizer    agent.Synthesizer
	Fallback       func(ctx context.Context) ([]byte, error)
	DefaultPersona string
}

// ServeWS runs the session for a single client connection. It returns only
// when the client disconnects or the transcription stream ends.
func (h *Handler) ServeWS(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sessionID := uuid.NewString()
	log.Printf("voice: session %s connected from %s", sessionID, c.RealIP())

	personaName := c.QueryParam("persona")
	if personaName == "" {
		personaName = h.DefaultPersona
	}
	p := persona.FromName(personaName)

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	egress := NewEgressWriter(conn)
	defer egress.Close()

	tr := h.NewTranscriber()
	if err := tr.Connect(); err != nil {
		log.Printf("voice: session %s transcriber connect: %v", sessionID, err)
		egress.Error("Could not start transcription. Please try again.")
		return nil
	}
	defer tr.Close()

	egress.Status("connected")

	sess := agent.NewSession(sessionID)
	pipe := &agent.Pipeline{
		Generator:   h.Generator,
		Synthesizer: h.Synthesizer,
		Egress:      egress,
		Fallback:    h.Fallback,
	}

	finalized := make(chan string, 4)
	detector := turn.New(
		func(text string) { egress.Transcript(text, false) },
		func(text string) {
			egress.Transcript(text, true)
			select {
			case finalized <- text:
			default:
				log.Printf("voice: session %s dropped turn, pipeline busy", sessionID)
				egress.Error("I'm still answering. Please say that again in a moment.")
			}
		},
		tr.RequestFormatting,
	)

	// Replies are produced one at a time; a new turn waits for the previous
	// run so history ordering matches the conversation.
	go func() {
		for utterance := range finalized {
			prompt, err := persona.BuildPrompt(p, sess.History(), utterance)
			if err != nil {
				log.Printf("voice: session %s build prompt: %v", sessionID, err)
				continue
			}
			run := pipe.Start(ctx, sess, utterance, prompt)
			run.Wait()
			if ctx.Err() != nil {
				return
			}
			log.Printf("voice: session %s run finished: %s", sessionID, run.State())
		}
	}()

	// Transcription events drive the detector until the provider stream
	// closes; that also ends the session.
	events := make(chan struct{})
	go func() {
		defer close(events)
		defer close(finalized)
		for ev := range tr.Events() {
			if ev.Err != nil {
				log.Printf("voice: session %s transcription error: %v", sessionID, ev.Err)
				egress.Error("Transcription failed.")
				continue
			}
			detector.Handle(ev)
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("voice: session %s read: %v", sessionID, err)
			}
			break
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if err := tr.SendAudio(data); err != nil {
			log.Printf("voice: session %s forward audio: %v", sessionID, err)
		}
	}

	cancel()
	tr.Close()
	<-events
	log.Printf("voice: session %s closed", sessionID)
	return nil
}
