package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/LalitKJ/Aanya-Voice-Bot/internal/errs"
)

// DefaultMurfStreamURL is the Murf duplex stream-input endpoint.
const DefaultMurfStreamURL = "wss://api.murf.ai/v1/speech/stream-input"

// MurfStreamClient synthesizes over the Murf WebSocket protocol: one
// voice_config handshake per connection, then text messages, the final one
// flagged end:true to release the server-side context. Audio arrives as
// {"audio": <base64>} frames terminated by {"status": "done"}.
type MurfStreamClient struct {
	APIKey     string
	VoiceID    string
	Style      string
	SampleRate int
	BaseURL    string
}

func NewMurfStreamClient(apiKey, voiceID string) *MurfStreamClient {
	if voiceID == "" {
		voiceID = "en-IN-alia"
	}
	return &MurfStreamClient{
		APIKey:     apiKey,
		VoiceID:    voiceID,
		Style:      "Conversational",
		SampleRate: 44100,
		BaseURL:    DefaultMurfStreamURL,
	}
}

type voiceConfigMessage struct {
	VoiceConfig struct {
		VoiceID   string `json:"voiceId"`
		Style     string `json:"style"`
		Rate      int    `json:"rate"`
		Pitch     int    `json:"pitch"`
		Variation int    `json:"variation"`
	} `json:"voice_config"`
}

type textMessage struct {
	Text string `json:"text"`
	End  bool   `json:"end"`
}

type streamFrame struct {
	Audio        string `json:"audio"`
	Status       string `json:"status"`
	Error        string `json:"error"`
	ErrorMessage string `json:"errorMessage"`
}

// Synthesize streams audio fragments for one text fragment. Each call opens
// its own connection and closes its server-side context with end:true, so
// fragments from concurrent runs can never interleave.
func (m *MurfStreamClient) Synthesize(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	audioCh := make(chan []byte, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(audioCh)
		defer close(errCh)

		if m.APIKey == "" {
			errCh <- errs.New(errs.KindSynthesis, "murf api key missing")
			return
		}
		if strings.TrimSpace(text) == "" {
			return
		}

		conn, err := m.dial(ctx)
		if err != nil {
			errCh <- err
			return
		}
		defer conn.Close()

		// Cancellation must unblock the read loop below.
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				_ = conn.Close()
			case <-done:
			}
		}()

		var cfg voiceConfigMessage
		cfg.VoiceConfig.VoiceID = m.VoiceID
		cfg.VoiceConfig.Style = m.Style
		cfg.VoiceConfig.Variation = 1
		if err := conn.WriteJSON(cfg); err != nil {
			errCh <- errs.Wrap(errs.KindSynthesis, "murf stream voice config", err)
			return
		}
		if err := conn.WriteJSON(textMessage{Text: text, End: true}); err != nil {
			errCh <- errs.Wrap(errs.KindSynthesis, "murf stream text", err)
			return
		}

		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					errCh <- errs.Wrap(errs.KindConnection, "synthesis cancelled", ctx.Err())
				} else {
					errCh <- errs.Wrap(errs.KindSynthesis, "murf stream read", err)
				}
				return
			}
			var frame streamFrame
			if err := json.Unmarshal(message, &frame); err != nil {
				log.Printf("murf stream: skipping unparseable frame: %v", err)
				continue
			}
			if frame.Error != "" || frame.ErrorMessage != "" {
				msg := frame.Error
				if msg == "" {
					msg = frame.ErrorMessage
				}
				errCh <- errs.Newf(errs.KindSynthesis, "murf stream: %s", msg)
				return
			}
			if frame.Audio != "" {
				audio, err := base64.StdEncoding.DecodeString(frame.Audio)
				if err != nil {
					errCh <- errs.Wrap(errs.KindSynthesis, "murf stream audio decode", err)
					return
				}
				select {
				case audioCh <- audio:
				case <-ctx.Done():
					errCh <- errs.Wrap(errs.KindConnection, "synthesis cancelled", ctx.Err())
					return
				}
			}
			if frame.Status == "done" {
				return
			}
		}
	}()

	return audioCh, errCh
}

func (m *MurfStreamClient) dial(ctx context.Context) (*websocket.Conn, error) {
	params := url.Values{}
	params.Set("api-key", m.APIKey)
	params.Set("sample_rate", fmt.Sprintf("%d", m.SampleRate))
	params.Set("channel_type", "MONO")
	params.Set("format", "WAV")

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, m.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		if resp != nil {
			return nil, errs.Newf(errs.KindSynthesis, "murf stream connect: status=%d", resp.StatusCode)
		}
		return nil, errs.Wrap(errs.KindSynthesis, "murf stream connect", err)
	}
	return conn, nil
}
