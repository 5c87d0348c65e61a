// Package tts wraps the speech-synthesis providers behind one streaming
// contract: Synthesize(ctx, text) -> (audio fragments, errors).
package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/LalitKJ/Aanya-Voice-Bot/internal/errs"
)

// DefaultMurfURL is the Murf REST base.
const DefaultMurfURL = "https://api.murf.ai/v1"

// FallbackText is spoken when a provider fails mid-turn, so the user always
// gets an audible response.
const FallbackText = "I'm having trouble connecting right now."

// MurfClient is the batch (request/response) Murf speech client. It also
// serves the voice catalog and the cached fallback clip.
type MurfClient struct {
	HTTPClient *http.Client
	APIKey     string
	VoiceID    string
	Format     string
	BaseURL    string

	fbMu       sync.Mutex
	fbAudio    []byte
	fbResponse json.RawMessage
}

func NewMurfClient(apiKey, voiceID string) *MurfClient {
	if voiceID == "" {
		voiceID = "en-IN-alia"
	}
	return &MurfClient{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		APIKey:     apiKey,
		VoiceID:    voiceID,
		Format:     "mp3",
		BaseURL:    DefaultMurfURL,
	}
}

type generateResponse struct {
	AudioFile    string `json:"audioFile"`
	EncodedAudio string `json:"encodedAudio"`
}

// GenerateRaw synthesizes text and returns the provider's JSON response
// unchanged, for the pass-through REST endpoints.
func (m *MurfClient) GenerateRaw(ctx context.Context, text, voiceID, format string) (json.RawMessage, error) {
	return m.generate(ctx, text, voiceID, format, false)
}

// Synthesize implements the streaming contract in batch mode: one complete
// audio payload delivered as a single fragment.
func (m *MurfClient) Synthesize(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	audioCh := make(chan []byte, 1)
	errCh := make(chan error, 1)
	go func() {
		defer close(audioCh)
		defer close(errCh)
		audio, err := m.synthesizeBytes(ctx, text)
		if err != nil {
			errCh <- err
			return
		}
		select {
		case audioCh <- audio:
		case <-ctx.Done():
		}
	}()
	return audioCh, errCh
}

func (m *MurfClient) synthesizeBytes(ctx context.Context, text string) ([]byte, error) {
	raw, err := m.generate(ctx, text, m.VoiceID, m.Format, true)
	if err != nil {
		return nil, err
	}
	var resp generateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errs.Wrap(errs.KindSynthesis, "murf decode", err)
	}
	if resp.EncodedAudio == "" {
		return nil, errs.New(errs.KindSynthesis, "murf: response carried no audio")
	}
	audio, err := base64.StdEncoding.DecodeString(resp.EncodedAudio)
	if err != nil {
		return nil, errs.Wrap(errs.KindSynthesis, "murf audio decode", err)
	}
	return audio, nil
}

func (m *MurfClient) generate(ctx context.Context, text, voiceID, format string, encode bool) (json.RawMessage, error) {
	if m.APIKey == "" {
		return nil, errs.New(errs.KindSynthesis, "murf api key missing")
	}
	if strings.TrimSpace(text) == "" {
		return nil, errs.New(errs.KindInvalidInput, "empty text for synthesis")
	}
	if voiceID == "" {
		voiceID = m.VoiceID
	}
	if format == "" {
		format = m.Format
	}

	payload := map[string]any{
		"text":    text,
		"voiceId": voiceID,
		"format":  format,
	}
	if encode {
		payload["encodeAsBase64"] = true
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.BaseURL+"/speech/generate", bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.KindSynthesis, "murf request", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("content-type", "application/json")
	req.Header.Set("api-key", m.APIKey)

	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindSynthesis, "murf call", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.KindSynthesis, "murf read", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.Newf(errs.KindSynthesis, "murf: status=%d body=%s", resp.StatusCode, string(raw))
	}
	return json.RawMessage(raw), nil
}

// Voices returns the Murf voice catalog unchanged.
func (m *MurfClient) Voices(ctx context.Context) (json.RawMessage, error) {
	if m.APIKey == "" {
		return nil, errs.New(errs.KindExternalService, "murf api key missing")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.BaseURL+"/speech/voices", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("api-key", m.APIKey)

	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindExternalService, "murf voices", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.KindExternalService, "murf voices read", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.Newf(errs.KindExternalService, "murf voices: status=%d body=%s", resp.StatusCode, string(raw))
	}
	return json.RawMessage(raw), nil
}

// FallbackAudio returns the fallback clip as raw audio bytes, synthesizing it
// once and serving the cached copy afterwards.
func (m *MurfClient) FallbackAudio(ctx context.Context) ([]byte, error) {
	m.fbMu.Lock()
	cached := m.fbAudio
	m.fbMu.Unlock()
	if cached != nil {
		return cached, nil
	}
	audio, err := m.synthesizeBytes(ctx, FallbackText)
	if err != nil {
		return nil, err
	}
	m.fbMu.Lock()
	m.fbAudio = audio
	m.fbMu.Unlock()
	return audio, nil
}

// FallbackResponse returns the fallback clip as a Murf JSON payload for the
// pass-through endpoints, cached after the first synthesis.
func (m *MurfClient) FallbackResponse(ctx context.Context) (json.RawMessage, error) {
	m.fbMu.Lock()
	cached := m.fbResponse
	m.fbMu.Unlock()
	if cached != nil {
		return cached, nil
	}
	raw, err := m.generate(ctx, FallbackText, m.VoiceID, m.Format, false)
	if err != nil {
		return nil, fmt.Errorf("fallback synthesis: %w", err)
	}
	m.fbMu.Lock()
	m.fbResponse = raw
	m.fbMu.Unlock()
	return raw, nil
}
