// Package llm streams conversational replies from the Gemini API.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/LalitKJ/Aanya-Voice-Bot/internal/errs"
)

// DefaultBaseURL is the Gemini API endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient is a streaming client for the generateContent family of
// endpoints. Responses arrive as SSE chunks carrying text increments.
type GeminiClient struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
	BaseURL    string
}

func NewGeminiClient(apiKey, model string) *GeminiClient {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiClient{
		// Streaming responses can run long; the context bounds each call.
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		APIKey:     apiKey,
		Model:      model,
		BaseURL:    DefaultBaseURL,
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type streamChunk struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Stream sends the prompt and returns an ordered, finite sequence of text
// increments. The text channel closes at end-of-stream; at most one error is
// delivered. Callers must drain the channels or cancel the context.
func (c *GeminiClient) Stream(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errCh)

		if strings.TrimSpace(prompt) == "" {
			errCh <- errs.New(errs.KindInvalidInput, "empty prompt")
			return
		}
		if c.APIKey == "" {
			errCh <- errs.New(errs.KindGeneration, "gemini api key missing")
			return
		}

		body, _ := json.Marshal(generateRequest{
			Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		})
		endpoint := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", c.BaseURL, c.Model)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			errCh <- errs.Wrap(errs.KindGeneration, "gemini request", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", c.APIKey)

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			errCh <- errs.Wrap(errs.KindGeneration, "gemini call", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			b, _ := io.ReadAll(resp.Body)
			errCh <- errs.Newf(errs.KindGeneration, "gemini: status=%d body=%s", resp.StatusCode, string(b))
			return
		}

		if err := c.readStream(ctx, resp.Body, chunks); err != nil {
			errCh <- err
		}
	}()

	return chunks, errCh
}

// readStream parses "data: <json>" SSE lines and forwards text increments in
// arrival order.
func (c *GeminiClient) readStream(ctx context.Context, body io.Reader, chunks chan<- string) error {
	reader := bufio.NewReader(body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			if ctx.Err() != nil {
				return errs.Wrap(errs.KindConnection, "generation cancelled", ctx.Err())
			}
			return errs.Wrap(errs.KindGeneration, "gemini stream read", err)
		}
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			return nil
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return errs.Wrap(errs.KindGeneration, "gemini stream decode", err)
		}
		for _, cand := range chunk.Candidates {
			for _, p := range cand.Content.Parts {
				if p.Text == "" {
					continue
				}
				select {
				case chunks <- p.Text:
				case <-ctx.Done():
					return errs.Wrap(errs.KindConnection, "generation cancelled", ctx.Err())
				}
			}
		}
	}
}

// Generate drains a full streamed response into one string.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	chunks, errCh := c.Stream(ctx, prompt)
	var b strings.Builder
	for chunk := range chunks {
		b.WriteString(chunk)
	}
	if err := <-errCh; err != nil {
		return "", err
	}
	reply := strings.TrimSpace(b.String())
	if reply == "" {
		return "", errs.New(errs.KindGeneration, "gemini: empty response")
	}
	return reply, nil
}
