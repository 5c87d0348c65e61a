package transcript

import (
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

// DefaultBatchURL is the AssemblyAI v2 REST base.
const DefaultBatchURL = "https://api.assemblyai.com/v2"

// BatchClient transcribes a complete recording through the async v2 API:
// upload, create transcript job, poll until it settles.
type BatchClient struct {
	HTTPClient   *http.Client
	APIKey       string
	BaseURL      string
	PollInterval time.Duration
}

func NewBatchClient(apiKey string) *BatchClient {
	return &BatchClient{
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		APIKey:       apiKey,
		BaseURL:      DefaultBatchURL,
		PollInterval: 500 * time.Millisecond,
	}
}

type transcriptJob struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}

// Transcribe uploads audio bytes and returns the settled transcript text.
func (c *BatchClient) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if c.APIKey == "" {
		return "", errs.New(errs.KindExternalService, "assemblyai api key missing")
	}
	if len(audio) == 0 {
		return "", errs.New(errs.KindInvalidInput, "no audio data to transcribe")
	}

	uploadURL, err := c.upload(ctx, audio)
	if err != nil {
		return "", err
	}
	jobID, err := c.createJob(ctx, uploadURL)
	if err != nil {
		return "", err
	}
	return c.poll(ctx, jobID)
}

func (c *BatchClient) upload(ctx context.Context, audio []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/upload", bytes.NewReader(audio))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.APIKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	var out struct {
		UploadURL string `json:"upload_url"`
	}
	if err := c.do(req, &out); err != nil {
		return "", errs.Wrap(errs.KindExternalService, "assemblyai upload", err)
	}
	if out.UploadURL == "" {
		return "", errs.New(errs.KindExternalService, "assemblyai upload: empty upload_url")
	}
	return out.UploadURL, nil
}

func (c *BatchClient) createJob(ctx context.Context, audioURL string) (string, error) {
	body, _ := json.Marshal(map[string]string{"audio_url": audioURL})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/transcript", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	var job transcriptJob
	if err := c.do(req, &job); err != nil {
		return "", errs.Wrap(errs.KindExternalService, "assemblyai create transcript", err)
	}
	if job.ID == "" {
		return "", errs.New(errs.KindExternalService, "assemblyai create transcript: empty id")
	}
	return job.ID, nil
}

func (c *BatchClient) poll(ctx context.Context, jobID string) (string, error) {
	interval := c.PollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/transcript/"+jobID, nil)
		if err != nil {
			return "", err
		}
		req.Header.Set("Authorization", c.APIKey)

		var job transcriptJob
		if err := c.do(req, &job); err != nil {
			return "", errs.Wrap(errs.KindExternalService, "assemblyai poll transcript", err)
		}
		switch job.Status {
		case "completed":
			text := strings.TrimSpace(job.Text)
			if text == "" {
				return "I couldn't understand that. Please try again.", nil
			}
			return text, nil
		case "error":
			return "", errs.Newf(errs.KindTranscription, "assemblyai transcription failed: %s", job.Error)
		}

		select {
		case <-ctx.Done():
			return "", errs.Wrap(errs.KindConnection, "transcription cancelled", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *BatchClient) do(req *http.Request, out any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
