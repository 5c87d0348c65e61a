package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/LalitKJ/Aanya-Voice-Bot/internal/errs"
)

func sseServer(t *testing.T, handler http.HandlerFunc) *GeminiClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewGeminiClient("test-key", "gemini-2.5-flash")
	c.BaseURL = srv.URL
	return c
}

func writeChunk(w http.ResponseWriter, text string) {
	fmt.Fprintf(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":%q}]}}]}\n\n", text)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func TestGeminiStream_ForwardsChunksInOrder(t *testing.T) {
	c := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("api key header = %q", got)
		}
		if !strings.Contains(r.URL.Path, "gemini-2.5-flash:streamGenerateContent") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("alt") != "sse" {
			t.Errorf("alt = %q", r.URL.Query().Get("alt"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		writeChunk(w, "Hello")
		writeChunk(w, " there")
		writeChunk(w, "!")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	chunks, errCh := c.Stream(context.Background(), "hi")
	var got []string
	for chunk := range chunks {
		got = append(got, chunk)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("stream error: %v", err)
	}
	want := []string{"Hello", " there", "!"}
	if len(got) != len(want) {
		t.Fatalf("chunks = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chunk %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestGeminiStream_HTTPErrorSurfacedOnce(t *testing.T) {
	c := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"quota exceeded"}}`, http.StatusTooManyRequests)
	})

	chunks, errCh := c.Stream(context.Background(), "hi")
	for range chunks {
	}
	err := <-errCh
	if err == nil {
		t.Fatalf("expected an error")
	}
	if !errs.IsKind(err, errs.KindGeneration) {
		t.Fatalf("kind = %v", errs.KindOf(err))
	}
	if !strings.Contains(err.Error(), "429") {
		t.Fatalf("error should carry the status: %v", err)
	}
}

func TestGeminiStream_EmptyPromptRejected(t *testing.T) {
	c := NewGeminiClient("key", "")
	chunks, errCh := c.Stream(context.Background(), "   ")
	for range chunks {
	}
	err := <-errCh
	if !errs.IsKind(err, errs.KindInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestGeminiStream_MissingAPIKey(t *testing.T) {
	c := NewGeminiClient("", "")
	chunks, errCh := c.Stream(context.Background(), "hi")
	for range chunks {
	}
	if err := <-errCh; !errs.IsKind(err, errs.KindGeneration) {
		t.Fatalf("expected generation error, got %v", err)
	}
}

func TestGeminiGenerate_ConcatenatesStream(t *testing.T) {
	c := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeChunk(w, "The capital ")
		writeChunk(w, "is Paris.")
	})

	reply, err := c.Generate(context.Background(), "capital of France?")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if reply != "The capital is Paris." {
		t.Fatalf("reply = %q", reply)
	}
}

func TestGeminiGenerate_EmptyReplyIsError(t *testing.T) {
	c := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
	})

	_, err := c.Generate(context.Background(), "hi")
	if !errs.IsKind(err, errs.KindGeneration) {
		t.Fatalf("expected generation error, got %v", err)
	}
}

func TestGeminiStream_CancelledMidStream(t *testing.T) {
	release := make(chan struct{})
	c := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeChunk(w, "first")
		<-release
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	chunks, errCh := c.Stream(ctx, "hi")

	if first := <-chunks; first != "first" {
		t.Fatalf("first chunk = %q", first)
	}
	cancel()
	for range chunks {
	}
	if err := <-errCh; err == nil {
		t.Fatalf("expected cancellation error")
	}
}
