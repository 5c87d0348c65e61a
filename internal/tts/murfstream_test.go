package tts

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/LalitKJ/Aanya-Voice-Bot/internal/errs"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func murfStreamServer(t *testing.T, handler func(*testing.T, *websocket.Conn, *http.Request)) *MurfStreamClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		handler(t, conn, r)
	}))
	t.Cleanup(srv.Close)

	c := NewMurfStreamClient("test-key", "en-IN-alia")
	c.BaseURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return c
}

func TestMurfStream_HandshakeThenAudioFrames(t *testing.T) {
	c := murfStreamServer(t, func(t *testing.T, conn *websocket.Conn, r *http.Request) {
		q := r.URL.Query()
		if q.Get("api-key") != "test-key" {
			t.Errorf("api-key = %q", q.Get("api-key"))
		}
		if q.Get("sample_rate") != "44100" || q.Get("channel_type") != "MONO" || q.Get("format") != "WAV" {
			t.Errorf("query params = %v", q)
		}

		var cfg voiceConfigMessage
		if err := conn.ReadJSON(&cfg); err != nil {
			t.Errorf("read voice config: %v", err)
			return
		}
		if cfg.VoiceConfig.VoiceID != "en-IN-alia" {
			t.Errorf("voiceId = %q", cfg.VoiceConfig.VoiceID)
		}

		var msg textMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Errorf("read text: %v", err)
			return
		}
		if msg.Text != "hello there" || !msg.End {
			t.Errorf("text message = %+v", msg)
		}

		for _, chunk := range []string{"part-one", "part-two"} {
			frame := map[string]string{"audio": base64.StdEncoding.EncodeToString([]byte(chunk))}
			if err := conn.WriteJSON(frame); err != nil {
				t.Errorf("write frame: %v", err)
				return
			}
		}
		_ = conn.WriteJSON(map[string]string{"status": "done"})
	})

	audioCh, errCh := c.Synthesize(context.Background(), "hello there")
	var got []string
	for b := range audioCh {
		got = append(got, string(b))
	}
	if err := <-errCh; err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	want := []string{"part-one", "part-two"}
	if len(got) != len(want) {
		t.Fatalf("audio = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("audio[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMurfStream_FinalFrameCarriesAudioAndDone(t *testing.T) {
	c := murfStreamServer(t, func(t *testing.T, conn *websocket.Conn, r *http.Request) {
		var cfg voiceConfigMessage
		_ = conn.ReadJSON(&cfg)
		var msg textMessage
		_ = conn.ReadJSON(&msg)
		frame := map[string]any{
			"audio":  base64.StdEncoding.EncodeToString([]byte("tail")),
			"status": "done",
		}
		_ = conn.WriteJSON(frame)
	})

	audioCh, errCh := c.Synthesize(context.Background(), "bye")
	var got []string
	for b := range audioCh {
		got = append(got, string(b))
	}
	if err := <-errCh; err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(got) != 1 || got[0] != "tail" {
		t.Fatalf("audio = %v", got)
	}
}

func TestMurfStream_ProviderErrorFrame(t *testing.T) {
	c := murfStreamServer(t, func(t *testing.T, conn *websocket.Conn, r *http.Request) {
		var cfg voiceConfigMessage
		_ = conn.ReadJSON(&cfg)
		var msg textMessage
		_ = conn.ReadJSON(&msg)
		_ = conn.WriteJSON(map[string]string{"errorMessage": "voice not found"})
	})

	audioCh, errCh := c.Synthesize(context.Background(), "hi")
	for range audioCh {
	}
	err := <-errCh
	if !errs.IsKind(err, errs.KindSynthesis) {
		t.Fatalf("expected synthesis error, got %v", err)
	}
	if !strings.Contains(err.Error(), "voice not found") {
		t.Fatalf("error should carry provider message: %v", err)
	}
}

func TestMurfStream_EmptyTextProducesNothing(t *testing.T) {
	c := NewMurfStreamClient("key", "")
	audioCh, errCh := c.Synthesize(context.Background(), "   ")
	var frames int
	for range audioCh {
		frames++
	}
	if err := <-errCh; err != nil {
		t.Fatalf("empty text should be a no-op, got %v", err)
	}
	if frames != 0 {
		t.Fatalf("frames = %d", frames)
	}
}

func TestMurfStream_CancelledMidStream(t *testing.T) {
	started := make(chan struct{})
	c := murfStreamServer(t, func(t *testing.T, conn *websocket.Conn, r *http.Request) {
		var cfg voiceConfigMessage
		_ = conn.ReadJSON(&cfg)
		var msg textMessage
		_ = conn.ReadJSON(&msg)
		frame := map[string]string{"audio": base64.StdEncoding.EncodeToString([]byte("first"))}
		_ = conn.WriteJSON(frame)
		close(started)
		// hold the connection open; client cancellation closes it
		var discard textMessage
		_ = conn.ReadJSON(&discard)
	})

	ctx, cancel := context.WithCancel(context.Background())
	audioCh, errCh := c.Synthesize(ctx, "hello")

	<-audioCh
	<-started
	cancel()
	for range audioCh {
	}
	err := <-errCh
	if !errs.IsKind(err, errs.KindConnection) {
		t.Fatalf("expected connection error on cancel, got %v", err)
	}
}
