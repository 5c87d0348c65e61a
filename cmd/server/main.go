package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LalitKJ/Aanya-Voice-Bot/internal/agent"
	"github.com/LalitKJ/Aanya-Voice-Bot/internal/api"
	"github.com/LalitKJ/Aanya-Voice-Bot/internal/config"
	"github.com/LalitKJ/Aanya-Voice-Bot/internal/httpserver"
	"github.com/LalitKJ/Aanya-Voice-Bot/internal/llm"
	"github.com/LalitKJ/Aanya-Voice-Bot/internal/storage"
	"github.com/LalitKJ/Aanya-Voice-Bot/internal/transcript"
	"github.com/LalitKJ/Aanya-Voice-Bot/internal/tts"
	"github.com/LalitKJ/Aanya-Voice-Bot/internal/voice"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	murf := tts.NewMurfClient(cfg.MurfKey, cfg.MurfVoiceID)
	gemini := llm.NewGeminiClient(cfg.GeminiKey, cfg.GeminiModelID)
	batch := transcript.NewBatchClient(cfg.AssemblyAIKey)

	synth := newSynthesizer(cfg, murf)

	local, err := storage.NewLocalStore(cfg.UploadDir)
	if err != nil {
		log.Fatalf("upload store: %v", err)
	}
	var remote storage.Store
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceKey != "" {
		remote, err = storage.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseBucket)
		if err != nil {
			log.Printf("supabase store disabled: %v", err)
			remote = nil
		}
	}

	handlers := &api.Handlers{
		Speech:      murf,
		Transcriber: batch,
		Generator:   gemini,
		Local:       local,
		Remote:      remote,
		Sessions:    agent.NewStore(),
	}

	voiceHandler := &voice.Handler{
		NewTranscriber: func() voice.Transcriber {
			return transcript.NewService(cfg.AssemblyAIKey)
		},
		Generator:      gemini,
		Synthesizer:    synth,
		Fallback:       murf.FallbackAudio,
		DefaultPersona: cfg.PersonaName,
	}

	e := httpserver.New(handlers, voiceHandler)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}

func newSynthesizer(cfg config.Config, murf *tts.MurfClient) agent.Synthesizer {
	switch cfg.TTSProvider {
	case "murf":
		return murf
	case "deepgram":
		return tts.NewDeepgramClient(cfg.DeepgramKey, cfg.DeepgramTTSModel)
	case "polly":
		return tts.NewPollyClient(cfg.PollyRegion, cfg.PollyVoiceID)
	default:
		return tts.NewMurfStreamClient(cfg.MurfKey, cfg.MurfVoiceID)
	}
}
