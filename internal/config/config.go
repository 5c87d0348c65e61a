package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string

	AssemblyAIKey string

	GeminiKey     string
	GeminiModelID string

	MurfKey     string
	MurfVoiceID string

	// TTSProvider selects the synthesis backend for the realtime pipeline:
	// "murf-stream" (duplex WebSocket), "murf" (batch HTTP), "deepgram" or "polly".
	TTSProvider      string
	DeepgramKey      string
	DeepgramTTSModel string
	PollyRegion      string
	PollyVoiceID     string

	UploadDir string

	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string

	PersonaName string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	addr := getEnv("HTTP_ADDRESS", ":8080")

	assemblyAIKey := os.Getenv("ASSEMBLYAI_API_KEY")
	if assemblyAIKey == "" {
		log.Println("Warning: ASSEMBLYAI_API_KEY not set - transcription will not work")
	}

	geminiKey := os.Getenv("GEMINI_API_KEY")
	if geminiKey == "" {
		log.Println("Warning: GEMINI_API_KEY not set - response generation will not work")
	}

	murfKey := os.Getenv("MURF_API_KEY")
	if murfKey == "" {
		log.Println("Warning: MURF_API_KEY not set - speech synthesis will not work")
	}

	provider := getEnv("TTS_PROVIDER", "murf-stream")
	switch provider {
	case "murf-stream", "murf", "deepgram", "polly":
	default:
		log.Printf("Warning: unknown TTS_PROVIDER %q - falling back to murf-stream", provider)
		provider = "murf-stream"
	}

	log.Printf("config: HTTP_ADDRESS=%s TTS_PROVIDER=%s", addr, provider)
	return Config{
		HTTPAddress:        addr,
		AssemblyAIKey:      assemblyAIKey,
		GeminiKey:          geminiKey,
		GeminiModelID:      getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		MurfKey:            murfKey,
		MurfVoiceID:        getEnv("MURF_VOICE_ID", "en-IN-alia"),
		TTSProvider:        provider,
		DeepgramKey:        os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramTTSModel:   getEnv("DEEPGRAM_TTS_MODEL", "aura-2-thalia-en"),
		PollyRegion:        getEnv("AWS_REGION", "us-east-1"),
		PollyVoiceID:       getEnv("POLLY_VOICE_ID", "Joanna"),
		UploadDir:          getEnv("UPLOAD_DIR", "uploads"),
		SupabaseURL:        os.Getenv("SUPABASE_URL"),
		SupabaseServiceKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:     getEnv("SUPABASE_BUCKET", "voice-recordings"),
		PersonaName:        getEnv("PERSONA", "default"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
