// Package api carries the REST endpoints: voice catalog and speech
// generation pass-throughs, file upload, batch transcription, and the
// non-streaming chat endpoint.
package api

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/LalitKJ/Aanya-Voice-Bot/internal/agent"
	"github.com/LalitKJ/Aanya-Voice-Bot/internal/errs"
	"github.com/LalitKJ/Aanya-Voice-Bot/internal/persona"
	"github.com/LalitKJ/Aanya-Voice-Bot/internal/storage"
)

const maxUploadBytes = 25 << 20

// SpeechService is the Murf surface the handlers use.
type SpeechService interface {
	Voices(ctx context.Context) (json.RawMessage, error)
	GenerateRaw(ctx context.Context, text, voiceID, format string) (json.RawMessage, error)
	FallbackResponse(ctx context.Context) (json.RawMessage, error)
}

// FileTranscriber turns a complete recording into text.
type FileTranscriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// TextGenerator produces a complete reply for a prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Handlers struct {
	Speech      SpeechService
	Transcriber FileTranscriber
	Generator   TextGenerator
	Local       storage.Store
	Remote      storage.Store
	Sessions    *agent.Store
}

func (h *Handlers) Register(e *echo.Echo) {
	e.GET("/healthz", h.Healthz)
	e.GET("/api/hello", h.Hello)
	e.GET("/voices", h.Voices)
	e.POST("/generate-audio", h.GenerateAudio)
	e.POST("/upload-audio", h.UploadAudio)
	e.POST("/transcribe/file", h.TranscribeFile)
	e.POST("/tts/echo", h.EchoBot)
	e.POST("/llm/query", h.LLMQuery)
	e.POST("/agent/chat/:session_id", h.AgentChat)
}

func (h *Handlers) Healthz(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (h *Handlers) Hello(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": "Hello from the voice agent backend"})
}

func (h *Handlers) Voices(c echo.Context) error {
	voices, err := h.Speech.Voices(c.Request().Context())
	if err != nil {
		log.Printf("api: list voices: %v", err)
		return c.JSON(http.StatusBadGateway, errorBody("could not fetch voices"))
	}
	return c.JSONBlob(http.StatusOK, voices)
}

type generateAudioRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voiceId"`
	Format  string `json:"format"`
}

func (h *Handlers) GenerateAudio(c echo.Context) error {
	var req generateAudioRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}
	if req.Text == "" {
		return c.JSON(http.StatusBadRequest, errorBody("text is required"))
	}

	ctx := c.Request().Context()
	resp, err := h.Speech.GenerateRaw(ctx, req.Text, req.VoiceID, req.Format)
	if err != nil {
		if errs.IsKind(err, errs.KindInvalidInput) {
			return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		}
		log.Printf("api: generate audio: %v", err)
		return h.fallbackAudio(c)
	}
	return c.JSONBlob(http.StatusOK, resp)
}

func (h *Handlers) UploadAudio(c echo.Context) error {
	name, contentType, data, err := readUpload(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}

	size, err := h.Local.Save(name, contentType, data)
	if err != nil {
		log.Printf("api: save upload: %v", err)
		return c.JSON(http.StatusInternalServerError, errorBody("could not save file"))
	}
	if h.Remote != nil {
		if _, err := h.Remote.Save(name, contentType, data); err != nil {
			log.Printf("api: mirror upload: %v", err)
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"filename":     name,
		"content_type": contentType,
		"size":         size,
	})
}

func (h *Handlers) TranscribeFile(c echo.Context) error {
	_, _, data, err := readUpload(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}

	text, err := h.Transcriber.Transcribe(c.Request().Context(), data)
	if err != nil {
		log.Printf("api: transcribe file: %v", err)
		return c.JSON(http.StatusBadGateway, errorBody("transcription failed"))
	}
	return c.JSON(http.StatusOK, map[string]string{"transcript": text})
}

// EchoBot repeats the caller's words back in the agent's voice.
func (h *Handlers) EchoBot(c echo.Context) error {
	_, _, data, err := readUpload(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}

	ctx := c.Request().Context()
	text, err := h.Transcriber.Transcribe(ctx, data)
	if err != nil {
		log.Printf("api: echo transcribe: %v", err)
		return c.JSON(http.StatusBadGateway, errorBody("transcription failed"))
	}

	resp, err := h.Speech.GenerateRaw(ctx, text, "", "")
	if err != nil {
		log.Printf("api: echo synthesize: %v", err)
		return h.fallbackAudio(c)
	}
	return c.JSONBlob(http.StatusOK, resp)
}

func (h *Handlers) LLMQuery(c echo.Context) error {
	_, _, data, err := readUpload(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}

	ctx := c.Request().Context()
	question, err := h.Transcriber.Transcribe(ctx, data)
	if err != nil {
		log.Printf("api: query transcribe: %v", err)
		return c.JSON(http.StatusBadGateway, errorBody("transcription failed"))
	}

	prompt, err := persona.BuildPrompt(persona.Default, nil, question)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}
	reply, err := h.Generator.Generate(ctx, prompt)
	if err != nil {
		log.Printf("api: query generate: %v", err)
		return h.fallbackAudio(c)
	}

	resp, err := h.Speech.GenerateRaw(ctx, reply, "", "")
	if err != nil {
		log.Printf("api: query synthesize: %v", err)
		return h.fallbackAudio(c)
	}
	return c.JSONBlob(http.StatusOK, resp)
}

func (h *Handlers) AgentChat(c echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, errorBody("session_id is required"))
	}
	_, _, data, err := readUpload(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}

	ctx := c.Request().Context()
	question, err := h.Transcriber.Transcribe(ctx, data)
	if err != nil {
		log.Printf("api: chat transcribe: %v", err)
		return c.JSON(http.StatusBadGateway, errorBody("transcription failed"))
	}

	sess := h.Sessions.Get(sessionID)
	p := persona.FromName(c.QueryParam("persona"))
	prompt, err := persona.BuildPrompt(p, sess.History(), question)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}

	reply, err := h.Generator.Generate(ctx, prompt)
	if err != nil {
		log.Printf("api: chat generate: %v", err)
		return h.fallbackAudio(c)
	}

	audio, err := h.Speech.GenerateRaw(ctx, reply, p.VoiceID, "")
	if err != nil {
		log.Printf("api: chat synthesize: %v", err)
		audio, err = h.Speech.FallbackResponse(ctx)
		if err != nil {
			return c.JSON(http.StatusBadGateway, errorBody("speech synthesis failed"))
		}
	}

	sess.AppendExchange(question, reply)
	return c.JSON(http.StatusOK, map[string]any{
		"audio":   json.RawMessage(audio),
		"history": sess.History(),
	})
}

func (h *Handlers) fallbackAudio(c echo.Context) error {
	resp, err := h.Speech.FallbackResponse(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusBadGateway, errorBody("speech synthesis failed"))
	}
	return c.JSONBlob(http.StatusOK, resp)
}

func readUpload(c echo.Context) (name, contentType string, data []byte, err error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return "", "", nil, errs.New(errs.KindInvalidInput, "file field is required")
	}
	if fh.Size > maxUploadBytes {
		return "", "", nil, errs.New(errs.KindInvalidInput, "file too large")
	}
	f, err := fh.Open()
	if err != nil {
		return "", "", nil, errs.Wrap(errs.KindInvalidInput, "open upload", err)
	}
	defer f.Close()

	data, err = io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		return "", "", nil, errs.Wrap(errs.KindInvalidInput, "read upload", err)
	}
	if len(data) == 0 {
		return "", "", nil, errs.New(errs.KindInvalidInput, "file is empty")
	}
	contentType = fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return fh.Filename, contentType, data, nil
}

func errorBody(message string) map[string]string {
	return map[string]string{"error": message}
}
