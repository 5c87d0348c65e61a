package tts

import (
	"context"
	"sync/atomic"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"

	"github.com/LalitKJ/Aanya-Voice-Bot/internal/errs"
)

// DeepgramClient is an alternative streaming synthesizer using the Deepgram
// Aura WebSocket API via the official SDK. Audio is 48kHz linear16 PCM.
type DeepgramClient struct {
	apiKey     string
	model      string
	sampleRate int
	encoding   string
}

func NewDeepgramClient(apiKey, model string) *DeepgramClient {
	if model == "" {
		model = "aura-2-thalia-en"
	}
	return &DeepgramClient{apiKey: apiKey, model: model, sampleRate: 48000, encoding: "linear16"}
}

// Synthesize bridges the SDK's callback interface onto the channel contract.
// The SDK drives callbacks from its own goroutines; they only ever publish
// into the audio channel.
func (d *DeepgramClient) Synthesize(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	audioCh := make(chan []byte, 256)
	errCh := make(chan error, 1)

	go func() {
		defer close(audioCh)
		defer close(errCh)

		if d.apiKey == "" {
			errCh <- errs.New(errs.KindSynthesis, "deepgram api key missing")
			return
		}
		if text == "" {
			return
		}

		options := &clientinterfaces.WSSpeakOptions{
			Model:      d.model,
			Encoding:   d.encoding,
			SampleRate: d.sampleRate,
		}

		var lastRecvUnix atomic.Int64
		var flushed atomic.Bool
		cb := &speakCallback{
			onBinary: func(data []byte) error {
				if len(data) == 0 {
					return nil
				}
				lastRecvUnix.Store(time.Now().UnixNano())
				b := make([]byte, len(data))
				copy(b, data)
				select {
				case audioCh <- b:
				case <-ctx.Done():
				}
				return nil
			},
			onFlushed: func() { flushed.Store(true) },
		}

		dg, err := speak.NewWSUsingCallback(ctx, d.apiKey, &clientinterfaces.ClientOptions{}, options, cb)
		if err != nil {
			errCh <- errs.Wrap(errs.KindSynthesis, "deepgram client", err)
			return
		}
		defer dg.Stop()

		if ok := dg.Connect(); !ok {
			errCh <- errs.New(errs.KindSynthesis, "deepgram connect failed")
			return
		}
		if err := dg.SpeakWithText(text); err != nil {
			errCh <- errs.Wrap(errs.KindSynthesis, "deepgram speak", err)
			return
		}
		if err := dg.Flush(); err != nil {
			errCh <- errs.Wrap(errs.KindSynthesis, "deepgram flush", err)
			return
		}

		// The Flushed event marks end of synthesis; wait for it plus a short
		// quiet window so trailing frames are not cut off.
		const idleWindow = 400 * time.Millisecond
		deadline := time.NewTimer(12 * time.Second)
		defer deadline.Stop()
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				errCh <- errs.Wrap(errs.KindConnection, "synthesis cancelled", ctx.Err())
				return
			case <-deadline.C:
				errCh <- errs.New(errs.KindSynthesis, "deepgram: timed out waiting for audio")
				return
			case <-ticker.C:
				last := lastRecvUnix.Load()
				if flushed.Load() && last > 0 && time.Since(time.Unix(0, last)) > idleWindow {
					return
				}
			}
		}
	}()

	return audioCh, errCh
}

type speakCallback struct {
	onBinary  func([]byte) error
	onFlushed func()
}

func (s *speakCallback) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *speakCallback) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *speakCallback) Flush(*msginterfaces.FlushedResponse) error {
	if s.onFlushed != nil {
		s.onFlushed()
	}
	return nil
}
func (s *speakCallback) Clear(*msginterfaces.ClearedResponse) error   { return nil }
func (s *speakCallback) Close(*msginterfaces.CloseResponse) error     { return nil }
func (s *speakCallback) Warning(*msginterfaces.WarningResponse) error { return nil }
func (s *speakCallback) Error(*msginterfaces.ErrorResponse) error     { return nil }
func (s *speakCallback) UnhandledEvent([]byte) error                  { return nil }
func (s *speakCallback) Binary(byMsg []byte) error {
	if s.onBinary != nil {
		return s.onBinary(byMsg)
	}
	return nil
}
