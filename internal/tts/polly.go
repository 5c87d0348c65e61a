package tts

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"

	"github.com/LalitKJ/Aanya-Voice-Bot/internal/errs"
)

type pollySpeechAPI interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// PollyClient is an alternative batch synthesizer on Amazon Polly. Each call
// produces the full clip as a single MP3 fragment.
type PollyClient struct {
	mu      sync.Mutex
	client  pollySpeechAPI
	region  string
	voiceID string
	engine  pollytypes.Engine
}

func NewPollyClient(region, voiceID string) *PollyClient {
	if strings.TrimSpace(region) == "" {
		region = "us-east-1"
	}
	if strings.TrimSpace(voiceID) == "" {
		voiceID = "Joanna"
	}
	return &PollyClient{region: region, voiceID: voiceID, engine: pollytypes.EngineNeural}
}

// SetClient injects a speech API for tests.
func (p *PollyClient) SetClient(c pollySpeechAPI) {
	p.mu.Lock()
	p.client = c
	p.mu.Unlock()
}

func (p *PollyClient) Synthesize(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	audioCh := make(chan []byte, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(audioCh)
		defer close(errCh)

		if text == "" {
			return
		}
		audio, err := p.synthesize(ctx, text)
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

func (p *PollyClient) synthesize(ctx context.Context, text string) ([]byte, error) {
	client, err := p.resolveClient(ctx)
	if err != nil {
		return nil, err
	}

	out, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       p.engine,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         &text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(p.voiceID),
	})
	if err != nil {
		return nil, classifyPollyError(err)
	}
	if out == nil || out.AudioStream == nil {
		return nil, errs.New(errs.KindSynthesis, "polly returned no audio stream")
	}
	defer out.AudioStream.Close()

	audio, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, errs.Wrap(errs.KindSynthesis, "read polly audio stream", err)
	}
	if len(audio) == 0 {
		return nil, errs.New(errs.KindSynthesis, "polly returned empty audio")
	}
	return audio, nil
}

func classifyPollyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.KindConnection, "polly synthesis", err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "InvalidSsmlException", "TextLengthExceededException", "InvalidSampleRateException":
			return errs.Wrap(errs.KindInvalidInput, "polly rejected input", err)
		default:
			return errs.Wrap(errs.KindExternalService, "polly: "+apiErr.ErrorCode(), err)
		}
	}
	return errs.Wrap(errs.KindSynthesis, "polly synthesis", err)
}

func (p *PollyClient) resolveClient(ctx context.Context) (pollySpeechAPI, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.region))
	if err != nil {
		return nil, errs.Wrap(errs.KindExternalService, "load aws config", err)
	}
	p.client = polly.NewFromConfig(awsCfg)
	return p.client, nil
}
