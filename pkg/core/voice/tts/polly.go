package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"

	"github.com/VighneshNilajakar/HOTPIN/pkg/core/audio"
)

// ErrPollyThrottled marks a rate-limit response; the utterance fails but
// the session survives.
var ErrPollyThrottled = errors.New("tts: polly throttled")

// pollyAPI is the SynthesizeSpeech surface, narrowed so tests can fake it.
type pollyAPI interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
	DescribeVoices(ctx context.Context, params *polly.DescribeVoicesInput, optFns ...func(*polly.Options)) (*polly.DescribeVoicesOutput, error)
}

// PollyOptions configures the Amazon Polly synthesizer.
type PollyOptions struct {
	// Region selects the AWS region (default: "us-east-1").
	Region string

	// VoiceID selects the default voice (default: "Joanna").
	VoiceID string

	// Engine is "standard" or "neural" (default: "neural").
	Engine string

	// LanguageCode filters DescribeVoices (default: "en-US").
	LanguageCode string

	// Client overrides the SDK client, for tests.
	Client pollyAPI
}

// Polly renders speech with Amazon Polly. Output is requested as raw PCM
// at the capture rate, so clips need no resampling downstream.
type Polly struct {
	opts PollyOptions

	mu     sync.Mutex
	client pollyAPI
}

// NewPolly creates a Polly synthesizer. The AWS client is resolved lazily
// so construction never touches the network.
func NewPolly(opts PollyOptions) *Polly {
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	if opts.VoiceID == "" {
		opts.VoiceID = "Joanna"
	}
	if opts.Engine == "" {
		opts.Engine = "neural"
	}
	if opts.LanguageCode == "" {
		opts.LanguageCode = "en-US"
	}
	return &Polly{opts: opts, client: opts.Client}
}

// Name implements Synthesizer.
func (p *Polly) Name() string { return "polly" }

// Synthesize implements Synthesizer.
func (p *Polly) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (Clip, error) {
	client, err := p.resolveClient(ctx)
	if err != nil {
		return Clip{}, err
	}

	voice := p.opts.VoiceID
	if opts.Voice != "" {
		voice = opts.Voice
	}
	engine := pollytypes.EngineStandard
	if p.opts.Engine == "neural" {
		engine = pollytypes.EngineNeural
	}
	sampleRate := fmt.Sprintf("%d", audio.CaptureProfile.SampleRate)

	out, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatPcm,
		SampleRate:   &sampleRate,
		Text:         &text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(voice),
	})
	if err != nil {
		return Clip{}, classifyPollyError(err)
	}
	if out == nil || out.AudioStream == nil {
		return Clip{}, errors.New("tts: polly returned no audio")
	}
	defer out.AudioStream.Close()

	pcm, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return Clip{}, fmt.Errorf("tts: read polly audio: %w", err)
	}
	// Polly PCM output is mono s16le at the requested rate.
	return Clip{PCM: pcm, Format: audio.CaptureProfile}, nil
}

// Voices implements Synthesizer via DescribeVoices.
func (p *Polly) Voices(ctx context.Context) ([]Voice, error) {
	client, err := p.resolveClient(ctx)
	if err != nil {
		return nil, err
	}
	lang := pollytypes.LanguageCode(p.opts.LanguageCode)
	out, err := client.DescribeVoices(ctx, &polly.DescribeVoicesInput{LanguageCode: lang})
	if err != nil {
		return nil, classifyPollyError(err)
	}
	voices := make([]Voice, 0, len(out.Voices))
	for _, v := range out.Voices {
		name := ""
		if v.Name != nil {
			name = *v.Name
		}
		voices = append(voices, Voice{
			ID:       string(v.Id),
			Name:     name,
			Language: string(v.LanguageCode),
			Gender:   string(v.Gender),
		})
	}
	return voices, nil
}

// Ready implements Synthesizer. A successful DescribeVoices proves both
// credentials and connectivity.
func (p *Polly) Ready(ctx context.Context) error {
	_, err := p.Voices(ctx)
	return err
}

func (p *Polly) resolveClient(ctx context.Context) (pollyAPI, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.opts.Region))
	if err != nil {
		return nil, fmt.Errorf("tts: load aws config: %w", err)
	}
	p.client = polly.NewFromConfig(cfg)
	return p.client, nil
}

func classifyPollyError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if apiErr.ErrorCode() == "TooManyRequestsException" {
			return fmt.Errorf("%w: %s", ErrPollyThrottled, apiErr.ErrorMessage())
		}
		return fmt.Errorf("tts: polly %s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return fmt.Errorf("tts: polly: %w", err)
}
