package tts

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/stretchr/testify/require"

	"github.com/VighneshNilajakar/HOTPIN/pkg/core/audio"
)

type fakePolly struct {
	synthIn  *polly.SynthesizeSpeechInput
	synthOut *polly.SynthesizeSpeechOutput
	synthErr error

	voicesOut *polly.DescribeVoicesOutput
	voicesErr error
}

func (f *fakePolly) SynthesizeSpeech(_ context.Context, in *polly.SynthesizeSpeechInput, _ ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error) {
	f.synthIn = in
	return f.synthOut, f.synthErr
}

func (f *fakePolly) DescribeVoices(_ context.Context, _ *polly.DescribeVoicesInput, _ ...func(*polly.Options)) (*polly.DescribeVoicesOutput, error) {
	return f.voicesOut, f.voicesErr
}

func TestPolly_Synthesize(t *testing.T) {
	fake := &fakePolly{
		synthOut: &polly.SynthesizeSpeechOutput{
			AudioStream: io.NopCloser(strings.NewReader("\x01\x00\x02\x00")),
		},
	}
	p := NewPolly(PollyOptions{Client: fake})

	clip, err := p.Synthesize(context.Background(), "Hello.", SynthesizeOptions{})
	require.NoError(t, err)
	require.Equal(t, audio.CaptureProfile, clip.Format)
	require.Equal(t, []byte{1, 0, 2, 0}, clip.PCM)

	require.Equal(t, pollytypes.OutputFormatPcm, fake.synthIn.OutputFormat)
	require.Equal(t, "16000", *fake.synthIn.SampleRate)
	require.Equal(t, pollytypes.VoiceId("Joanna"), fake.synthIn.VoiceId)
	require.Equal(t, pollytypes.EngineNeural, fake.synthIn.Engine)
}

func TestPolly_VoiceOverride(t *testing.T) {
	fake := &fakePolly{
		synthOut: &polly.SynthesizeSpeechOutput{AudioStream: io.NopCloser(strings.NewReader(""))},
	}
	p := NewPolly(PollyOptions{Client: fake})

	_, err := p.Synthesize(context.Background(), "Hello.", SynthesizeOptions{Voice: "Matthew"})
	require.NoError(t, err)
	require.Equal(t, pollytypes.VoiceId("Matthew"), fake.synthIn.VoiceId)
}

func TestPolly_Throttled(t *testing.T) {
	fake := &fakePolly{
		synthErr: &pollytypes.TextLengthExceededException{Message: strPtr("too long")},
	}
	p := NewPolly(PollyOptions{Client: fake})
	_, err := p.Synthesize(context.Background(), "Hello.", SynthesizeOptions{})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrPollyThrottled)
}

func TestPolly_Voices(t *testing.T) {
	fake := &fakePolly{
		voicesOut: &polly.DescribeVoicesOutput{
			Voices: []pollytypes.Voice{
				{Id: pollytypes.VoiceIdJoanna, Name: strPtr("Joanna"), LanguageCode: pollytypes.LanguageCodeEnUs, Gender: pollytypes.GenderFemale},
				{Id: pollytypes.VoiceIdMatthew, Name: strPtr("Matthew"), LanguageCode: pollytypes.LanguageCodeEnUs, Gender: pollytypes.GenderMale},
			},
		},
	}
	p := NewPolly(PollyOptions{Client: fake})
	voices, err := p.Voices(context.Background())
	require.NoError(t, err)
	require.Len(t, voices, 2)
	require.Equal(t, "Joanna", voices[0].ID)
	require.Equal(t, "en-US", voices[0].Language)
}

func TestPolly_VoicesError(t *testing.T) {
	fake := &fakePolly{voicesErr: errors.New("no credentials")}
	p := NewPolly(PollyOptions{Client: fake})
	_, err := p.Voices(context.Background())
	require.Error(t, err)
	require.Error(t, p.Ready(context.Background()))
}

func strPtr(s string) *string { return &s }
