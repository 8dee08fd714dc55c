package session

import (
	"context"
	"log/slog"
	"strings"

	"github.com/VighneshNilajakar/HOTPIN/pkg/core/audio"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/convo"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/providers"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/voice"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/voice/stt"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/voice/tts"
	"github.com/VighneshNilajakar/HOTPIN/pkg/gateway/live/protocol"
)

// runPipeline drives transcribe, complete, synthesize for one utterance.
// Every exit path leaves the session ready for the next utterance: the
// buffer was swapped out before this was called, and stage errors turn
// into fixed error notices instead of propagating. gen identifies this
// utterance; once it goes stale no result may reach the wire.
func (s *Session) runPipeline(logger *slog.Logger, gen int64, pcm []byte) {
	s.sendStatus(gen, protocol.ProcessingTranscription())

	transcript, ok := s.transcribeStage(logger, gen, pcm)
	if !ok || s.stale(gen) {
		return
	}

	reply, ok := s.completeStage(logger, gen, transcript)
	if !ok || s.stale(gen) {
		return
	}

	s.setState(StateStreaming)
	if !s.synthesizeStage(logger, gen, reply) {
		return
	}
	if s.stale(gen) {
		return
	}
	s.sendStatus(gen, protocol.Complete())
	logger.Info("utterance pipeline complete")
}

func (s *Session) transcribeStage(logger *slog.Logger, gen int64, pcm []byte) (string, bool) {
	var res stt.Result
	err := s.pool.Do(s.ctx, s.id, func() error {
		var err error
		res, err = s.transcriber.Transcribe(s.ctx, pcm)
		return err
	})
	if err != nil {
		logger.Error("transcription stage failed", "error", err)
		s.sendStatus(gen, protocol.ErrorNotice(protocol.ErrTypeTranscription, msgProcessingFailed))
		return "", false
	}
	transcript := strings.TrimSpace(res.Text)
	if transcript == "" {
		// Silence or noise. Recoverable, not a pipeline fault.
		logger.Info("empty transcription")
		s.sendStatus(gen, protocol.ErrorNotice(protocol.ErrTypeTranscription, msgEmptyTranscript))
		return "", false
	}
	logger.Info("transcription complete", "transcript", transcript, "seconds", res.Duration)
	return transcript, true
}

func (s *Session) completeStage(logger *slog.Logger, gen int64, transcript string) (string, bool) {
	s.contexts.Append(s.id, convo.RoleUser, transcript)
	s.sendStatus(gen, protocol.ProcessingLLM(transcript))

	// The image, if any, rides along with this turn only; history keeps
	// just the text companion.
	var image []byte
	if s.images != nil {
		img, err := s.images.TakePending(s.ctx, s.id)
		if err != nil {
			logger.Warn("pending image lookup failed", "error", err)
		} else {
			image = img
		}
	}

	window := s.contexts.Window(s.id)
	if n := len(window); n > 0 && window[n-1].Role == convo.RoleUser {
		window = window[:n-1]
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.CompletionTimeout)
	defer cancel()
	reply, err := s.completer.Complete(ctx, providers.Request{
		System:    s.cfg.SystemPrompt,
		History:   window,
		UserText:  transcript,
		ImageJPEG: image,
	})
	if err != nil {
		logger.Error("completion stage failed", "error", err)
		s.sendStatus(gen, protocol.ErrorNotice(protocol.ErrTypeCompletion, msgCompletionFailed))
		return "", false
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		reply = fallbackReply
	}
	// A reset may have cleared the context while the completion call was in
	// flight; do not repopulate it with a superseded turn.
	if s.stale(gen) {
		return "", false
	}
	s.contexts.Append(s.id, convo.RoleAssistant, reply)
	logger.Info("completion ready", "chars", len(reply))
	return reply, true
}

// synthesizeStage renders the reply span by span. Each span's framed audio
// is fully queued before the next span starts, so chunk order on the wire
// matches production order.
func (s *Session) synthesizeStage(logger *slog.Logger, gen int64, reply string) bool {
	s.sendStatus(gen, protocol.ProcessingTTS(reply))

	spans := voice.SplitSentences(reply)
	for _, span := range spans {
		var clip tts.Clip
		err := s.pool.Do(s.ctx, s.id, func() error {
			var err error
			clip, err = s.synthesizer.Synthesize(s.ctx, span, tts.SynthesizeOptions{
				Voice: s.cfg.Voice,
				Speed: s.cfg.SpeechSpeed,
			})
			return err
		})
		if err != nil {
			logger.Error("synthesis stage failed", "error", err)
			s.sendStatus(gen, protocol.ErrorNotice(protocol.ErrTypeSynthesis, msgProcessingFailed))
			return false
		}

		norm, err := audio.Normalize(clip.PCM, clip.Format)
		if err != nil {
			logger.Error("synthesis output normalization failed", "error", err, "format", clip.Format)
			s.sendStatus(gen, protocol.ErrorNotice(protocol.ErrTypeSynthesis, msgProcessingFailed))
			return false
		}
		wav, err := audio.EncodeWAV(norm, audio.CaptureProfile)
		if err != nil {
			logger.Error("synthesis output framing failed", "error", err)
			s.sendStatus(gen, protocol.ErrorNotice(protocol.ErrTypeSynthesis, msgProcessingFailed))
			return false
		}
		if s.stale(gen) {
			return false
		}
		for off := 0; off < len(wav); off += s.cfg.ChunkSize {
			end := off + s.cfg.ChunkSize
			if end > len(wav) {
				end = len(wav)
			}
			s.sendBinary(gen, wav[off:end])
		}
		logger.Debug("span streamed", "span_chars", len(span), "wav_bytes", len(wav))
	}
	return true
}
