// Command hotpin-server runs the voice gateway: WebSocket sessions in,
// transcribed and answered speech out.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/VighneshNilajakar/HOTPIN/internal/dotenv"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/providers"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/providers/gemini"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/providers/groq"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/voice/stt"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/voice/tts"
	"github.com/VighneshNilajakar/HOTPIN/pkg/gateway/config"
	"github.com/VighneshNilajakar/HOTPIN/pkg/gateway/imagestore"
	gatewayserver "github.com/VighneshNilajakar/HOTPIN/pkg/gateway/server"
)

func buildTranscriber(cfg config.Config) (stt.Transcriber, error) {
	switch cfg.STTBackend {
	case config.STTWhisper:
		return stt.NewWhisper(stt.WhisperOptions{
			BaseURL:     cfg.WhisperBaseURL,
			Language:    cfg.WhisperLanguage,
			Temperature: cfg.WhisperTemperature,
		}), nil
	default:
		return nil, fmt.Errorf("unknown stt backend %q", cfg.STTBackend)
	}
}

func buildSynthesizer(cfg config.Config) (tts.Synthesizer, error) {
	switch cfg.TTSBackend {
	case config.TTSPiper:
		return tts.NewPiper(tts.PiperOptions{BaseURL: cfg.PiperBaseURL}), nil
	case config.TTSPolly:
		return tts.NewPolly(tts.PollyOptions{
			VoiceID: cfg.PollyVoice,
			Engine:  cfg.PollyEngine,
		}), nil
	default:
		return nil, fmt.Errorf("unknown tts backend %q", cfg.TTSBackend)
	}
}

func buildCompleter(cfg config.Config) (providers.Completer, error) {
	switch cfg.LLMBackend {
	case config.LLMGroq:
		return groq.New(cfg.GroqAPIKey, groq.Options{
			BaseURL: cfg.GroqBaseURL,
			Model:   cfg.GroqModel,
		}), nil
	case config.LLMGemini:
		return gemini.New(cfg.GeminiAPIKey, gemini.Options{
			Model: cfg.GeminiModel,
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.LLMBackend)
	}
}

// buildImageStore picks the backend from the DSN: empty means in-memory,
// a postgres URL means pgx, anything else is a directory path.
func buildImageStore(ctx context.Context, cfg config.Config) (imagestore.Store, error) {
	switch {
	case cfg.ImageStoreDSN == "":
		return imagestore.NewMemory(cfg.ImageTTL), nil
	case strings.HasPrefix(cfg.ImageStoreDSN, "postgres://"),
		strings.HasPrefix(cfg.ImageStoreDSN, "postgresql://"):
		return imagestore.NewPostgres(ctx, cfg.ImageStoreDSN, cfg.ImageTTL)
	default:
		return imagestore.NewFilesystem(cfg.ImageStoreDSN, cfg.ImageTTL)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	transcriber, err := buildTranscriber(cfg)
	if err != nil {
		return err
	}
	synthesizer, err := buildSynthesizer(cfg)
	if err != nil {
		return err
	}
	completer, err := buildCompleter(cfg)
	if err != nil {
		return err
	}
	images, err := buildImageStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer images.Close()

	gw := gatewayserver.New(cfg, logger, gatewayserver.Dependencies{
		Transcriber: transcriber,
		Completer:   completer,
		Synthesizer: synthesizer,
		Images:      images,
	})
	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	logger.Info("starting gateway",
		"addr", cfg.Addr,
		"stt", transcriber.Name(),
		"tts", synthesizer.Name(),
		"llm", completer.Name(),
	)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	gw.StartDraining()
	gw.Registry().NotifyAll("Server is shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()

	// Give live sessions the grace period to finish their utterance, then
	// cut them off.
	if !gw.Registry().Wait(shutdownCtx) {
		gw.Registry().CancelAll()
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := gw.Pool().Drain(shutdownCtx); err != nil {
		logger.Warn("worker pool drain incomplete", "error", err)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	logger.Info("gateway stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.Load(); err != nil {
		fmt.Fprintf(stderr, "hotpin-server: %v\n", err)
		return 1
	}
	if err := run(ctx, logger); err != nil {
		fmt.Fprintf(stderr, "hotpin-server: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr))
}
