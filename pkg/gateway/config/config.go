// Package config assembles the gateway configuration from three layers:
// built-in defaults, an optional YAML file, and HOTPIN_* environment
// variables. Later layers win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type STTBackend string

const (
	STTWhisper STTBackend = "whisper"
)

type TTSBackend string

const (
	TTSPiper TTSBackend = "piper"
	TTSPolly TTSBackend = "polly"
)

type LLMBackend string

const (
	LLMGroq   LLMBackend = "groq"
	LLMGemini LLMBackend = "gemini"
)

type Config struct {
	Addr string

	// Allowed WebSocket origins. Empty disables the origin check, which
	// is the right default for device clients that send no Origin header.
	AllowedOrigins map[string]struct{}

	STTBackend         STTBackend
	WhisperBaseURL     string
	WhisperLanguage    string
	WhisperTemperature float64

	TTSBackend   TTSBackend
	PiperBaseURL string
	PollyVoice   string
	PollyEngine  string
	Voice        string
	SpeechSpeed  float64

	LLMBackend   LLMBackend
	GroqAPIKey   string
	GroqBaseURL  string
	GroqModel    string
	GeminiAPIKey string
	GeminiModel  string
	SystemPrompt string

	// Per-session protocol tuning.
	ChunkSize         int
	MaxUtteranceBytes int
	CompletionTimeout time.Duration
	MaxTurns          int
	OutboundQueueSize int
	WSPingInterval    time.Duration
	WSWriteTimeout    time.Duration
	WSReadTimeout     time.Duration

	// CPU-bound stage pool.
	PoolWorkers    int
	PoolQueue      int
	PoolPerSession int

	// Image store. Empty DSN selects the in-memory store.
	ImageStoreDSN string
	ImageTTL      time.Duration

	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

// fileConfig is the YAML shape. Only scalar knobs are file-configurable;
// secrets stay in the environment.
type fileConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	STT struct {
		Backend     string  `yaml:"backend"`
		BaseURL     string  `yaml:"base_url"`
		Language    string  `yaml:"language"`
		Temperature float64 `yaml:"temperature"`
	} `yaml:"stt"`

	TTS struct {
		Backend     string  `yaml:"backend"`
		BaseURL     string  `yaml:"base_url"`
		PollyVoice  string  `yaml:"polly_voice"`
		PollyEngine string  `yaml:"polly_engine"`
		Voice       string  `yaml:"voice"`
		Speed       float64 `yaml:"speed"`
	} `yaml:"tts"`

	LLM struct {
		Backend      string `yaml:"backend"`
		GroqBaseURL  string `yaml:"groq_base_url"`
		GroqModel    string `yaml:"groq_model"`
		GeminiModel  string `yaml:"gemini_model"`
		SystemPrompt string `yaml:"system_prompt"`
	} `yaml:"llm"`

	Session struct {
		ChunkSize         int           `yaml:"chunk_size"`
		MaxUtteranceBytes int           `yaml:"max_utterance_bytes"`
		CompletionTimeout time.Duration `yaml:"completion_timeout"`
		MaxTurns          int           `yaml:"max_turns"`
	} `yaml:"session"`

	Pool struct {
		Workers    int `yaml:"workers"`
		Queue      int `yaml:"queue"`
		PerSession int `yaml:"per_session"`
	} `yaml:"pool"`

	Images struct {
		DSN string        `yaml:"dsn"`
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"images"`
}

func defaults() Config {
	return Config{
		Addr:                ":8000",
		AllowedOrigins:      make(map[string]struct{}),
		STTBackend:          STTWhisper,
		WhisperBaseURL:      "http://localhost:8178",
		WhisperLanguage:     "en",
		WhisperTemperature:  0.0,
		TTSBackend:          TTSPiper,
		PiperBaseURL:        "http://localhost:5000",
		PollyVoice:          "Joanna",
		PollyEngine:         "neural",
		SpeechSpeed:         1.0,
		LLMBackend:          LLMGroq,
		ChunkSize:           4096,
		MaxUtteranceBytes:   10 << 20,
		CompletionTimeout:   30 * time.Second,
		MaxTurns:            10,
		OutboundQueueSize:   128,
		WSPingInterval:      20 * time.Second,
		WSWriteTimeout:      5 * time.Second,
		WSReadTimeout:       0,
		PoolWorkers:         4,
		PoolQueue:           64,
		PoolPerSession:      2,
		ImageTTL:            2 * time.Minute,
		ReadHeaderTimeout:   10 * time.Second,
		ShutdownGracePeriod: 30 * time.Second,
	}
}

// Load builds the effective configuration. The optional file path comes
// from HOTPIN_CONFIG_FILE.
func Load() (Config, error) {
	def := defaults()
	if path := strings.TrimSpace(os.Getenv("HOTPIN_CONFIG_FILE")); path != "" {
		if err := applyFile(&def, path); err != nil {
			return Config{}, err
		}
	}
	return fromEnv(def)
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	var fc fileConfig
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}

	setStr := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	setStr(&cfg.Addr, fc.Addr)
	for _, origin := range fc.AllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins[origin] = struct{}{}
		}
	}

	if fc.STT.Backend != "" {
		cfg.STTBackend = STTBackend(fc.STT.Backend)
	}
	setStr(&cfg.WhisperBaseURL, fc.STT.BaseURL)
	setStr(&cfg.WhisperLanguage, fc.STT.Language)
	if fc.STT.Temperature != 0 {
		cfg.WhisperTemperature = fc.STT.Temperature
	}

	if fc.TTS.Backend != "" {
		cfg.TTSBackend = TTSBackend(fc.TTS.Backend)
	}
	setStr(&cfg.PiperBaseURL, fc.TTS.BaseURL)
	setStr(&cfg.PollyVoice, fc.TTS.PollyVoice)
	setStr(&cfg.PollyEngine, fc.TTS.PollyEngine)
	setStr(&cfg.Voice, fc.TTS.Voice)
	if fc.TTS.Speed != 0 {
		cfg.SpeechSpeed = fc.TTS.Speed
	}

	if fc.LLM.Backend != "" {
		cfg.LLMBackend = LLMBackend(fc.LLM.Backend)
	}
	setStr(&cfg.GroqBaseURL, fc.LLM.GroqBaseURL)
	setStr(&cfg.GroqModel, fc.LLM.GroqModel)
	setStr(&cfg.GeminiModel, fc.LLM.GeminiModel)
	setStr(&cfg.SystemPrompt, fc.LLM.SystemPrompt)

	if fc.Session.ChunkSize != 0 {
		cfg.ChunkSize = fc.Session.ChunkSize
	}
	if fc.Session.MaxUtteranceBytes != 0 {
		cfg.MaxUtteranceBytes = fc.Session.MaxUtteranceBytes
	}
	if fc.Session.CompletionTimeout != 0 {
		cfg.CompletionTimeout = fc.Session.CompletionTimeout
	}
	if fc.Session.MaxTurns != 0 {
		cfg.MaxTurns = fc.Session.MaxTurns
	}
	if fc.Pool.Workers != 0 {
		cfg.PoolWorkers = fc.Pool.Workers
	}
	if fc.Pool.Queue != 0 {
		cfg.PoolQueue = fc.Pool.Queue
	}
	if fc.Pool.PerSession != 0 {
		cfg.PoolPerSession = fc.Pool.PerSession
	}
	setStr(&cfg.ImageStoreDSN, fc.Images.DSN)
	if fc.Images.TTL != 0 {
		cfg.ImageTTL = fc.Images.TTL
	}
	return nil
}

func fromEnv(def Config) (Config, error) {
	cfg := def
	cfg.Addr = envOr("HOTPIN_ADDR", def.Addr)
	cfg.STTBackend = STTBackend(envOr("HOTPIN_STT_BACKEND", string(def.STTBackend)))
	cfg.WhisperBaseURL = envOr("HOTPIN_WHISPER_URL", def.WhisperBaseURL)
	cfg.WhisperLanguage = envOr("HOTPIN_WHISPER_LANGUAGE", def.WhisperLanguage)
	cfg.WhisperTemperature = envFloat64Or("HOTPIN_WHISPER_TEMPERATURE", def.WhisperTemperature)
	cfg.TTSBackend = TTSBackend(envOr("HOTPIN_TTS_BACKEND", string(def.TTSBackend)))
	cfg.PiperBaseURL = envOr("HOTPIN_PIPER_URL", def.PiperBaseURL)
	cfg.PollyVoice = envOr("HOTPIN_POLLY_VOICE", def.PollyVoice)
	cfg.PollyEngine = envOr("HOTPIN_POLLY_ENGINE", def.PollyEngine)
	cfg.Voice = envOr("HOTPIN_VOICE", def.Voice)
	cfg.SpeechSpeed = envFloat64Or("HOTPIN_SPEECH_SPEED", def.SpeechSpeed)
	cfg.LLMBackend = LLMBackend(envOr("HOTPIN_LLM_BACKEND", string(def.LLMBackend)))
	cfg.GroqAPIKey = envOr("GROQ_API_KEY", def.GroqAPIKey)
	cfg.GroqBaseURL = envOr("HOTPIN_GROQ_URL", def.GroqBaseURL)
	cfg.GroqModel = envOr("HOTPIN_GROQ_MODEL", def.GroqModel)
	cfg.GeminiAPIKey = envOr("GEMINI_API_KEY", def.GeminiAPIKey)
	cfg.GeminiModel = envOr("HOTPIN_GEMINI_MODEL", def.GeminiModel)
	cfg.SystemPrompt = envOr("HOTPIN_SYSTEM_PROMPT", def.SystemPrompt)
	cfg.ChunkSize = envIntOr("HOTPIN_CHUNK_SIZE", def.ChunkSize)
	cfg.MaxUtteranceBytes = envIntOr("HOTPIN_MAX_UTTERANCE_BYTES", def.MaxUtteranceBytes)
	cfg.CompletionTimeout = envDurationOr("HOTPIN_COMPLETION_TIMEOUT", def.CompletionTimeout)
	cfg.MaxTurns = envIntOr("HOTPIN_MAX_TURNS", def.MaxTurns)
	cfg.OutboundQueueSize = envIntOr("HOTPIN_OUTBOUND_QUEUE", def.OutboundQueueSize)
	cfg.WSPingInterval = envDurationOr("HOTPIN_WS_PING_INTERVAL", def.WSPingInterval)
	cfg.WSWriteTimeout = envDurationOr("HOTPIN_WS_WRITE_TIMEOUT", def.WSWriteTimeout)
	cfg.WSReadTimeout = envDurationOr("HOTPIN_WS_READ_TIMEOUT", def.WSReadTimeout)
	cfg.PoolWorkers = envIntOr("HOTPIN_POOL_WORKERS", def.PoolWorkers)
	cfg.PoolQueue = envIntOr("HOTPIN_POOL_QUEUE", def.PoolQueue)
	cfg.PoolPerSession = envIntOr("HOTPIN_POOL_PER_SESSION", def.PoolPerSession)
	cfg.ImageStoreDSN = envOr("HOTPIN_IMAGE_STORE_DSN", def.ImageStoreDSN)
	cfg.ImageTTL = envDurationOr("HOTPIN_IMAGE_TTL", def.ImageTTL)
	cfg.ReadHeaderTimeout = envDurationOr("HOTPIN_READ_HEADER_TIMEOUT", def.ReadHeaderTimeout)
	cfg.ShutdownGracePeriod = envDurationOr("HOTPIN_SHUTDOWN_GRACE_PERIOD", def.ShutdownGracePeriod)

	for _, origin := range splitCSV(os.Getenv("HOTPIN_ALLOWED_ORIGINS")) {
		cfg.AllowedOrigins[origin] = struct{}{}
	}

	switch cfg.STTBackend {
	case STTWhisper:
	default:
		return Config{}, fmt.Errorf("HOTPIN_STT_BACKEND must be whisper")
	}
	switch cfg.TTSBackend {
	case TTSPiper, TTSPolly:
	default:
		return Config{}, fmt.Errorf("HOTPIN_TTS_BACKEND must be one of piper|polly")
	}
	switch cfg.LLMBackend {
	case LLMGroq, LLMGemini:
	default:
		return Config{}, fmt.Errorf("HOTPIN_LLM_BACKEND must be one of groq|gemini")
	}
	if cfg.LLMBackend == LLMGroq && cfg.GroqAPIKey == "" {
		return Config{}, fmt.Errorf("GROQ_API_KEY must be set when HOTPIN_LLM_BACKEND=groq")
	}
	if cfg.LLMBackend == LLMGemini && cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY must be set when HOTPIN_LLM_BACKEND=gemini")
	}
	if strings.TrimSpace(cfg.WhisperBaseURL) == "" {
		return Config{}, fmt.Errorf("HOTPIN_WHISPER_URL must not be empty")
	}
	if cfg.TTSBackend == TTSPiper && strings.TrimSpace(cfg.PiperBaseURL) == "" {
		return Config{}, fmt.Errorf("HOTPIN_PIPER_URL must not be empty")
	}
	if cfg.ChunkSize <= 0 {
		return Config{}, fmt.Errorf("HOTPIN_CHUNK_SIZE must be > 0")
	}
	if cfg.MaxUtteranceBytes <= 0 {
		return Config{}, fmt.Errorf("HOTPIN_MAX_UTTERANCE_BYTES must be > 0")
	}
	if cfg.CompletionTimeout <= 0 {
		return Config{}, fmt.Errorf("HOTPIN_COMPLETION_TIMEOUT must be > 0")
	}
	if cfg.MaxTurns <= 0 {
		return Config{}, fmt.Errorf("HOTPIN_MAX_TURNS must be > 0")
	}
	if cfg.OutboundQueueSize <= 0 {
		return Config{}, fmt.Errorf("HOTPIN_OUTBOUND_QUEUE must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("HOTPIN_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("HOTPIN_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSReadTimeout < 0 {
		return Config{}, fmt.Errorf("HOTPIN_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.SpeechSpeed <= 0 {
		return Config{}, fmt.Errorf("HOTPIN_SPEECH_SPEED must be > 0")
	}
	if cfg.PoolWorkers <= 0 {
		return Config{}, fmt.Errorf("HOTPIN_POOL_WORKERS must be > 0")
	}
	if cfg.PoolQueue <= 0 {
		return Config{}, fmt.Errorf("HOTPIN_POOL_QUEUE must be > 0")
	}
	if cfg.PoolPerSession < 0 {
		return Config{}, fmt.Errorf("HOTPIN_POOL_PER_SESSION must be >= 0")
	}
	if cfg.ImageTTL <= 0 {
		return Config{}, fmt.Errorf("HOTPIN_IMAGE_TTL must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("HOTPIN_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("HOTPIN_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
