package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Tier identifies the subscription tier driving the daily usage cap.
type Tier string

const (
	TierRestricted   Tier = "restricted"
	TierUnrestricted Tier = "unrestricted"
)

const defaultSystemInstruction = "You are June, a warm, empathetic and curious journaling companion. " +
	"Ask open, concise questions that help the user reflect on their day. " +
	"Keep your answers brief so the user does most of the talking. Tone: serene, intimate, caring."

// Config holds all configuration for the voice journaling service.
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// User identity; a single-user local install uses the default
	UserID string `envconfig:"USER_ID" default:"local"`
	Tier   string `envconfig:"TIER" default:"restricted"` // restricted, unrestricted

	// Gemini API configuration
	GeminiAPIKey      string `envconfig:"GEMINI_API_KEY" required:"true"`
	LiveModel         string `envconfig:"LIVE_MODEL" default:"models/gemini-2.5-flash-native-audio-preview-09-2025"`
	AnalysisModel     string `envconfig:"ANALYSIS_MODEL" default:"gemini-2.0-flash"`
	VoiceName         string `envconfig:"VOICE_NAME" default:"Puck"`
	SystemInstruction string `envconfig:"SYSTEM_INSTRUCTION" default:""`

	// Session behavior
	VoiceOutputEnabled bool `envconfig:"VOICE_OUTPUT_ENABLED" default:"true"` // false = transcript-only mode
	GatingDelaySeconds int  `envconfig:"GATING_DELAY_SECONDS" default:"10"`   // restricted-tier pre-roll
	MinTranscriptChars int  `envconfig:"MIN_TRANSCRIPT_CHARS" default:"10"`   // below this, analysis is skipped

	// Daily usage caps per tier, in seconds
	DailyCapRestricted   int `envconfig:"DAILY_CAP_RESTRICTED" default:"30"`
	DailyCapUnrestricted int `envconfig:"DAILY_CAP_UNRESTRICTED" default:"1200"`

	// Audio configuration
	InputSampleRate   int `envconfig:"INPUT_SAMPLE_RATE" default:"16000"`  // capture rate the wire expects
	OutputSampleRate  int `envconfig:"OUTPUT_SAMPLE_RATE" default:"24000"` // playback rate of inbound audio
	CaptureBufferSize int `envconfig:"CAPTURE_BUFFER_SIZE" default:"4096"` // samples per outbound chunk

	// Persistence
	LedgerPath string `envconfig:"LEDGER_PATH" default:"jour.db"`

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads configuration from the environment, attempting a .env file
// first if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables.
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	switch Tier(cfg.Tier) {
	case TierRestricted, TierUnrestricted:
	default:
		return nil, fmt.Errorf("invalid TIER %q (want restricted or unrestricted)", cfg.Tier)
	}
	if cfg.SystemInstruction == "" {
		cfg.SystemInstruction = defaultSystemInstruction
	}

	return &cfg, nil
}

// DailyCap returns the daily usage cap in seconds for a tier.
func (c *Config) DailyCap(tier Tier) int {
	if tier == TierUnrestricted {
		return c.DailyCapUnrestricted
	}
	return c.DailyCapRestricted
}
