// Package config provides the configuration schema, loader, and provider
// registry for the Parley voice agent.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a [time.Duration] that unmarshals from YAML strings like
// "1.5s" or "250ms". Plain integers are read as nanoseconds, matching
// time.Duration's underlying representation.
type Duration time.Duration

// Duration converts d to the standard library type.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// String returns the standard duration formatting.
func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value %q", value.Value)
	}
	*d = Duration(n)
	return nil
}

// LogLevel controls log verbosity for the Parley process.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Parley.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Providers ProvidersConfig `yaml:"providers"`
	Agent     AgentConfig     `yaml:"agent"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP capture surface listens on
	// (e.g., ":8080"). Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig holds capture and endpointing parameters. Zero values fall
// back to the endpoint package defaults (16 kHz, 1024-sample blocks,
// threshold 1000, 1.5 s of silence).
type AudioConfig struct {
	// SampleRate is the capture rate in Hz.
	SampleRate int `yaml:"sample_rate"`

	// BlockSize is the number of samples per capture block.
	BlockSize int `yaml:"block_size"`

	// EnergyThreshold is the L2-norm level at or above which a block counts
	// as speech.
	EnergyThreshold float64 `yaml:"energy_threshold"`

	// SilenceDuration is how much continuous sub-threshold audio ends an
	// utterance.
	SilenceDuration Duration `yaml:"silence_duration"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each entry selects a named provider registered in the
// [Registry]; Fallbacks name providers tried when the primary fails.
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "openai", "whisper-native", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// Prefer supplying keys via environment variables; this field exists
	// for development setups.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "gpt-4o-mini", "whisper-1").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above (e.g., "model_path" for whisper-native).
	Options map[string]any `yaml:"options"`

	// Fallbacks lists providers tried, in order, when this one fails.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// StringOption returns the named entry from Options as a string, or the
// empty string when absent or not a string.
func (e ProviderEntry) StringOption(key string) string {
	if v, ok := e.Options[key].(string); ok {
		return v
	}
	return ""
}

// AgentConfig describes the conversational behaviour of the agent.
type AgentConfig struct {
	// Persona is the system prompt sent with every reply request. Empty
	// uses the built-in default persona.
	Persona string `yaml:"persona"`

	// Language is the ISO 639-1 transcription language hint. Empty lets
	// the transcription provider auto-detect.
	Language string `yaml:"language"`

	// Voice configures the synthesis voice.
	Voice VoiceConfig `yaml:"voice"`

	// StageTimeout bounds each pipeline stage. Zero uses the default (30s).
	StageTimeout Duration `yaml:"stage_timeout"`

	// Commands enables the spoken command filter ("clear conversation",
	// "goodbye"). Defaults to true; set false to treat everything as speech.
	Commands *bool `yaml:"commands"`
}

// CommandsEnabled reports whether the spoken command filter is active.
func (a AgentConfig) CommandsEnabled() bool {
	return a.Commands == nil || *a.Commands
}

// VoiceConfig specifies the synthesis voice parameters.
type VoiceConfig struct {
	// VoiceID is the provider-specific voice identifier (e.g., "onyx").
	VoiceID string `yaml:"voice_id"`

	// Instructions is free-text delivery guidance for providers that
	// support it (accent, tone, pacing).
	Instructions string `yaml:"instructions"`

	// SpeedFactor adjusts speaking rate in the range [0.5, 2.0]. 0 means
	// provider default.
	SpeedFactor float64 `yaml:"speed_factor"`
}
