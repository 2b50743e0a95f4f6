// Package config provides the configuration schema, loader, and provider registry
// for the kotoba practice server.
package config

import (
	"time"

	"github.com/MrWong99/kotoba/pkg/pronunciation"
)

// LogLevel controls log verbosity for the kotoba server.
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

// CacheBackend selects where resolved readings are persisted.
type CacheBackend string

const (
	// CacheMemory keeps readings in an in-process LRU. Nothing survives a
	// restart.
	CacheMemory CacheBackend = "memory"

	// CacheSQLite stores readings in a single database file.
	CacheSQLite CacheBackend = "sqlite"

	// CachePostgres stores readings in a shared table.
	CachePostgres CacheBackend = "postgres"

	// CacheRedis stores readings in a shared key space.
	CacheRedis CacheBackend = "redis"
)

// IsValid reports whether b is a recognised cache backend.
func (b CacheBackend) IsValid() bool {
	switch b {
	case CacheMemory, CacheSQLite, CachePostgres, CacheRedis:
		return true
	}
	return false
}

// Config is the root configuration structure for kotoba.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Providers    ProvidersConfig    `yaml:"providers"`
	Cache        CacheConfig        `yaml:"cache"`
	Retry        RetryConfig        `yaml:"retry"`
	Furigana     FuriganaConfig     `yaml:"furigana"`
	Scoring      ScoringConfig      `yaml:"scoring"`
	Conversation ConversationConfig `yaml:"conversation"`
}

// ServerConfig holds network and logging settings for the kotoba server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// MaxUploadBytes caps the size of recorded audio accepted by the
	// pronunciation check endpoint. Default: 10 MiB.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which backend implementation to use for each
// external service. Each entry selects a named factory registered in the
// [Registry]. Fallback entries are tried in order when the primary fails or
// its circuit breaker is open.
type ProvidersConfig struct {
	Dictionary          ProviderEntry   `yaml:"dictionary"`
	DictionaryFallbacks []ProviderEntry `yaml:"dictionary_fallbacks"`
	STT                 ProviderEntry   `yaml:"stt"`
	STTFallbacks        []ProviderEntry `yaml:"stt_fallbacks"`
	LLM                 ProviderEntry   `yaml:"llm"`
	LLMFallbacks        []ProviderEntry `yaml:"llm_fallbacks"`
	TTS                 ProviderEntry   `yaml:"tts"`
	TTSFallbacks        []ProviderEntry `yaml:"tts_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "jisho", "whisper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini",
	// "whisper-1").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// CacheConfig selects and configures the reading cache.
type CacheConfig struct {
	// Backend is one of memory, sqlite, postgres, redis. Default: memory.
	Backend CacheBackend `yaml:"backend"`

	// DSN locates the backing store: a file path for sqlite, a connection
	// string for postgres, a redis:// URL for redis. Ignored for memory.
	DSN string `yaml:"dsn"`

	// LRUSize is the number of entries kept in the in-process front cache.
	// For the memory backend it is the whole cache. Zero disables the front
	// cache for persistent backends. Default for memory: 4096.
	LRUSize int `yaml:"lru_size"`

	// KeyPrefix namespaces keys in the redis backend.
	KeyPrefix string `yaml:"key_prefix"`
}

// RetryConfig tunes the retry decorators and circuit breakers wrapped around
// every external backend. Zero values take the resilience defaults.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig tunes the per-backend breakers of fallback chains.
type CircuitBreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// FuriganaConfig tunes the annotator.
type FuriganaConfig struct {
	// MaxConcurrentLookups bounds parallel dictionary lookups per text.
	MaxConcurrentLookups int `yaml:"max_concurrent_lookups"`

	// CacheSentences stores fully annotated texts under the whole text.
	CacheSentences bool `yaml:"cache_sentences"`
}

// ScoringConfig tunes the pronunciation scorer. Hot-reloadable.
type ScoringConfig struct {
	// Forgiveness multiplies the raw similarity. Default: 1.1.
	Forgiveness float64 `yaml:"forgiveness"`

	// LengthTolerance is the largest length difference, in characters, not
	// reported as a missing or extra sound. Default: 2.
	LengthTolerance int `yaml:"length_tolerance"`

	// Markers replaces the default grammar marker battery when non-empty.
	Markers []pronunciation.Marker `yaml:"markers"`
}

// ConversationConfig tunes the LLM conversation partner.
type ConversationConfig struct {
	// SystemPrompt replaces the built-in tutor persona when set.
	SystemPrompt string `yaml:"system_prompt"`

	// Level is the learner's level, e.g. "JLPT N5". It is woven into the
	// built-in persona.
	Level string `yaml:"level"`

	// Temperature is the sampling temperature. Default: 0.7.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps the length of a reply. Default: 300.
	MaxTokens int `yaml:"max_tokens"`

	// MaxHistory is the number of most recent turns forwarded to the model.
	// Default: 20.
	MaxHistory int `yaml:"max_history"`

	// MaxPromptTokens drops the oldest turns until the estimated prompt fits.
	// Zero disables the budget.
	MaxPromptTokens int `yaml:"max_prompt_tokens"`

	// VoiceID is the default voice for model audio.
	VoiceID string `yaml:"voice_id"`
}
