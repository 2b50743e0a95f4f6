package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"dictionary": {"jisho", "jmdict", "kagome"},
	"stt":        {"whisper", "openai"},
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts":        {"elevenlabs"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
// An empty document yields the zero [Config], which is valid.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes %d must not be negative", cfg.Server.MaxUploadBytes))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	errs = append(errs, validateChain("dictionary", cfg.Providers.Dictionary, cfg.Providers.DictionaryFallbacks)...)
	errs = append(errs, validateChain("stt", cfg.Providers.STT, cfg.Providers.STTFallbacks)...)
	errs = append(errs, validateChain("llm", cfg.Providers.LLM, cfg.Providers.LLMFallbacks)...)
	errs = append(errs, validateChain("tts", cfg.Providers.TTS, cfg.Providers.TTSFallbacks)...)

	if cfg.Providers.Dictionary.Name == "" {
		slog.Warn("providers.dictionary is not configured; falling back to the offline kagome analyser")
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; audio pronunciation checks will score empty transcriptions")
	}
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; the conversation partner is disabled")
	}

	// Cache
	if cfg.Cache.Backend != "" && !cfg.Cache.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("cache.backend %q is invalid; valid values: memory, sqlite, postgres, redis", cfg.Cache.Backend))
	}
	switch cfg.Cache.Backend {
	case CacheSQLite, CachePostgres, CacheRedis:
		if cfg.Cache.DSN == "" {
			errs = append(errs, fmt.Errorf("cache.dsn is required when backend is %s", cfg.Cache.Backend))
		}
	}
	if cfg.Cache.LRUSize < 0 {
		errs = append(errs, fmt.Errorf("cache.lru_size %d must not be negative", cfg.Cache.LRUSize))
	}
	if cfg.Cache.KeyPrefix != "" && cfg.Cache.Backend != CacheRedis {
		slog.Warn("cache.key_prefix is only used by the redis backend", "backend", cfg.Cache.Backend)
	}

	// Retry
	r := cfg.Retry
	if r.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("retry.max_attempts %d must not be negative", r.MaxAttempts))
	}
	if r.BaseDelay < 0 || r.MaxDelay < 0 || r.AttemptTimeout < 0 {
		errs = append(errs, errors.New("retry delays and timeouts must not be negative"))
	}
	if r.BaseDelay > 0 && r.MaxDelay > 0 && r.MaxDelay < r.BaseDelay {
		errs = append(errs, fmt.Errorf("retry.max_delay %s is shorter than retry.base_delay %s", r.MaxDelay, r.BaseDelay))
	}
	if cb := r.CircuitBreaker; cb.MaxFailures < 0 || cb.HalfOpenMax < 0 || cb.ResetTimeout < 0 {
		errs = append(errs, errors.New("retry.circuit_breaker values must not be negative"))
	}

	// Furigana
	if cfg.Furigana.MaxConcurrentLookups < 0 {
		errs = append(errs, fmt.Errorf("furigana.max_concurrent_lookups %d must not be negative", cfg.Furigana.MaxConcurrentLookups))
	}

	errs = append(errs, validateScoring(cfg.Scoring)...)

	// Conversation
	if t := cfg.Conversation.Temperature; t < 0 || t > 2 {
		errs = append(errs, fmt.Errorf("conversation.temperature %.2f is out of range [0, 2]", t))
	}
	if cfg.Conversation.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("conversation.max_tokens %d must not be negative", cfg.Conversation.MaxTokens))
	}
	if cfg.Conversation.MaxPromptTokens < 0 {
		errs = append(errs, fmt.Errorf("conversation.max_prompt_tokens %d must not be negative", cfg.Conversation.MaxPromptTokens))
	}
	if cfg.Conversation.MaxHistory < 0 {
		errs = append(errs, fmt.Errorf("conversation.max_history %d must not be negative", cfg.Conversation.MaxHistory))
	}

	return errors.Join(errs...)
}

func validateScoring(s ScoringConfig) []error {
	var errs []error
	if s.Forgiveness != 0 && (s.Forgiveness < 1 || s.Forgiveness > 2) {
		errs = append(errs, fmt.Errorf("scoring.forgiveness %.2f is out of range [1, 2]", s.Forgiveness))
	}
	if s.LengthTolerance < 0 {
		errs = append(errs, fmt.Errorf("scoring.length_tolerance %d must not be negative", s.LengthTolerance))
	}
	seen := make(map[string]int, len(s.Markers))
	for i, m := range s.Markers {
		prefix := fmt.Sprintf("scoring.markers[%d]", i)
		if m.Text == "" {
			errs = append(errs, fmt.Errorf("%s.text is required", prefix))
			continue
		}
		if m.Message == "" {
			errs = append(errs, fmt.Errorf("%s.message is required", prefix))
		}
		if prev, ok := seen[m.Text]; ok {
			errs = append(errs, fmt.Errorf("%s.text %q is a duplicate of scoring.markers[%d]", prefix, m.Text, prev))
		}
		seen[m.Text] = i
	}
	return errs
}

// validateChain checks a primary entry and its fallbacks. Fallbacks without a
// primary are an error; unknown names only warn.
func validateChain(kind string, primary ProviderEntry, fallbacks []ProviderEntry) []error {
	var errs []error
	validateProviderName(kind, primary.Name)
	if primary.Name == "" && len(fallbacks) > 0 {
		errs = append(errs, fmt.Errorf("providers.%s_fallbacks is set but providers.%s is not configured", kind, kind))
	}
	for i, fb := range fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.%s_fallbacks[%d].name is required", kind, i))
			continue
		}
		validateProviderName(kind, fb.Name)
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
