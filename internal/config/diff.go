package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only log level and scoring are applied live; every other change is listed
// in RestartRequired so the operator can be told.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	ScoringChanged bool
	NewScoring     ScoringConfig

	// RestartRequired names the top-level sections that changed but are
	// only read at startup (e.g. "providers", "cache").
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.ScoringChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Scoring
	if !scoringEqual(old.Scoring, new.Scoring) {
		d.ScoringChanged = true
		d.NewScoring = new.Scoring
	}

	// Startup-only sections. The log level is masked out of the server
	// comparison since it is handled above.
	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	if !reflect.DeepEqual(oldServer, newServer) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Cache != new.Cache {
		d.RestartRequired = append(d.RestartRequired, "cache")
	}
	if old.Retry != new.Retry {
		d.RestartRequired = append(d.RestartRequired, "retry")
	}
	if old.Furigana != new.Furigana {
		d.RestartRequired = append(d.RestartRequired, "furigana")
	}
	if old.Conversation != new.Conversation {
		d.RestartRequired = append(d.RestartRequired, "conversation")
	}

	return d
}

func scoringEqual(a, b ScoringConfig) bool {
	return a.Forgiveness == b.Forgiveness &&
		a.LengthTolerance == b.LengthTolerance &&
		slices.Equal(a.Markers, b.Markers)
}
