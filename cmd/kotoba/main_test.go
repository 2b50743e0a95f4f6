package main

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/kotoba/internal/config"
)

func TestOptDuration(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		opts    map[string]any
		want    time.Duration
		wantErr bool
	}{
		{"absent", nil, 0, false},
		{"valid", map[string]any{"min_interval": "250ms"}, 250 * time.Millisecond, false},
		{"not a string", map[string]any{"min_interval": 5}, 0, false},
		{"invalid", map[string]any{"min_interval": "soon"}, 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := optDuration(tc.opts, "min_interval")
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestRegisterBuiltinProviders(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg, nil)

	for kind, names := range config.ValidProviderNames {
		registered := reg.Names(kind)
		for _, n := range names {
			if !slices.Contains(registered, n) {
				t.Errorf("%s provider %q is accepted by config but not registered", kind, n)
			}
		}
	}
}

func TestRegisterBuiltinProviders_JMdictNeedsPath(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg, nil)
	if _, err := reg.CreateDictionary(config.ProviderEntry{Name: "jmdict"}); err == nil {
		t.Fatal("expected error without options.path")
	}
}
