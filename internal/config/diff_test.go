package config_test

import (
	"testing"

	"github.com/fsgdecoder/core/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server:  config.ServerConfig{LogLevel: config.LogInfo},
		Decoder: config.DecoderConfig{Beam: -1000},
		Grammar: config.GrammarConfig{Files: []string{"a.fsg"}, Default: "a"},
	}
	d := config.Diff(cfg, cfg)
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false for identical configs")
	}
	if d.BeamsChanged {
		t.Error("expected BeamsChanged=false for identical configs")
	}
	if d.GrammarFilesChanged {
		t.Error("expected GrammarFilesChanged=false for identical configs")
	}
	if d.DefaultGrammarChanged {
		t.Error("expected DefaultGrammarChanged=false for identical configs")
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
}

func TestDiff_BeamsChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Decoder: config.DecoderConfig{Beam: -1000, PBeam: -500, WBeam: -700}}
	new := &config.Config{Decoder: config.DecoderConfig{Beam: -2000, PBeam: -500, WBeam: -700}}

	d := config.Diff(old, new)
	if !d.BeamsChanged {
		t.Error("expected BeamsChanged=true")
	}
}

func TestDiff_GrammarFilesChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Grammar: config.GrammarConfig{Files: []string{"a.fsg"}}}
	new := &config.Config{Grammar: config.GrammarConfig{Files: []string{"a.fsg", "b.fsg"}}}

	d := config.Diff(old, new)
	if !d.GrammarFilesChanged {
		t.Error("expected GrammarFilesChanged=true")
	}
}

func TestDiff_DefaultGrammarChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Grammar: config.GrammarConfig{Default: "greeting"}}
	new := &config.Config{Grammar: config.GrammarConfig{Default: "farewell"}}

	d := config.Diff(old, new)
	if !d.DefaultGrammarChanged {
		t.Error("expected DefaultGrammarChanged=true")
	}
	if d.NewDefaultGrammar != "farewell" {
		t.Errorf("expected NewDefaultGrammar=farewell, got %q", d.NewDefaultGrammar)
	}
}

func TestDiff_MultipleChanges(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Server:  config.ServerConfig{LogLevel: config.LogInfo},
		Decoder: config.DecoderConfig{Beam: -1000},
		Grammar: config.GrammarConfig{Default: "greeting"},
	}
	new := &config.Config{
		Server:  config.ServerConfig{LogLevel: config.LogWarn},
		Decoder: config.DecoderConfig{Beam: -2000},
		Grammar: config.GrammarConfig{Default: "farewell"},
	}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if !d.BeamsChanged {
		t.Error("expected BeamsChanged=true")
	}
	if !d.DefaultGrammarChanged {
		t.Error("expected DefaultGrammarChanged=true")
	}
}
