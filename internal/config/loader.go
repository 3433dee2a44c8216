package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

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
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
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

	// Decoder beams: a beam width of 0 disables pruning entirely (every
	// active pnode survives), which is a legal but suspicious configuration.
	if cfg.Decoder.Beam == 0 {
		slog.Warn("decoder.beam is 0; HMM-level pruning is effectively disabled")
	}
	if cfg.Decoder.MaxHMMPerFrame == 0 {
		errs = append(errs, fmt.Errorf("decoder.maxhmmpf must be -1 (disabled) or a positive cap, got 0"))
	}
	if cfg.Decoder.LW < 0 {
		errs = append(errs, fmt.Errorf("decoder.lw must be non-negative, got %f", cfg.Decoder.LW))
	}
	if cfg.Decoder.AScale <= 0 {
		slog.Warn("decoder.ascale is not set; posteriors will not be meaningfully scaled")
	}
	if cfg.Decoder.FSGPath != "" {
		if _, err := os.Stat(cfg.Decoder.FSGPath); err != nil {
			errs = append(errs, fmt.Errorf("decoder.fsg %q: %w", cfg.Decoder.FSGPath, err))
		}
	}

	// Grammar
	seenGrammarFiles := make(map[string]int, len(cfg.Grammar.Files))
	for i, path := range cfg.Grammar.Files {
		if prev, ok := seenGrammarFiles[path]; ok {
			errs = append(errs, fmt.Errorf("grammar.files[%d] %q is a duplicate of grammar.files[%d]", i, path, prev))
		}
		seenGrammarFiles[path] = i
	}
	if cfg.Grammar.DictPath == "" {
		errs = append(errs, fmt.Errorf("grammar.dict is required"))
	}
	if cfg.Grammar.PhonePath == "" {
		errs = append(errs, fmt.Errorf("grammar.phones is required"))
	}

	// Store
	if cfg.Store.PostgresDSN == "" {
		slog.Warn("store.postgres_dsn is empty; finished utterances will not be persisted")
	}

	// Stream
	if cfg.Stream.ListenAddr == "" {
		errs = append(errs, fmt.Errorf("stream.listen_addr is required"))
	}

	return errors.Join(errs...)
}
