package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	BeamsChanged    bool // beam, pbeam, or wbeam changed
	GrammarFilesChanged bool
	DefaultGrammarChanged bool
	NewDefaultGrammar     string
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restarting the server
// (a running [decoder.Search] instance still needs [decoder.Search.Reinit]
// to pick up beam or grammar changes; Diff only reports that it should).
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Decoder.Beam != new.Decoder.Beam ||
		old.Decoder.PBeam != new.Decoder.PBeam ||
		old.Decoder.WBeam != new.Decoder.WBeam {
		d.BeamsChanged = true
	}

	if !equalStringSlices(old.Grammar.Files, new.Grammar.Files) {
		d.GrammarFilesChanged = true
	}

	if old.Grammar.Default != new.Grammar.Default {
		d.DefaultGrammarChanged = true
		d.NewDefaultGrammar = new.Grammar.Default
	}

	return d
}

func equalStringSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
