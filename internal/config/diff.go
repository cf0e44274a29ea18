package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be applied without a restart are tracked; provider,
// server, and history changes require a restart and are intentionally absent.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SessionChanged marks a change in the session tunables. Sessions created
	// after the reload pick the new values up; live sessions keep the tuning
	// they started with.
	SessionChanged bool

	// AudioChanged marks a change in the segmenter tuning, also applied to
	// new sessions only.
	AudioChanged bool
}

// Any reports whether the diff contains at least one tracked change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.SessionChanged || d.AudioChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Session != new.Session {
		d.SessionChanged = true
	}

	if !audioEqual(old.Audio, new.Audio) {
		d.AudioChanged = true
	}

	return d
}

// audioEqual compares two audio configs by effective value, so switching
// between nil and an explicit default aggressiveness is not a change.
func audioEqual(a, b AudioConfig) bool {
	return a.SampleRate == b.SampleRate &&
		a.FrameMs == b.FrameMs &&
		a.SilenceMs == b.SilenceMs &&
		a.MinSpeechMs == b.MinSpeechMs &&
		a.Aggressiveness() == b.Aggressiveness()
}
