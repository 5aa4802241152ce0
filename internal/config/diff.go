package config

// DiffResult describes what changed between two configs. Only fields that can
// be applied without restarting the process are tracked: the log level takes
// effect immediately, call and video settings apply to the next call.
type DiffResult struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// CallChanged is true when the voice or instructions changed.
	CallChanged bool
	NewCall     CallConfig

	// VideoChanged is true when any camera setting changed.
	VideoChanged bool
	NewVideo     VideoConfig
}

// Any reports whether the diff contains at least one change.
func (d DiffResult) Any() bool {
	return d.LogLevelChanged || d.CallChanged || d.VideoChanged
}

// Diff compares old and new configs and returns what changed. Fields that
// require a restart (endpoint, API key, metrics address) are ignored.
func Diff(old, new *Config) DiffResult {
	d := DiffResult{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Call != new.Call {
		d.CallChanged = true
		d.NewCall = new.Call
	}

	if old.Video != new.Video {
		d.VideoChanged = true
		d.NewVideo = new.Video
	}

	return d
}
