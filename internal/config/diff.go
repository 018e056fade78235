package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	MasteryThresholdChanged bool
	NewMasteryThreshold     int

	// RestartRequired lists settings that changed but only take effect
	// after a restart.
	RestartRequired []string
}

// Changed reports whether d carries anything to apply or report.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.MasteryThresholdChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Scoring.MasteryThreshold != new.Scoring.MasteryThreshold {
		d.MasteryThresholdChanged = true
		d.NewMasteryThreshold = new.Scoring.MasteryThreshold
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Database != new.Database {
		d.RestartRequired = append(d.RestartRequired, "database")
	}
	if old.Scoring.TargetWPM != new.Scoring.TargetWPM {
		d.RestartRequired = append(d.RestartRequired, "scoring.target_wpm")
	}

	return d
}
