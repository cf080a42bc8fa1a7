package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only the log level and VAD threshold are applied without a restart; any
// other changed section is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	VADThresholdChanged bool
	NewVADThreshold     float64

	// RestartRequired names the top-level sections (e.g. "providers") that
	// changed but only take effect after a restart.
	RestartRequired []string
}

// Changed reports whether d contains any change.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.VADThresholdChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.VAD.Threshold != new.VAD.Threshold {
		d.VADThresholdChanged = true
		d.NewVADThreshold = new.VAD.Threshold
	}

	// Compare the rest with the hot-reloadable fields masked out.
	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	oldVAD, newVAD := old.VAD, new.VAD
	oldVAD.Threshold, newVAD.Threshold = 0, 0

	sections := []struct {
		name     string
		old, new any
	}{
		{"server", oldServer, newServer},
		{"audio", old.Audio, new.Audio},
		{"vad", oldVAD, newVAD},
		{"agent", old.Agent, new.Agent},
		{"resilience", old.Resilience, new.Resilience},
		{"providers", old.Providers, new.Providers},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}
