package config

import "slices"

// ConfigDiff describes what changed between two configs. Only fields that can
// be applied without restarting the server are tracked: the log level takes
// effect immediately, pipeline persona changes apply to new calls.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PersonaChanged is true when system_prompt, first_message or
	// end_call_phrases changed.
	PersonaChanged bool

	// EscalationChanged is true when escalation settings changed.
	EscalationChanged bool
}

// Changed reports whether the diff carries any hot-reloadable change.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.PersonaChanged || d.EscalationChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	op, np := &old.Pipeline, &new.Pipeline
	if op.SystemPrompt != np.SystemPrompt ||
		op.FirstMessage != np.FirstMessage ||
		!slices.Equal(op.EndCallPhrases, np.EndCallPhrases) {
		d.PersonaChanged = true
	}

	oe, ne := &op.EscalationConfig, &np.EscalationConfig
	if op.EscalationEnabled != np.EscalationEnabled ||
		oe.MaxTurns != ne.MaxTurns ||
		oe.RepeatedQuestionWindow != ne.RepeatedQuestionWindow ||
		!slices.Equal(oe.Keywords, ne.Keywords) ||
		!slices.Equal(oe.AngerPatterns, ne.AngerPatterns) {
		d.EscalationChanged = true
	}

	return d
}
