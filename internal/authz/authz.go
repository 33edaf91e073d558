package authz

import "slices"

// Labels of the "Inverter Control" select entity. Every valid value has an
// entry in allowedSources; anything else denies all sources.
const (
	FullControl = "Full control"
	OnlyTimer   = "Only timer"
	OnlyFusebox = "Only Fusebox"
	NoControl   = "No control"
)

var allowedSources = map[string][]string{
	FullControl: {"timer", "fusebox"},
	OnlyTimer:   {"timer"},
	OnlyFusebox: {"fusebox"},
	NoControl:   {},
}

// IsAllowed reports whether a command from source may act under the given
// control-mode setting. Unknown settings resolve to an empty allow-set.
func IsAllowed(settingValue, source string) bool {
	return slices.Contains(allowedSources[settingValue], source)
}

// ControlOptions returns the selectable control-mode labels, default first.
func ControlOptions() []string {
	return []string{FullControl, OnlyTimer, OnlyFusebox, NoControl}
}

// DefaultOption is the control mode a fresh select entity starts in.
func DefaultOption() string {
	return FullControl
}
