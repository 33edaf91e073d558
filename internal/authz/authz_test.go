package authz

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestFullControlAllowsTimerAndFusebox(t *testing.T) {
	assert.Assert(t, IsAllowed(FullControl, "timer"))
	assert.Assert(t, IsAllowed(FullControl, "fusebox"))
	assert.Assert(t, !IsAllowed(FullControl, "manual"))
	assert.Assert(t, !IsAllowed(FullControl, ""))
}

func TestOnlyTimer(t *testing.T) {
	assert.Assert(t, IsAllowed(OnlyTimer, "timer"))
	assert.Assert(t, !IsAllowed(OnlyTimer, "fusebox"))
}

func TestOnlyFusebox(t *testing.T) {
	assert.Assert(t, IsAllowed(OnlyFusebox, "fusebox"))
	assert.Assert(t, !IsAllowed(OnlyFusebox, "timer"))
}

func TestNoControlDeniesEverySource(t *testing.T) {
	for _, source := range []string{"timer", "fusebox", "anything", ""} {
		assert.Assert(t, !IsAllowed(NoControl, source), "source %q must be denied", source)
	}
}

func TestUnknownSettingDeniesEverySource(t *testing.T) {
	for _, setting := range []string{"", "full control", "Some new mode"} {
		for _, source := range []string{"timer", "fusebox"} {
			assert.Assert(t, !IsAllowed(setting, source), "setting %q source %q", setting, source)
		}
	}
}

func TestControlOptionsDefaultFirst(t *testing.T) {
	opts := ControlOptions()
	assert.Equal(t, len(opts), 4)
	assert.Equal(t, opts[0], DefaultOption())
}
