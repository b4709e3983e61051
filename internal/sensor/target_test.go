package sensor

import (
	"testing"

	"github.com/srg/witctl/internal/devicecache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTarget(t *testing.T) {
	assert.True(t, ParseTarget("").IsAny())
	assert.True(t, ParseTarget("*").IsAny())
	assert.False(t, NoTarget().IsSet())

	exact := ParseTarget("WT901")
	assert.True(t, exact.IsSet())
	assert.False(t, exact.IsAny())
	assert.Equal(t, "WT901", exact.String())
}

func TestTarget_Matches(t *testing.T) {
	wit := devicecache.Record{Identifier: "WT901BLE68", Address: "AA:BB", Class: devicecache.ClassWIT}
	other := devicecache.Record{Identifier: "Phone", Address: "CC:DD", Class: devicecache.ClassOther}

	assert.True(t, AnyTarget().Matches(wit))
	assert.False(t, AnyTarget().Matches(other))
	assert.True(t, ExactTarget("AA:BB").Matches(wit))
	assert.True(t, ExactTarget("Phone").Matches(other))
	assert.False(t, ExactTarget("Phone").Matches(wit))
	assert.False(t, NoTarget().Matches(wit))
}

func TestPollPeriod(t *testing.T) {
	tests := []struct {
		hz       float64
		expected int
	}{
		{hz: 10, expected: 100},
		{hz: 3, expected: 333},
		{hz: 50, expected: 20},
		{hz: 1000, expected: 20},
		{hz: 0.5, expected: 2000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, PollPeriod(tt.hz), "hz=%v", tt.hz)
	}
}

func TestParsePollType(t *testing.T) {
	for _, name := range []string{"quat", "mag", "battery", "temp"} {
		p, err := ParsePollType(name)
		require.NoError(t, err)
		assert.Equal(t, name, p.String())
		assert.NotZero(t, p.Register())
	}

	_, err := ParsePollType("accel")
	assert.Error(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "state(42)", State(42).String())
}
