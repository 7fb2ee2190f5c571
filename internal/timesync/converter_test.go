package timesync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConverter_MonotonicToWallClock(t *testing.T) {
	bootTime := time.Unix(1_000_000_000, 0)
	c := &Converter{bootTime: bootTime}

	cases := []struct {
		name           string
		monotonicNanos uint64
		want           time.Time
	}{
		{"zero", 0, bootTime},
		{"one second", 1_000_000_000, bootTime.Add(time.Second)},
		{"one hour", 3_600_000_000_000, bootTime.Add(time.Hour)},
		{"mixed", 123_456_789_000, bootTime.Add(123*time.Second + 456*time.Millisecond + 789*time.Microsecond)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.True(t, c.MonotonicToWallClock(tc.monotonicNanos).Equal(tc.want))
		})
	}
}

func TestConverter_BootTime(t *testing.T) {
	bootTime := time.Unix(1_000_000_000, 0)
	c := &Converter{bootTime: bootTime}
	require.True(t, c.BootTime().Equal(bootTime))
}

func TestNewConverter(t *testing.T) {
	c, err := NewConverter()
	require.NoError(t, err)
	require.NotNil(t, c)
	require.False(t, c.BootTime().IsZero())
	require.False(t, c.BootTime().After(time.Now()))
}
