package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoopCapNeverExceedsHardLimit(t *testing.T) {
	c := Default()
	require.Equal(t, MAX_LOOP_ITERATIONS, c.LoopCap())

	c.MaxLoopIterations = 5000
	require.Equal(t, MAX_LOOP_ITERATIONS, c.LoopCap())

	c.MaxLoopIterations = 10
	require.Equal(t, 10, c.LoopCap())
}

func TestTTLDefault(t *testing.T) {
	c := Config{}
	require.Equal(t, DEFAULT_STATE_TTL, c.TTL())
	c.StateTTL = time.Minute
	require.Equal(t, time.Minute, c.TTL())
}
