package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dannyavrs/encapure/inference"
)

func TestInferenceConfig_SinglePreset(t *testing.T) {
	c := &Config{Mode: ModeSingle}
	got := c.InferenceConfig(8)
	assert.Equal(t, 1, got.Sessions)
	assert.Equal(t, 1, got.Permits)
	assert.Equal(t, 8, got.IntraOpThreads)
}

func TestInferenceConfig_ConcurrentPreset(t *testing.T) {
	c := &Config{Mode: ModeConcurrent}
	got := c.InferenceConfig(12)
	assert.Equal(t, 10, got.Sessions)
	assert.Equal(t, 6, got.Permits)
}

func TestInferenceConfig_ExplicitOverridesWinOverPreset(t *testing.T) {
	c := &Config{Mode: ModeConcurrent, PoolSize: 3, Permits: 2}
	got := c.InferenceConfig(8)
	assert.Equal(t, 3, got.Sessions)
	assert.Equal(t, 2, got.Permits)
}

func TestInferenceConfig_CustomPresetUsesExplicitDials(t *testing.T) {
	c := &Config{Mode: ModeCustom, PoolSize: 5, Permits: 3, IntraThreads: 2}
	got := c.InferenceConfig(8)
	want := inference.Config{Sessions: 5, Permits: 3, IntraOpThreads: 2, MaxConsecutiveFailures: 3}
	assert.Equal(t, want, got)
}

func TestShutdownTimeout(t *testing.T) {
	c := &Config{ShutdownTimeoutSec: 15}
	assert.Equal(t, float64(15), c.ShutdownTimeout().Seconds())
}
