package config

import (
	"testing"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "frames.sampling", cfg.RabbitMQSamplingQueue)
	assert.Equal(t, "frames", cfg.MinIOArchiveBucket)
	assert.Equal(t, "jpg", cfg.SamplerFormat)
	assert.Equal(t, 2, cfg.WorkerCount)
	assert.Equal(t, entity.NativeRate(), cfg.DefaultRate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SAMPLER_TARGET_FPS", "5")
	t.Setenv("SAMPLER_FORMAT", "webp")
	t.Setenv("SAMPLER_RESOLUTION", "720p")
	t.Setenv("WORKER_COUNT", "4")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, entity.ByTargetRate(5), cfg.DefaultRate())
	assert.Equal(t, "webp", cfg.SamplerFormat)
	assert.Equal(t, 4, cfg.WorkerCount)
}

func TestLoadIntervalRate(t *testing.T) {
	t.Setenv("SAMPLER_INTERVAL_SECONDS", "2.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, entity.ByInterval(2.5), cfg.DefaultRate())
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]map[string]string{
		"both rates":     {"SAMPLER_TARGET_FPS": "5", "SAMPLER_INTERVAL_SECONDS": "1"},
		"negative rate":  {"SAMPLER_TARGET_FPS": "-1"},
		"bad format":     {"SAMPLER_FORMAT": "gif"},
		"bad resolution": {"SAMPLER_RESOLUTION": "huge"},
		"no workers":     {"WORKER_COUNT": "0"},
		"not a number":   {"WORKER_COUNT": "many"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
