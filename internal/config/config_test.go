package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfigDefaults(t *testing.T) {
	conf, err := GetConfig()
	require.NoError(t, err)

	assert.Equal(t, "info", conf.AppConfig.LogLevel)
	assert.False(t, conf.BrowserConfig.Headless)
	assert.Equal(t, 3, conf.TraversalConfig.MaxStalledAttempts)
	assert.Equal(t, ".van-collapse-item", conf.PlatformConfig.ModuleSelector)
	assert.Equal(t, "passed", conf.PlatformConfig.ItemCompletedClass)
	assert.NotEmpty(t, conf.PlatformConfig.BackButtonSelectors)
}

func TestGetConfigReadsEnvironment(t *testing.T) {
	t.Setenv("LOGIN_TIMEOUT_SECONDS", "15")
	t.Setenv("PLATFORM_MODULE_SELECTOR", ".chapter")
	t.Setenv("PLATFORM_NEXT_BUTTON_SELECTORS", ".next,.continue")

	conf, err := GetConfig()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, conf.TraversalConfig.LoginTimeout())
	assert.Equal(t, ".chapter", conf.PlatformConfig.ModuleSelector)
	assert.Equal(t, []string{".next", ".continue"}, conf.PlatformConfig.NextButtonSelectors)
}

func TestTraversalDurations(t *testing.T) {
	traversal := &TraversalConfig{
		LoginTimeoutSeconds:   120,
		ContentTimeoutSeconds: 90,
		LoginPollIntervalMs:   2000,
		WaitPollIntervalMs:    500,
	}

	assert.Equal(t, 2*time.Minute, traversal.LoginTimeout())
	assert.Equal(t, 90*time.Second, traversal.ContentTimeout())
	assert.Equal(t, 2*time.Second, traversal.LoginPollInterval())
	assert.Equal(t, 500*time.Millisecond, traversal.WaitPollInterval())
}
