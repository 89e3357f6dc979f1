package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/Guoweix/bistu-edu-safety-automation/internal/ports"
	"github.com/Guoweix/bistu-edu-safety-automation/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwaitLoginDetectsAuthentication(t *testing.T) {
	fake := newFakeBrowser()
	fake.counts[stateKey(ports.MainPage, "input.password")] = 1

	pilot := newTestPilot(fake)

	// The human finishes the login mid-wait: the password form disappears
	// and the post-login landing element shows up.
	time.AfterFunc(50*time.Millisecond, func() {
		fake.set(func(f *fakeBrowser) {
			delete(f.counts, stateKey(ports.MainPage, "input.password"))
			f.counts[stateKey(ports.MainPage, ".avatar")] = 1
		})
	})

	start := time.Now()
	err := pilot.awaitLogin(context.Background())
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestAwaitLoginTimesOut(t *testing.T) {
	fake := newFakeBrowser()
	fake.counts[stateKey(ports.MainPage, "input.password")] = 1

	pilot := newTestPilot(fake)

	start := time.Now()
	err := pilot.awaitLogin(context.Background())
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeLoginTimeout))
	assert.GreaterOrEqual(t, elapsed, time.Second)
}

func TestIsLoggedInRejectsLoginURL(t *testing.T) {
	fake := newFakeBrowser()
	fake.url = "https://platform.test/#/login"
	fake.counts[stateKey(ports.MainPage, ".avatar")] = 1

	pilot := newTestPilot(fake)

	assert.False(t, pilot.isLoggedIn(context.Background()))
}

func TestIsLoggedInAcceptsStorageToken(t *testing.T) {
	fake := newFakeBrowser()
	fake.evals[storageProbeScript] = true

	pilot := newTestPilot(fake)

	assert.True(t, pilot.isLoggedIn(context.Background()))
}
