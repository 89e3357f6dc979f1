package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Guoweix/bistu-edu-safety-automation/internal/entity"
	"github.com/Guoweix/bistu-edu-safety-automation/internal/ports"
	"github.com/Guoweix/bistu-edu-safety-automation/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriveModuleCompletesItemAndStops(t *testing.T) {
	fake := newFakeBrowser()
	seedModule(fake, "item", "item passed")
	fake.counts[stateKey(ports.MainPage, ".back")] = 1

	itemsSelector := childSel(nthSel(".module", 0), ".item")
	firstItem := nthSel(itemsSelector, 0)
	completedItem := nthSel(itemsSelector, 1)

	// Opening the item surfaces a video that is already at its completion
	// badge; the platform then marks the list entry as passed.
	fake.onClick = func(f *fakeBrowser, strategy, selector string) {
		if selector != firstItem {
			return
		}

		f.set(func(f *fakeBrowser) {
			f.frames = []string{"https://content.test/player"}
			f.counts[stateKey(contentScope, ".video-player")] = 1
			f.counts[stateKey(contentScope, ".badge-done")] = 1
			f.attrs[attrStateKey(ports.MainPage, firstItem, "class")] = "item passed"
		})
	}

	pilot := newTestPilot(fake)
	session := entity.NewSession()
	module := entity.Module{Label: "Fire Safety", Position: 0}

	err := pilot.driveModule(context.Background(), session, module)
	require.NoError(t, err)

	assert.Equal(t, 1, session.ItemsDriven)
	assert.Equal(t, 0, session.ItemsFailed)

	for _, click := range fake.clickedSelectors() {
		assert.NotContains(t, click, completedItem, "a passed item must never be driven")
	}
}

func TestDriveModuleStuckItemTerminatesWithinBound(t *testing.T) {
	fake := newFakeBrowser()
	seedModule(fake, "item")

	itemSelector := nthSel(childSel(nthSel(".module", 0), ".item"), 0)
	fake.nativeErr[itemSelector] = errors.New("intercepted")
	fake.forcedErr[itemSelector] = errors.New("intercepted")
	fake.scriptErr[itemSelector] = errors.New("not found")

	pilot := newTestPilot(fake)
	session := entity.NewSession()
	module := entity.Module{Label: "Fire Safety", Position: 0}

	start := time.Now()
	err := pilot.driveModule(context.Background(), session, module)
	require.NoError(t, err, "a stuck item is skipped, not fatal")

	assert.Equal(t, 0, session.ItemsDriven)
	assert.Equal(t, 2, session.ItemsFailed)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDriveModuleHonorsCancellation(t *testing.T) {
	fake := newFakeBrowser()
	seedModule(fake, "item")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pilot := newTestPilot(fake)

	err := pilot.driveModule(ctx, entity.NewSession(), entity.Module{Position: 0})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeCancelled))
}

func TestRunSkipsFinishedModules(t *testing.T) {
	fake := newFakeBrowser()
	fake.counts[stateKey(ports.MainPage, ".avatar")] = 1
	fake.counts[stateKey(ports.MainPage, "#entry")] = 1
	fake.counts[stateKey(ports.MainPage, hasTextSel(".course-title", "Safety Training"))] = 1
	fake.counts[stateKey(ports.MainPage, ".module")] = 1
	fake.texts[stateKey(ports.MainPage, childSel(nthSel(".module", 0), ".title"))] = "Fire Safety"
	fake.texts[stateKey(ports.MainPage, childSel(nthSel(".module", 0), ".count"))] = "2/2"

	pilot := newTestPilot(fake)

	session, err := pilot.Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, session)
	assert.True(t, session.Authenticated)
	require.NotNil(t, session.FinishedAt)
	assert.Equal(t, 0, session.ItemsDriven)
	assert.Equal(t, 0, session.ItemsFailed)
}

func TestRunRequiresReadyBrowser(t *testing.T) {
	fake := newFakeBrowser()
	fake.ready = false

	pilot := newTestPilot(fake)

	session, err := pilot.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, session)
	assert.True(t, apperr.IsCode(err, apperr.CodeBrowserNotReady))
}
