package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/Guoweix/bistu-edu-safety-automation/internal/entity"
	"github.com/Guoweix/bistu-edu-safety-automation/internal/ports"
	"github.com/Guoweix/bistu-edu-safety-automation/pkg/apperr"
	"github.com/Guoweix/bistu-edu-safety-automation/pkg/logg"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	strategyNative = "native"
	strategyForced = "forced"
	strategyScript = "script"
)

// clicker drives a single element interaction through escalating strategies:
// a native click with actionability checks, a forced click that bypasses
// occlusion and visibility, and finally a script-dispatched click on the raw
// element. Failures never escape the clicker except as one exhausted-result
// error; callers decide whether retrying at a higher level makes sense.
type clicker struct {
	browser   ports.BrowserManager
	logger    *zap.Logger
	timeoutMs float64
}

func newClicker(browser ports.BrowserManager, logger *zap.Logger, timeoutMs float64) *clicker {
	return &clicker{
		browser:   browser,
		logger:    logger.With(zap.String(logg.Layer, "Clicker")),
		timeoutMs: timeoutMs,
	}
}

func (c *clicker) Click(ctx context.Context, scope ports.Scope, selector string) ([]entity.InteractionAttempt, error) {
	const op = "Click"
	logger := c.logger.With(zap.String(logg.Operation, op), zap.String(logg.Selector, selector))

	strategies := []struct {
		name string
		fn   func() error
	}{
		{
			name: strategyNative,
			fn: func() error {
				return c.browser.ClickNative(ctx, scope, selector, c.timeoutMs)
			},
		},
		{
			name: strategyForced,
			fn: func() error {
				return c.browser.ClickForced(ctx, scope, selector, c.timeoutMs)
			},
		},
		{
			name: strategyScript,
			fn: func() error {
				return c.browser.ClickScript(ctx, scope, selector)
			},
		},
	}

	attempts := make([]entity.InteractionAttempt, 0, len(strategies))

	var lastErr error

	for _, strategy := range strategies {
		attempt := entity.InteractionAttempt{
			ID:       uuid.New(),
			Target:   selector,
			Strategy: strategy.name,
		}

		err := strategy.fn()
		if err == nil {
			attempt.Outcome = entity.AttemptOutcomeSuccess
			attempts = append(attempts, attempt)

			return attempts, nil
		}

		attempt.Outcome = entity.AttemptOutcomeFailure
		attempt.Err = err.Error()
		attempts = append(attempts, attempt)
		lastErr = err

		logger.Warn("Click strategy failed",
			zap.String(logg.Strategy, strategy.name),
			zap.Error(err))
	}

	return attempts, apperr.Wrap(op, apperr.CodeElementNotActionable, lastErr, map[string]any{
		apperr.MetaReason:   "click_failed_all_strategies",
		apperr.MetaStage:    apperr.StageInteraction,
		apperr.MetaSelector: selector,
	})
}

// waitFor polls check until it reports true, the timeout elapses, or ctx is
// cancelled. The ticker select is the single yield point of every wait in the
// engine: no busy loops, no unbounded sleeps.
func waitFor(ctx context.Context, op string, timeout, interval time.Duration, check func(context.Context) bool) error {
	if check(ctx) {
		return nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return apperr.Wrap(op, apperr.CodeCancelled, ctx.Err(), map[string]any{
				apperr.MetaReason: "context_cancelled",
			})
		case <-deadline.C:
			return apperr.WrapErrorWithReason(op, apperr.CodeTimeout, "condition_timeout")
		case <-ticker.C:
			if check(ctx) {
				return nil
			}
		}
	}
}

// nthSel addresses the index-th match of selector. Index-based addressing is
// the only module/item identity that survives a page refresh.
func nthSel(selector string, index int) string {
	return fmt.Sprintf("%s >> nth=%d", selector, index)
}

func childSel(parent, child string) string {
	return parent + " >> " + child
}

func hasTextSel(selector, text string) string {
	return fmt.Sprintf(`%s:has-text("%s")`, selector, text)
}
