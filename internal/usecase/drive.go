package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/Guoweix/bistu-edu-safety-automation/internal/entity"
	"github.com/Guoweix/bistu-edu-safety-automation/internal/ports"
	"github.com/Guoweix/bistu-edu-safety-automation/pkg/apperr"
	"github.com/Guoweix/bistu-edu-safety-automation/pkg/logg"
	"github.com/Guoweix/bistu-edu-safety-automation/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// completeItem drives one incomplete item through its state machine:
//
//	Closed → Opening → ContentLoading → TypeDetected → Completing →
//	Completed → Returned
//
// Any step that cannot reach its next state within its timeout resolves to
// Failed; the caller skips the item and keeps the run alive. No element or
// frame reference taken before a navigation survives it — every
// content-dependent step searches the current frame set from scratch.
func (s *PilotService) completeItem(ctx context.Context, module entity.Module, item entity.CourseItem) (state entity.ItemState, err error) {
	const op = "completeItem"
	logger := s.logger.With(
		zap.String(logg.Operation, op),
		zap.String(logg.Module, module.Label),
		zap.String(logg.Item, item.Label))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op,
		attribute.String("module", module.Label),
		attribute.String("item", item.Label))
	defer func() {
		step.End(err)
	}()

	platform := s.config.PlatformConfig
	traversal := s.config.TraversalConfig

	state = entity.ItemStateClosed

	itemSelector := nthSel(
		childSel(nthSel(platform.ModuleSelector, module.Position), platform.ItemSelector),
		item.Position)

	attempts, err := s.clicker.Click(ctx, ports.MainPage, itemSelector)
	if err != nil {
		return entity.ItemStateFailed, apperr.Wrap(op, apperr.CodeElementNotActionable, err, map[string]any{
			apperr.MetaReason: "item_open_failed",
			apperr.MetaStage:  apperr.StageDrive,
			apperr.MetaItem:   item.Label,
		})
	}

	state = entity.ItemStateOpening
	step.AddEvent("item opened", attribute.Int("click_attempts", len(attempts)))

	err = waitFor(ctx, op, traversal.ContentTimeout(), traversal.WaitPollInterval(), s.hasContentSurface)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeCancelled) {
			return entity.ItemStateFailed, err
		}

		return entity.ItemStateFailed, apperr.Wrap(op, apperr.CodeContentLoadTimeout, err, map[string]any{
			apperr.MetaReason: "content_surface_missing",
			apperr.MetaStage:  apperr.StageDrive,
			apperr.MetaItem:   item.Label,
		})
	}

	state = entity.ItemStateContentLoading
	step.AddEvent("content surface detected")

	contentType := entity.ContentTypeUnknown

	err = waitFor(ctx, op, traversal.ContentTimeout(), traversal.WaitPollInterval(), func(ctx context.Context) bool {
		contentType = s.detectType(ctx)

		return contentType != entity.ContentTypeUnknown
	})
	if err != nil {
		if apperr.IsCode(err, apperr.CodeCancelled) {
			return entity.ItemStateFailed, err
		}

		return entity.ItemStateFailed, apperr.Wrap(op, apperr.CodeContentLoadTimeout, err, map[string]any{
			apperr.MetaReason: "content_type_undetected",
			apperr.MetaStage:  apperr.StageDrive,
			apperr.MetaItem:   item.Label,
		})
	}

	state = entity.ItemStateTypeDetected
	logger.Info("Content type detected", zap.String("type", string(contentType)))
	step.AddEvent("type detected", attribute.String("type", string(contentType)))

	state = entity.ItemStateCompleting

	switch contentType {
	case entity.ContentTypeVideo:
		err = s.completeVideo(ctx)
	case entity.ContentTypeInteractive:
		err = s.completeInteractive(ctx)
	}

	if err != nil {
		if apperr.IsCode(err, apperr.CodeCancelled) {
			return entity.ItemStateFailed, err
		}

		return entity.ItemStateFailed, apperr.Wrap(op, apperr.CodeCompletionTimeout, err, map[string]any{
			apperr.MetaReason: "completion_not_reached",
			apperr.MetaStage:  apperr.StageDrive,
			apperr.MetaItem:   item.Label,
		})
	}

	state = entity.ItemStateCompleted
	step.AddEvent("completion confirmed")

	if err = s.returnToList(ctx); err != nil {
		return entity.ItemStateFailed, err
	}

	return entity.ItemStateReturned, nil
}

// markerScopes builds the current set of places content markers may live:
// the main document, then the platform's content frame when present, then
// every other live frame. Built fresh on every call — frames are churned
// during playback and a stale scope would silently miss markers.
func (s *PilotService) markerScopes(ctx context.Context) []ports.Scope {
	scopes := []ports.Scope{ports.MainPage}

	urls, err := s.browser.FrameURLs(ctx)
	if err != nil {
		return scopes
	}

	hint := s.config.PlatformConfig.ContentFrameURLHint
	hinted := false

	for _, url := range urls {
		if url == "" || url == "about:blank" || strings.Contains(url, "javascript:") {
			continue
		}

		if hint != "" && strings.Contains(url, hint) {
			if !hinted {
				scopes = append(scopes, ports.Scope{FrameURL: hint})
				hinted = true
			}

			continue
		}

		scopes = append(scopes, ports.Scope{FrameURL: url})
	}

	return scopes
}

// hasContentSurface reports whether anything that could host item content is
// present yet: a live frame, or a type marker directly in the page.
func (s *PilotService) hasContentSurface(ctx context.Context) bool {
	scopes := s.markerScopes(ctx)
	if len(scopes) > 1 {
		return true
	}

	platform := s.config.PlatformConfig

	for _, selector := range []string{platform.VideoMarkerSelector, platform.InteractiveMarkerSelector} {
		if n, err := s.browser.Count(ctx, ports.MainPage, selector); err == nil && n > 0 {
			return true
		}
	}

	return false
}

// detectType classifies the opened item by its visible markers, searching
// the whole current frame set. Video wins over interactive when both match:
// video pages embed decorative controls that look interactive.
func (s *PilotService) detectType(ctx context.Context) entity.ContentType {
	platform := s.config.PlatformConfig
	interactive := false

	for _, scope := range s.markerScopes(ctx) {
		if n, err := s.browser.Count(ctx, scope, platform.VideoMarkerSelector); err == nil && n > 0 {
			return entity.ContentTypeVideo
		}

		if n, err := s.browser.Count(ctx, scope, platform.InteractiveMarkerSelector); err == nil && n > 0 {
			interactive = true
		}
	}

	if interactive {
		return entity.ContentTypeInteractive
	}

	return entity.ContentTypeUnknown
}

// completeVideo polls for the completion indicator, re-asserting playback on
// every pass in case it stalls — a stalled player is a recovery retry, not a
// failure.
func (s *PilotService) completeVideo(ctx context.Context) error {
	const op = "completeVideo"

	traversal := s.config.TraversalConfig

	s.ensurePlaying(ctx)

	return waitFor(ctx, op, traversal.ContentTimeout(), traversal.WaitPollInterval(), func(ctx context.Context) bool {
		if s.completionReached(ctx) {
			return true
		}

		s.ensurePlaying(ctx)

		return false
	})
}

// completeInteractive clicks through whatever required controls the content
// currently shows, re-scanning after every click instead of assuming a fixed
// step count.
func (s *PilotService) completeInteractive(ctx context.Context) error {
	const op = "completeInteractive"

	traversal := s.config.TraversalConfig

	return waitFor(ctx, op, traversal.ContentTimeout(), traversal.WaitPollInterval(), func(ctx context.Context) bool {
		if s.completionReached(ctx) {
			return true
		}

		s.advanceInteractive(ctx)

		return false
	})
}

// completionReached looks for the completion badge anywhere in the current
// frame set, then falls back to the platform's finish hook when the content
// page exposes it.
func (s *PilotService) completionReached(ctx context.Context) bool {
	platform := s.config.PlatformConfig

	for _, scope := range s.markerScopes(ctx) {
		if n, err := s.browser.Count(ctx, scope, platform.CompletionBadgeSelector); err == nil && n > 0 {
			return true
		}
	}

	return s.invokeFinishHook(ctx)
}

// invokeFinishHook calls the content page's own completion function when it
// is loaded. A successful invocation is a completion indicator in itself.
func (s *PilotService) invokeFinishHook(ctx context.Context) bool {
	fn := s.config.PlatformConfig.FinishFunction
	if fn == "" {
		return false
	}

	probe := fmt.Sprintf("typeof %s === 'function'", fn)

	for _, scope := range s.markerScopes(ctx) {
		result, err := s.browser.Evaluate(ctx, scope, probe)
		if err != nil {
			continue
		}

		if available, ok := result.(bool); !ok || !available {
			continue
		}

		if _, err := s.browser.Evaluate(ctx, scope, fn+"()"); err == nil {
			s.logger.Info("Finish hook invoked", zap.String(logg.Frame, scope.FrameURL))

			return true
		}
	}

	return false
}

// ensurePlaying clicks the play control wherever it is currently visible.
// Best effort: the player may be mid-playback with no control shown.
func (s *PilotService) ensurePlaying(ctx context.Context) {
	selector := s.config.PlatformConfig.PlayButtonSelector
	if selector == "" {
		return
	}

	for _, scope := range s.markerScopes(ctx) {
		visible, err := s.browser.IsVisible(ctx, scope, selector)
		if err != nil || !visible {
			continue
		}

		if _, err := s.clicker.Click(ctx, scope, selector); err == nil {
			return
		}
	}
}

// advanceInteractive clicks the first required control the content currently
// shows. Called once per poll pass; the next pass re-discovers controls from
// scratch, tolerating steps appearing and disappearing.
func (s *PilotService) advanceInteractive(ctx context.Context) {
	platform := s.config.PlatformConfig

	selectors := make([]string, 0, len(platform.StartButtonSelectors)+len(platform.NextButtonSelectors))
	selectors = append(selectors, platform.StartButtonSelectors...)
	selectors = append(selectors, platform.NextButtonSelectors...)

	for _, scope := range s.markerScopes(ctx) {
		for _, selector := range selectors {
			visible, err := s.browser.IsVisible(ctx, scope, selector)
			if err != nil || !visible {
				continue
			}

			if _, err := s.clicker.Click(ctx, scope, selector); err == nil {
				return
			}
		}
	}
}

// returnToList navigates back to the item list after a completed item: the
// platform's back control when present, browser history otherwise. If the
// list never reappears the navigation is lost and recovery re-enters the
// course from the landing page.
func (s *PilotService) returnToList(ctx context.Context) (err error) {
	const op = "returnToList"
	logger := s.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	platform := s.config.PlatformConfig
	traversal := s.config.TraversalConfig

	clicked := false

	for _, selector := range platform.BackButtonSelectors {
		n, err := s.browser.Count(ctx, ports.MainPage, selector)
		if err != nil || n == 0 {
			continue
		}

		if _, err := s.clicker.Click(ctx, ports.MainPage, selector); err == nil {
			clicked = true

			break
		}
	}

	if !clicked {
		logger.Info("No back control found, using history back")

		if err := s.browser.GoBack(ctx); err != nil {
			logger.Warn("History back failed", zap.Error(err))
		}
	}

	err = waitFor(ctx, op, traversal.ContentTimeout(), traversal.WaitPollInterval(), func(ctx context.Context) bool {
		n, err := s.browser.Count(ctx, ports.MainPage, platform.ModuleSelector)

		return err == nil && n > 0
	})
	if err == nil {
		return nil
	}

	if apperr.IsCode(err, apperr.CodeCancelled) {
		return err
	}

	logger.Warn("Item list lost after return, re-entering course")
	step.AddEvent("navigation lost, recovering")

	if recErr := s.recoverList(ctx); recErr != nil {
		return apperr.Wrap(op, apperr.CodeNavigationLost, recErr, map[string]any{
			apperr.MetaReason: "list_recovery_failed",
			apperr.MetaStage:  apperr.StageReturn,
		})
	}

	return nil
}

// recoverList re-enters the course from the platform landing page, the one
// known-good navigation state.
func (s *PilotService) recoverList(ctx context.Context) error {
	if err := s.browser.Navigate(ctx, s.config.PlatformConfig.BaseURL); err != nil {
		return err
	}

	return s.openCourse(ctx)
}
