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

// scanItems re-reads the module's item list from the live DOM. Every call is
// a fresh read — the results are authoritative only until the next page
// mutation; callers must never cache them across a drive.
func (s *PilotService) scanItems(ctx context.Context, module entity.Module) (items []entity.CourseItem, err error) {
	const op = "scanItems"
	logger := s.logger.With(
		zap.String(logg.Operation, op),
		zap.String(logg.Module, module.Label))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op,
		attribute.String("module", module.Label))
	defer func() {
		step.End(err)
	}()

	platform := s.config.PlatformConfig

	if err := s.ensureExpanded(ctx, module); err != nil {
		return nil, err
	}

	container := nthSel(platform.ModuleSelector, module.Position)
	itemsSelector := childSel(container, platform.ItemSelector)

	count, err := s.browser.Count(ctx, ports.MainPage, itemsSelector)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "item_count_failed",
			apperr.MetaStage:  apperr.StageScan,
			apperr.MetaModule: module.Label,
		})
	}

	items = make([]entity.CourseItem, 0, count)

	for i := 0; i < count; i++ {
		itemContainer := nthSel(itemsSelector, i)

		label, err := s.browser.Text(ctx, ports.MainPage, childSel(itemContainer, platform.ItemTitleSelector))
		if err != nil || label == "" {
			label = fmt.Sprintf("item %d", i+1)
		}

		items = append(items, entity.CourseItem{
			Label:       label,
			Position:    i,
			Status:      s.classifyStatus(ctx, itemContainer),
			ContentType: entity.ContentTypeUnknown,
		})
	}

	step.AddEvent("items scanned", attribute.Int("count", len(items)))

	return items, nil
}

// classifyStatus reads the item's visible completion marker. An unreadable
// marker is unknown, which downstream treats as incomplete.
func (s *PilotService) classifyStatus(ctx context.Context, itemContainer string) entity.ItemStatus {
	class, err := s.browser.Attribute(ctx, ports.MainPage, itemContainer, "class")
	if err != nil {
		return entity.ItemStatusUnknown
	}

	if strings.Contains(class, s.config.PlatformConfig.ItemCompletedClass) {
		return entity.ItemStatusComplete
	}

	return entity.ItemStatusIncomplete
}

// ensureExpanded makes sure the module's collapse panel is open before any
// item query. Navigation back from an item collapses panels on some platform
// versions, so this runs before every scan, not once.
func (s *PilotService) ensureExpanded(ctx context.Context, module entity.Module) error {
	const op = "ensureExpanded"

	platform := s.config.PlatformConfig
	traversal := s.config.TraversalConfig
	container := nthSel(platform.ModuleSelector, module.Position)

	class, err := s.browser.Attribute(ctx, ports.MainPage, container, "class")
	if err == nil && strings.Contains(class, platform.ModuleExpandedClass) {
		return nil
	}

	if _, err := s.clicker.Click(ctx, ports.MainPage, childSel(container, platform.ModuleExpandSelector)); err != nil {
		return err
	}

	// Empty modules exist; an expand that surfaces no items is not an error.
	_ = waitFor(ctx, op, traversal.WaitPollInterval()*4, traversal.WaitPollInterval(), func(ctx context.Context) bool {
		n, err := s.browser.Count(ctx, ports.MainPage, childSel(container, platform.ItemSelector))

		return err == nil && n > 0
	})

	return nil
}
