package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Guoweix/bistu-edu-safety-automation/internal/entity"
	"github.com/Guoweix/bistu-edu-safety-automation/internal/ports"
	"github.com/Guoweix/bistu-edu-safety-automation/pkg/apperr"
	"github.com/Guoweix/bistu-edu-safety-automation/pkg/logg"
	"github.com/Guoweix/bistu-edu-safety-automation/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// openCourse navigates from the post-login landing page into the target
// course: the lab entry banner first, then the course title matched by the
// configured course name.
func (s *PilotService) openCourse(ctx context.Context) (err error) {
	const op = "openCourse"
	logger := s.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	platform := s.config.PlatformConfig
	traversal := s.config.TraversalConfig

	err = waitFor(ctx, op, traversal.ContentTimeout(), traversal.WaitPollInterval(), func(ctx context.Context) bool {
		n, err := s.browser.Count(ctx, ports.MainPage, platform.EntryImageSelector)

		return err == nil && n > 0
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeNavigationLost, err, map[string]any{
			apperr.MetaReason:   "entry_banner_not_found",
			apperr.MetaStage:    apperr.StageNavigation,
			apperr.MetaSelector: platform.EntryImageSelector,
		})
	}

	if _, err := s.clicker.Click(ctx, ports.MainPage, platform.EntryImageSelector); err != nil {
		return err
	}

	step.AddEvent("entry banner clicked")

	courseSelector := platform.CourseTitleSelector
	if traversal.CourseName != "" {
		courseSelector = hasTextSel(platform.CourseTitleSelector, traversal.CourseName)
	}

	err = waitFor(ctx, op, traversal.ContentTimeout(), traversal.WaitPollInterval(), func(ctx context.Context) bool {
		n, err := s.browser.Count(ctx, ports.MainPage, courseSelector)

		return err == nil && n > 0
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeNavigationLost, err, map[string]any{
			apperr.MetaReason:   "course_title_not_found",
			apperr.MetaStage:    apperr.StageNavigation,
			apperr.MetaSelector: courseSelector,
		})
	}

	if _, err := s.clicker.Click(ctx, ports.MainPage, courseSelector); err != nil {
		return err
	}

	step.AddEvent("course opened")

	err = waitFor(ctx, op, traversal.ContentTimeout(), traversal.WaitPollInterval(), func(ctx context.Context) bool {
		n, err := s.browser.Count(ctx, ports.MainPage, platform.ModuleSelector)

		return err == nil && n > 0
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeNavigationLost, err, map[string]any{
			apperr.MetaReason: "module_list_not_found",
			apperr.MetaStage:  apperr.StageNavigation,
		})
	}

	return nil
}

// listModules reads the ordered module list from the live DOM. An empty
// course yields an empty slice, not an error. Labels and progress counters
// are best-effort: a module with an unreadable title still traverses.
func (s *PilotService) listModules(ctx context.Context) (modules []entity.Module, err error) {
	const op = "listModules"
	logger := s.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	platform := s.config.PlatformConfig

	count, err := s.browser.Count(ctx, ports.MainPage, platform.ModuleSelector)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "module_count_failed",
			apperr.MetaStage:  apperr.StageEnumeration,
		})
	}

	modules = make([]entity.Module, 0, count)

	for i := 0; i < count; i++ {
		container := nthSel(platform.ModuleSelector, i)

		label, err := s.browser.Text(ctx, ports.MainPage, childSel(container, platform.ModuleTitleSelector))
		if err != nil || label == "" {
			label = fmt.Sprintf("module %d", i+1)
		}

		progress := entity.ModuleProgress{}
		if countText, err := s.browser.Text(ctx, ports.MainPage, childSel(container, platform.ModuleCountSelector)); err == nil {
			progress = parseProgress(countText)
		}

		modules = append(modules, entity.Module{
			Label:    label,
			Position: i,
			Progress: progress,
		})
	}

	step.AddEvent("modules listed", attribute.Int("count", len(modules)))
	logger.Info("Modules enumerated", zap.Int("count", len(modules)))

	return modules, nil
}

// parseProgress parses the platform's "finished/total" counter text.
// Anything unparsable comes back zero, which traversal treats as unknown
// progress and scans the module anyway.
func parseProgress(text string) entity.ModuleProgress {
	parts := strings.SplitN(strings.TrimSpace(text), "/", 2)
	if len(parts) != 2 {
		return entity.ModuleProgress{}
	}

	finished, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return entity.ModuleProgress{}
	}

	total, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return entity.ModuleProgress{}
	}

	return entity.ModuleProgress{Finished: finished, Total: total}
}
