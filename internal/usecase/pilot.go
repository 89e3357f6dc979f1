package usecase

import (
	"context"
	"time"

	"github.com/Guoweix/bistu-edu-safety-automation/internal/config"
	"github.com/Guoweix/bistu-edu-safety-automation/internal/entity"
	"github.com/Guoweix/bistu-edu-safety-automation/internal/ports"
	"github.com/Guoweix/bistu-edu-safety-automation/internal/report"
	"github.com/Guoweix/bistu-edu-safety-automation/pkg/apperr"
	"github.com/Guoweix/bistu-edu-safety-automation/pkg/logg"
	"github.com/Guoweix/bistu-edu-safety-automation/pkg/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	pilotServiceName = "CoursePilot"
	pilotTracer      = "usecase.pilot"
)

// PilotService is the traversal orchestrator. It gates on a human-completed
// login, enumerates course modules, and drives every incomplete item to
// completion — one item at a time, one full re-scan between items, because
// completing an item reshuffles the list's DOM under our feet.
type PilotService struct {
	config   *config.Config
	logger   *zap.Logger
	browser  ports.BrowserManager
	reporter *report.Reporter
	tracer   trace.Tracer
	clicker  *clicker
	stopChan chan struct{}
	running  bool
}

type PilotServiceParams struct {
	fx.In

	Config   *config.Config
	Logger   *zap.Logger
	Browser  ports.BrowserManager
	Reporter *report.Reporter
}

func NewPilotService(params PilotServiceParams) *PilotService {
	logger := params.Logger.With(zap.String(logg.Layer, pilotServiceName))

	return &PilotService{
		config:   params.Config,
		logger:   logger,
		browser:  params.Browser,
		reporter: params.Reporter,
		tracer:   otel.Tracer(pilotTracer),
		clicker:  newClicker(params.Browser, logger, float64(params.Config.TraversalConfig.ClickTimeoutMs)),
		stopChan: make(chan struct{}),
	}
}

func (s *PilotService) Run(ctx context.Context) (session *entity.Session, err error) {
	const op = "Run"
	logger := s.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	if !s.browser.IsReady() {
		return nil, apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	session = entity.NewSession()
	logger = logger.With(zap.String(logg.SessionID, session.ID.String()))

	s.running = true
	s.stopChan = make(chan struct{})

	s.reporter.Banner()
	step.AddEvent("waiting for manual login")

	if err := s.awaitLogin(ctx); err != nil {
		// The only run-fatal failure: nothing downstream can happen
		// without an authenticated page.
		s.reporter.LoginFailed(err)

		return session, err
	}

	session.Authenticated = true
	s.reporter.LoginOK()
	step.AddEvent("login detected")

	if err := s.openCourse(ctx); err != nil {
		return session, err
	}

	modules, err := s.listModules(ctx)
	if err != nil {
		return session, err
	}

	s.reporter.ModulesFound(len(modules))
	step.AddEvent("modules enumerated", attribute.Int("count", len(modules)))

	for i := range modules {
		session.ModuleIndex = i
		s.reporter.ModuleStart(i, len(modules), modules[i])

		if modules[i].Progress.Done() {
			s.reporter.ModuleDone(modules[i])

			continue
		}

		if err := s.driveModule(ctx, session, modules[i]); err != nil {
			return session, err
		}

		s.reporter.ModuleDone(modules[i])
	}

	finished := time.Now()
	session.FinishedAt = &finished
	s.reporter.Summary(session)

	return session, nil
}

// driveModule loops scan → drive-first-incomplete → re-scan until the module
// has no incomplete items left or the stall bound trips. Item failures are
// logged and skipped; only cancellation propagates.
func (s *PilotService) driveModule(ctx context.Context, session *entity.Session, module entity.Module) (err error) {
	const op = "driveModule"
	logger := s.logger.With(
		zap.String(logg.Operation, op),
		zap.String(logg.Module, module.Label))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op,
		attribute.String("module", module.Label),
		attribute.Int("position", module.Position))
	defer func() {
		step.End(err)
	}()

	prevIncomplete := -1
	stalled := 0

	for {
		select {
		case <-ctx.Done():
			return apperr.Wrap(op, apperr.CodeCancelled, ctx.Err(), map[string]any{
				apperr.MetaReason: "context_cancelled",
			})
		case <-s.stopChan:
			return apperr.WrapErrorWithReason(op, apperr.CodeCancelled, "stopped_by_user")
		default:
		}

		items, err := s.scanItems(ctx, module)
		if err != nil {
			logger.Warn("Scan failed", zap.Error(err))
			stalled++

			if stalled >= s.config.TraversalConfig.MaxStalledAttempts {
				s.reporter.ModuleStalled(module)

				return nil
			}

			continue
		}

		incomplete := 0
		first := -1

		for i, item := range items {
			if item.NeedsWork() {
				incomplete++

				if first < 0 {
					first = i
				}
			}
		}

		if incomplete == 0 {
			return nil
		}

		// No shrink since the previous pass means the last drive made no
		// visible progress; bound that before it becomes an infinite loop.
		if prevIncomplete >= 0 && incomplete >= prevIncomplete {
			stalled++
		} else {
			stalled = 0
		}
		prevIncomplete = incomplete

		if stalled >= s.config.TraversalConfig.MaxStalledAttempts {
			logger.Warn("Module stalled, moving on",
				zap.Int("incomplete", incomplete),
				zap.Int(logg.Attempt, stalled))
			s.reporter.ModuleStalled(module)

			return nil
		}

		item := items[first]
		session.ItemIndex = item.Position
		s.reporter.ItemStart(item)

		state, driveErr := s.completeItem(ctx, module, item)
		if driveErr != nil || state != entity.ItemStateReturned {
			if apperr.IsCode(driveErr, apperr.CodeCancelled) {
				return driveErr
			}

			session.ItemsFailed++
			logger.Warn("Item failed, continuing",
				zap.String(logg.Item, item.Label),
				zap.String(logg.State, string(state)),
				zap.Error(driveErr))
			s.reporter.ItemFailed(item, driveErr)

			continue
		}

		session.ItemsDriven++
		s.reporter.ItemDone(item)
	}
}

func (s *PilotService) Stop() {
	const op = "Stop"
	logger := s.logger.With(zap.String(logg.Operation, op))

	if !s.running {
		return
	}

	logger.Info("Stopping pilot...")

	s.running = false
	close(s.stopChan)
}
