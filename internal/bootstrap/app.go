package bootstrap

import (
	"time"

	"github.com/Guoweix/bistu-edu-safety-automation/internal/browser"
	"github.com/Guoweix/bistu-edu-safety-automation/internal/config"
	"github.com/Guoweix/bistu-edu-safety-automation/internal/ports"
	"github.com/Guoweix/bistu-edu-safety-automation/internal/report"
	"github.com/Guoweix/bistu-edu-safety-automation/internal/usecase"

	"go.uber.org/fx"
)

func NewApp() *fx.App {
	return fx.New(
		fx.Provide(
			config.GetConfig,
			newLogger,
			newTraceProvider,

			fx.Annotate(browser.NewManager, fx.As(new(ports.BrowserManager))),
			fx.Annotate(usecase.NewPilotService, fx.As(new(ports.CoursePilot))),

			report.NewReporter,
		),

		fx.Invoke(
			runPilot,
		),

		fx.StartTimeout(10*time.Second),
	)
}
