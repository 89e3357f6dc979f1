package bootstrap

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Guoweix/bistu-edu-safety-automation/internal/ports"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// runPilot launches the browser on startup, runs the traversal in the
// background, and shuts the application down when the run finishes or a
// signal arrives. One run per process: sessions are not resumable.
func runPilot(lc fx.Lifecycle, shutdowner fx.Shutdowner, pilot ports.CoursePilot, browser ports.BrowserManager, logger *zap.Logger) {
	runCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Launching browser...")

			if err := browser.Launch(ctx); err != nil {
				logger.Error("Failed to launch browser", zap.Error(err))

				return err
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

			go func() {
				<-sigChan
				logger.Info("Interrupt received, stopping run...")
				pilot.Stop()
				cancel()
			}()

			go func() {
				session, err := pilot.Run(runCtx)
				if err != nil {
					logger.Error("Run failed", zap.Error(err))
				} else if session != nil {
					logger.Info("Run finished",
						zap.Int("items_completed", session.ItemsDriven),
						zap.Int("items_failed", session.ItemsFailed))
				}

				if err := shutdowner.Shutdown(); err != nil {
					logger.Error("Shutdown failed", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down...")
			cancel()

			if err := browser.Close(ctx); err != nil {
				logger.Error("Failed to close browser", zap.Error(err))
			}

			return nil
		},
	})
}
