package usecase

import (
	"context"
	"strings"

	"github.com/Guoweix/bistu-edu-safety-automation/internal/ports"
	"github.com/Guoweix/bistu-edu-safety-automation/pkg/apperr"
	"github.com/Guoweix/bistu-edu-safety-automation/pkg/logg"
	"github.com/Guoweix/bistu-edu-safety-automation/pkg/tracing"

	"go.uber.org/zap"
)

// The platform keeps no cookies between runs and its login flow needs a human
// (SMS verification), so storage is probed rather than any credential entered.
const storageProbeScript = `
	(() => {
		const hasToken = !!(
			localStorage.getItem('token') ||
			localStorage.getItem('userInfo') ||
			localStorage.getItem('Authorization') ||
			sessionStorage.getItem('token') ||
			sessionStorage.getItem('userInfo') ||
			sessionStorage.getItem('Authorization')
		);

		const keyLooksAuthed = (k) =>
			k.includes('user') || k.includes('token') || k.includes('auth');

		return hasToken ||
			Object.keys(localStorage).some(keyLooksAuthed) ||
			Object.keys(sessionStorage).some(keyLooksAuthed);
	})()
`

// awaitLogin opens the platform landing page and blocks until a human has
// finished logging in, or the configured timeout elapses. There is no partial
// recovery: a timeout aborts the run.
func (s *PilotService) awaitLogin(ctx context.Context) (err error) {
	const op = "awaitLogin"
	logger := s.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	platform := s.config.PlatformConfig
	traversal := s.config.TraversalConfig

	if err := s.browser.Navigate(ctx, platform.BaseURL); err != nil {
		return err
	}

	s.reporter.LoginPrompt(traversal.LoginTimeout())
	logger.Info("Waiting for manual login",
		zap.Duration("timeout", traversal.LoginTimeout()))

	err = waitFor(ctx, op, traversal.LoginTimeout(), traversal.LoginPollInterval(), s.isLoggedIn)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeCancelled) {
			return err
		}

		return apperr.Wrap(op, apperr.CodeLoginTimeout, err, map[string]any{
			apperr.MetaReason: "login_not_detected",
			apperr.MetaStage:  apperr.StageLogin,
		})
	}

	logger.Info("Login detected")

	return nil
}

// isLoggedIn classifies the live page as authenticated or not. Several weak
// signals are combined because the platform exposes no single reliable one:
// the URL, the presence of a password form, a post-login landing element, and
// the web storage token probe.
func (s *PilotService) isLoggedIn(ctx context.Context) bool {
	platform := s.config.PlatformConfig

	url, err := s.browser.URL(ctx)
	if err != nil {
		return false
	}

	if platform.LoginURLFragment != "" && strings.Contains(strings.ToLower(url), platform.LoginURLFragment) {
		return false
	}

	if n, err := s.browser.Count(ctx, ports.MainPage, platform.LoginFormSelector); err == nil && n > 0 {
		return false
	}

	if n, err := s.browser.Count(ctx, ports.MainPage, platform.LoggedInSelector); err == nil && n > 0 {
		return true
	}

	result, err := s.browser.Evaluate(ctx, ports.MainPage, storageProbeScript)
	if err != nil {
		return false
	}

	authed, ok := result.(bool)

	return ok && authed
}
