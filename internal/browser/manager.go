package browser

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Guoweix/bistu-edu-safety-automation/internal/config"
	"github.com/Guoweix/bistu-edu-safety-automation/internal/ports"
	"github.com/Guoweix/bistu-edu-safety-automation/pkg/apperr"
	"github.com/Guoweix/bistu-edu-safety-automation/pkg/logg"
	"github.com/Guoweix/bistu-edu-safety-automation/pkg/tracing"

	"github.com/playwright-community/playwright-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	browserManagerName = "BrowserManager"
	browserTracer      = "browser.manager"
	queryTimeout       = 3000
)

// The platform fingerprints automation through navigator.webdriver; mask it
// the same way a regular session looks.
const stealthScript = `
	Object.defineProperty(navigator, 'webdriver', {
		get: () => undefined
	});
`

type Manager struct {
	config         *config.Config
	logger         *zap.Logger
	tracer         trace.Tracer
	playwright     *playwright.Playwright
	browser        playwright.Browser
	browserContext playwright.BrowserContext
	page           playwright.Page
	ready          bool
}

type Params struct {
	fx.In

	Config *config.Config
	Logger *zap.Logger
}

func NewManager(params Params) *Manager {
	return &Manager{
		config: params.Config,
		logger: params.Logger.With(zap.String(logg.Layer, browserManagerName)),
		tracer: otel.Tracer(browserTracer),
		ready:  false,
	}
}

func (m *Manager) Launch(ctx context.Context) (err error) {
	const op = "Launch"
	logger := m.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	logger.Info("Launching browser...")
	step.AddEvent("installing playwright")

	err = playwright.Install()
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "playwright_install_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	step.AddEvent("starting playwright")

	pw, err := playwright.Run()
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "playwright_start_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	m.playwright = pw

	if m.config.BrowserConfig.UserDataDir != "" {
		return m.launchPersistent(ctx)
	}

	return m.launchNew(ctx)
}

func (m *Manager) launchPersistent(ctx context.Context) (err error) {
	const op = "launchPersistent"
	logger := m.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	logger.Info("Launching persistent browser context")

	userDataDir := m.config.BrowserConfig.UserDataDir

	if err := os.MkdirAll(userDataDir, 0755); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "mkdir_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	options := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless:          playwright.Bool(m.config.BrowserConfig.Headless),
		SlowMo:            playwright.Float(float64(m.config.BrowserConfig.SlowMo)),
		Viewport:          &playwright.Size{Width: 1920, Height: 1080},
		UserAgent:         playwright.String("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
		AcceptDownloads:   playwright.Bool(true),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            playwright.String("zh-CN"),
		TimezoneId:        playwright.String("Asia/Shanghai"),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--window-size=1920,1080",
		},
		IgnoreHttpsErrors: playwright.Bool(true),
	}

	browserContext, err := m.playwright.Chromium.LaunchPersistentContext(userDataDir, options)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "launch_persistent_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	m.browserContext = browserContext

	if err := browserContext.AddInitScript(playwright.Script{Content: playwright.String(stealthScript)}); err != nil {
		logger.Warn("Failed to add init script", zap.Error(err))
	}

	pages := browserContext.Pages()

	if len(pages) > 0 {
		m.page = pages[0]
		logger.Info("Using existing page")
	} else {
		page, err := browserContext.NewPage()
		if err != nil {
			return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
				apperr.MetaReason: "new_page_failed",
				apperr.MetaStage:  apperr.StageBrowser,
			})
		}
		m.page = page
		logger.Info("Created new page")
	}

	m.ready = true
	logger.Info("Browser launched successfully")

	return nil
}

func (m *Manager) launchNew(ctx context.Context) (err error) {
	const op = "launchNew"
	logger := m.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	logger.Info("Launching new browser")

	browserOptions := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(m.config.BrowserConfig.Headless),
		SlowMo:   playwright.Float(float64(m.config.BrowserConfig.SlowMo)),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	}

	browser, err := m.playwright.Chromium.Launch(browserOptions)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "browser_launch_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	m.browser = browser

	contextOptions := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  1920,
			Height: 1080,
		},
		UserAgent:         playwright.String("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
		AcceptDownloads:   playwright.Bool(true),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            playwright.String("zh-CN"),
		TimezoneId:        playwright.String("Asia/Shanghai"),
	}

	browserContext, err := browser.NewContext(contextOptions)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "context_create_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	m.browserContext = browserContext

	if err := browserContext.AddInitScript(playwright.Script{Content: playwright.String(stealthScript)}); err != nil {
		logger.Warn("Failed to add init script", zap.Error(err))
	}

	page, err := browserContext.NewPage()
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "page_create_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	m.page = page

	m.ready = true
	logger.Info("Browser launched successfully")

	return nil
}

func (m *Manager) Close(ctx context.Context) (err error) {
	const op = "Close"
	logger := m.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	logger.Info("Closing connection to browser...")

	if m.config.BrowserConfig.UserDataDir != "" {
		logger.Info("Persistent browser - keeping it open")
		m.ready = false

		return nil
	}

	if m.browserContext != nil {
		if err := m.browserContext.Close(); err != nil {
			logger.Warn("Failed to close context", zap.Error(err))
		}
	}

	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			logger.Warn("Failed to close browser", zap.Error(err))
		}
	}

	if m.playwright != nil {
		if err := m.playwright.Stop(); err != nil {
			return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
				apperr.MetaReason: "playwright_stop_failed",
			})
		}
	}

	m.ready = false
	logger.Info("Browser closed")

	return nil
}

func (m *Manager) ensurePageActive(ctx context.Context) error {
	if m.browserContext == nil {
		return fmt.Errorf("browser context is nil")
	}

	if m.page != nil && !m.page.IsClosed() {
		return nil
	}

	m.logger.Info("Page closed, reconnecting to active page...")

	pages := m.browserContext.Pages()

	for _, p := range pages {
		if !p.IsClosed() {
			m.page = p
			m.logger.Info("Reconnected to existing page")

			return nil
		}
	}

	m.logger.Info("No active pages found, creating new page...")

	page, err := m.browserContext.NewPage()
	if err != nil {
		return fmt.Errorf("failed to create new page: %w", err)
	}

	m.page = page

	return nil
}

// resolveFrame maps a scope onto the current frame set. Resolution happens on
// every call: the platform tears frames down and recreates them during
// playback, so a frame handle is trusted only for the single operation that
// resolved it.
func (m *Manager) resolveFrame(scope ports.Scope) (playwright.Frame, error) {
	if scope.FrameURL == "" {
		return m.page.MainFrame(), nil
	}

	for _, frame := range m.page.Frames() {
		frameURL := frame.URL()
		if frameURL == "" || frameURL == "about:blank" || strings.Contains(frameURL, "javascript:") {
			continue
		}

		if strings.Contains(frameURL, scope.FrameURL) {
			return frame, nil
		}
	}

	return nil, fmt.Errorf("no frame matching %q", scope.FrameURL)
}

func (m *Manager) prepare(ctx context.Context, op string, scope ports.Scope) (playwright.Frame, error) {
	if !m.ready {
		return nil, apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	if err := m.ensurePageActive(ctx); err != nil {
		return nil, apperr.Wrap(op, apperr.CodeBrowserNotReady, err, map[string]any{
			apperr.MetaReason: "page_not_active",
		})
	}

	frame, err := m.resolveFrame(scope)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeNotFound, err, map[string]any{
			apperr.MetaReason: "frame_not_found",
		})
	}

	return frame, nil
}

func (m *Manager) Navigate(ctx context.Context, url string) (err error) {
	const op = "Navigate"
	logger := m.logger.With(zap.String(logg.Operation, op), zap.String(logg.URL, url))

	ctx, step := tracing.StartSpan(ctx, m.tracer, logger, op, attribute.String("url", url))
	defer func() {
		step.End(err)
	}()

	if _, err := m.prepare(ctx, op, ports.MainPage); err != nil {
		return err
	}

	step.AddEvent("navigating to URL")

	_, err = m.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(m.config.BrowserConfig.Timeout)),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})

	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "goto_failed",
			apperr.MetaStage:  apperr.StageNavigation,
			apperr.MetaURL:    url,
		})
	}

	time.Sleep(500 * time.Millisecond)
	step.AddEvent("navigation completed")

	return nil
}

func (m *Manager) GoBack(ctx context.Context) (err error) {
	const op = "GoBack"
	logger := m.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	if _, err := m.prepare(ctx, op, ports.MainPage); err != nil {
		return err
	}

	_, err = m.page.GoBack(playwright.PageGoBackOptions{
		Timeout:   playwright.Float(float64(m.config.BrowserConfig.Timeout)),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})

	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "go_back_failed",
			apperr.MetaStage:  apperr.StageNavigation,
		})
	}

	return nil
}

func (m *Manager) URL(ctx context.Context) (url string, err error) {
	const op = "URL"

	if _, err := m.prepare(ctx, op, ports.MainPage); err != nil {
		return "", err
	}

	return m.page.URL(), nil
}

func (m *Manager) Count(ctx context.Context, scope ports.Scope, selector string) (count int, err error) {
	const op = "Count"

	frame, err := m.prepare(ctx, op, scope)
	if err != nil {
		return 0, err
	}

	count, err = frame.Locator(selector).Count()
	if err != nil {
		return 0, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason:   "count_failed",
			apperr.MetaSelector: selector,
		})
	}

	return count, nil
}

func (m *Manager) Text(ctx context.Context, scope ports.Scope, selector string) (text string, err error) {
	const op = "Text"

	frame, err := m.prepare(ctx, op, scope)
	if err != nil {
		return "", err
	}

	content, err := frame.TextContent(selector, playwright.FrameTextContentOptions{
		Timeout: playwright.Float(queryTimeout),
	})
	if err != nil {
		return "", apperr.Wrap(op, apperr.CodeNotFound, err, map[string]any{
			apperr.MetaReason:   "text_content_failed",
			apperr.MetaSelector: selector,
		})
	}

	return strings.TrimSpace(content), nil
}

func (m *Manager) Attribute(ctx context.Context, scope ports.Scope, selector, name string) (value string, err error) {
	const op = "Attribute"

	frame, err := m.prepare(ctx, op, scope)
	if err != nil {
		return "", err
	}

	value, err = frame.GetAttribute(selector, name, playwright.FrameGetAttributeOptions{
		Timeout: playwright.Float(queryTimeout),
	})
	if err != nil {
		return "", apperr.Wrap(op, apperr.CodeNotFound, err, map[string]any{
			apperr.MetaReason:   "get_attribute_failed",
			apperr.MetaSelector: selector,
		})
	}

	return value, nil
}

func (m *Manager) IsVisible(ctx context.Context, scope ports.Scope, selector string) (visible bool, err error) {
	const op = "IsVisible"

	frame, err := m.prepare(ctx, op, scope)
	if err != nil {
		return false, err
	}

	visible, err = frame.IsVisible(selector)
	if err != nil {
		return false, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason:   "is_visible_failed",
			apperr.MetaSelector: selector,
		})
	}

	return visible, nil
}

func (m *Manager) ClickNative(ctx context.Context, scope ports.Scope, selector string, timeoutMs float64) (err error) {
	const op = "ClickNative"
	logger := m.logger.With(zap.String(logg.Operation, op), zap.String(logg.Selector, selector))

	ctx, step := tracing.StartSpan(ctx, m.tracer, logger, op, attribute.String("selector", selector))
	defer func() {
		step.End(err)
	}()

	frame, err := m.prepare(ctx, op, scope)
	if err != nil {
		return err
	}

	err = frame.Click(selector, playwright.FrameClickOptions{
		Timeout: playwright.Float(timeoutMs),
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeElementNotActionable, err, map[string]any{
			apperr.MetaReason:   "native_click_failed",
			apperr.MetaStage:    apperr.StageInteraction,
			apperr.MetaSelector: selector,
		})
	}

	return nil
}

func (m *Manager) ClickForced(ctx context.Context, scope ports.Scope, selector string, timeoutMs float64) (err error) {
	const op = "ClickForced"
	logger := m.logger.With(zap.String(logg.Operation, op), zap.String(logg.Selector, selector))

	ctx, step := tracing.StartSpan(ctx, m.tracer, logger, op, attribute.String("selector", selector))
	defer func() {
		step.End(err)
	}()

	frame, err := m.prepare(ctx, op, scope)
	if err != nil {
		return err
	}

	err = frame.Click(selector, playwright.FrameClickOptions{
		Timeout: playwright.Float(timeoutMs),
		Force:   playwright.Bool(true),
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeElementNotActionable, err, map[string]any{
			apperr.MetaReason:   "forced_click_failed",
			apperr.MetaStage:    apperr.StageInteraction,
			apperr.MetaSelector: selector,
		})
	}

	return nil
}

func (m *Manager) ClickScript(ctx context.Context, scope ports.Scope, selector string) (err error) {
	const op = "ClickScript"
	logger := m.logger.With(zap.String(logg.Operation, op), zap.String(logg.Selector, selector))

	ctx, step := tracing.StartSpan(ctx, m.tracer, logger, op, attribute.String("selector", selector))
	defer func() {
		step.End(err)
	}()

	frame, err := m.prepare(ctx, op, scope)
	if err != nil {
		return err
	}

	// Locator resolution keeps the same selector engine as the native
	// strategies, chained selectors included.
	_, err = frame.Locator(selector).First().Evaluate(`el => {
		el.scrollIntoView({behavior: 'instant', block: 'center'});
		el.click();
	}`, nil, playwright.LocatorEvaluateOptions{
		Timeout: playwright.Float(queryTimeout),
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeElementNotActionable, err, map[string]any{
			apperr.MetaReason:   "js_click_failed",
			apperr.MetaStage:    apperr.StageInteraction,
			apperr.MetaSelector: selector,
		})
	}

	return nil
}

func (m *Manager) Evaluate(ctx context.Context, scope ports.Scope, script string) (result any, err error) {
	const op = "Evaluate"
	logger := m.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	frame, err := m.prepare(ctx, op, scope)
	if err != nil {
		return nil, err
	}

	result, err = frame.Evaluate(script)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "evaluate_failed",
		})
	}

	return result, nil
}

func (m *Manager) FrameURLs(ctx context.Context) (urls []string, err error) {
	const op = "FrameURLs"

	if _, err := m.prepare(ctx, op, ports.MainPage); err != nil {
		return nil, err
	}

	frames := m.page.Frames()
	urls = make([]string, 0, len(frames))

	for _, frame := range frames {
		urls = append(urls, frame.URL())
	}

	return urls, nil
}

func (m *Manager) IsReady() bool {
	return m.ready
}
