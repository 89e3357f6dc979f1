package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/Guoweix/bistu-edu-safety-automation/internal/config"
	"github.com/Guoweix/bistu-edu-safety-automation/internal/ports"
	"github.com/Guoweix/bistu-edu-safety-automation/internal/report"

	"go.uber.org/zap"
)

// fakeBrowser is an in-memory stand-in for the playwright manager. State is
// keyed by scope+selector and may be mutated mid-test to simulate the
// platform refreshing the page or churning frames under the engine.
type fakeBrowser struct {
	mu sync.Mutex

	ready  bool
	url    string
	frames []string

	counts  map[string]int
	texts   map[string]string
	attrs   map[string]string
	visible map[string]bool
	evals   map[string]any

	nativeErr map[string]error
	forcedErr map[string]error
	scriptErr map[string]error

	clicks      []string
	navigations []string

	onClick func(f *fakeBrowser, strategy, selector string)
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		ready:     true,
		url:       "https://platform.test/#/",
		counts:    make(map[string]int),
		texts:     make(map[string]string),
		attrs:     make(map[string]string),
		visible:   make(map[string]bool),
		evals:     make(map[string]any),
		nativeErr: make(map[string]error),
		forcedErr: make(map[string]error),
		scriptErr: make(map[string]error),
	}
}

func stateKey(scope ports.Scope, selector string) string {
	return scope.FrameURL + "|" + selector
}

func attrStateKey(scope ports.Scope, selector, name string) string {
	return scope.FrameURL + "|" + selector + "|" + name
}

// frameResolvable mirrors the real manager: a frame scope only resolves when
// a live frame URL contains it.
func (f *fakeBrowser) frameResolvable(scope ports.Scope) bool {
	if scope.FrameURL == "" {
		return true
	}

	for _, url := range f.frames {
		if url == "" || url == "about:blank" || strings.Contains(url, "javascript:") {
			continue
		}

		if strings.Contains(url, scope.FrameURL) {
			return true
		}
	}

	return false
}

func (f *fakeBrowser) set(fn func(f *fakeBrowser)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeBrowser) Launch(ctx context.Context) error {
	f.set(func(f *fakeBrowser) { f.ready = true })

	return nil
}

func (f *fakeBrowser) Close(ctx context.Context) error {
	f.set(func(f *fakeBrowser) { f.ready = false })

	return nil
}

func (f *fakeBrowser) Navigate(ctx context.Context, url string) error {
	f.set(func(f *fakeBrowser) {
		f.url = url
		f.navigations = append(f.navigations, url)
	})

	return nil
}

func (f *fakeBrowser) GoBack(ctx context.Context) error {
	f.set(func(f *fakeBrowser) { f.navigations = append(f.navigations, "back") })

	return nil
}

func (f *fakeBrowser) URL(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.url, nil
}

func (f *fakeBrowser) Count(ctx context.Context, scope ports.Scope, selector string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.frameResolvable(scope) {
		return 0, errors.New("frame not found")
	}

	return f.counts[stateKey(scope, selector)], nil
}

func (f *fakeBrowser) Text(ctx context.Context, scope ports.Scope, selector string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.frameResolvable(scope) {
		return "", errors.New("frame not found")
	}

	text, ok := f.texts[stateKey(scope, selector)]
	if !ok {
		return "", errors.New("no text: " + selector)
	}

	return text, nil
}

func (f *fakeBrowser) Attribute(ctx context.Context, scope ports.Scope, selector, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.frameResolvable(scope) {
		return "", errors.New("frame not found")
	}

	value, ok := f.attrs[attrStateKey(scope, selector, name)]
	if !ok {
		return "", errors.New("no attribute: " + selector)
	}

	return value, nil
}

func (f *fakeBrowser) IsVisible(ctx context.Context, scope ports.Scope, selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.frameResolvable(scope) {
		return false, errors.New("frame not found")
	}

	return f.visible[stateKey(scope, selector)], nil
}

func (f *fakeBrowser) click(strategy string, errs map[string]error, scope ports.Scope, selector string) error {
	f.mu.Lock()

	if !f.frameResolvable(scope) {
		f.mu.Unlock()

		return errors.New("frame not found")
	}

	f.clicks = append(f.clicks, strategy+" "+stateKey(scope, selector))
	err := errs[selector]
	hook := f.onClick
	f.mu.Unlock()

	if err != nil {
		return err
	}

	if hook != nil {
		hook(f, strategy, selector)
	}

	return nil
}

func (f *fakeBrowser) ClickNative(ctx context.Context, scope ports.Scope, selector string, timeoutMs float64) error {
	return f.click(strategyNative, f.nativeErr, scope, selector)
}

func (f *fakeBrowser) ClickForced(ctx context.Context, scope ports.Scope, selector string, timeoutMs float64) error {
	return f.click(strategyForced, f.forcedErr, scope, selector)
}

func (f *fakeBrowser) ClickScript(ctx context.Context, scope ports.Scope, selector string) error {
	return f.click(strategyScript, f.scriptErr, scope, selector)
}

func (f *fakeBrowser) Evaluate(ctx context.Context, scope ports.Scope, script string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.frameResolvable(scope) {
		return nil, errors.New("frame not found")
	}

	if result, ok := f.evals[script]; ok {
		return result, nil
	}

	return false, nil
}

func (f *fakeBrowser) FrameURLs(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	urls := make([]string, len(f.frames))
	copy(urls, f.frames)

	return urls, nil
}

func (f *fakeBrowser) IsReady() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.ready
}

func (f *fakeBrowser) clickedSelectors() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	clicks := make([]string, len(f.clicks))
	copy(clicks, f.clicks)

	return clicks
}

func testConfig() *config.Config {
	return &config.Config{
		AppConfig: &config.AppConfig{LogLevel: "info"},
		BrowserConfig: &config.BrowserConfig{
			Headless: true,
			Timeout:  1000,
		},
		TraversalConfig: &config.TraversalConfig{
			LoginTimeoutSeconds:   1,
			ContentTimeoutSeconds: 1,
			LoginPollIntervalMs:   10,
			WaitPollIntervalMs:    10,
			ClickTimeoutMs:        100,
			MaxStalledAttempts:    2,
			CourseName:            "Safety Training",
		},
		PlatformConfig: &config.PlatformConfig{
			BaseURL:                   "https://platform.test/#/",
			EntryImageSelector:        "#entry",
			CourseTitleSelector:       ".course-title",
			LoggedInSelector:          ".avatar",
			LoginFormSelector:         "input.password",
			LoginURLFragment:          "login",
			ModuleSelector:            ".module",
			ModuleTitleSelector:       ".title",
			ModuleCountSelector:       ".count",
			ModuleExpandSelector:      ".toggle",
			ModuleExpandedClass:       "expanded",
			ItemSelector:              ".item",
			ItemTitleSelector:         ".name",
			ItemCompletedClass:        "passed",
			ContentFrameURLHint:       "content.test",
			VideoMarkerSelector:       ".video-player",
			InteractiveMarkerSelector: ".btn-start",
			PlayButtonSelector:        ".play",
			StartButtonSelectors:      []string{".btn-start"},
			NextButtonSelectors:       []string{".btn-next"},
			CompletionBadgeSelector:   ".badge-done",
			FinishFunction:            "finishCourse",
			BackButtonSelectors:       []string{".back"},
		},
	}
}

func newTestPilot(fake *fakeBrowser) *PilotService {
	return NewPilotService(PilotServiceParams{
		Config:   testConfig(),
		Logger:   zap.NewNop(),
		Browser:  fake,
		Reporter: report.NewReporterWithWriter(io.Discard),
	})
}
