package ports

import (
	"context"

	"github.com/Guoweix/bistu-edu-safety-automation/internal/entity"
)

// Scope selects where a query or click runs: the main page when FrameURL is
// empty, otherwise the first live frame whose URL contains FrameURL. Scopes
// are resolved fresh on every call — frames are recreated by the platform at
// will, so no frame reference is ever held across operations.
type Scope struct {
	FrameURL string
}

// MainPage scopes an operation to the top-level document.
var MainPage = Scope{}

// BrowserManager is the browser automation surface the traversal engine
// drives. Element identity is never exposed: everything is addressed by
// selector and re-resolved inside each call.
type BrowserManager interface {
	Launch(ctx context.Context) error
	Close(ctx context.Context) error
	Navigate(ctx context.Context, url string) error
	GoBack(ctx context.Context) error
	URL(ctx context.Context) (string, error)

	Count(ctx context.Context, scope Scope, selector string) (int, error)
	Text(ctx context.Context, scope Scope, selector string) (string, error)
	Attribute(ctx context.Context, scope Scope, selector, name string) (string, error)
	IsVisible(ctx context.Context, scope Scope, selector string) (bool, error)

	ClickNative(ctx context.Context, scope Scope, selector string, timeoutMs float64) error
	ClickForced(ctx context.Context, scope Scope, selector string, timeoutMs float64) error
	ClickScript(ctx context.Context, scope Scope, selector string) error

	Evaluate(ctx context.Context, scope Scope, script string) (any, error)
	FrameURLs(ctx context.Context) ([]string, error)
	IsReady() bool
}

// CoursePilot runs the full traversal: login gate, module enumeration, and
// per-item completion until nothing incomplete remains.
type CoursePilot interface {
	Run(ctx context.Context) (*entity.Session, error)
	Stop()
}
