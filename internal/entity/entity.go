package entity

import (
	"time"

	"github.com/google/uuid"
)

// Session is the ephemeral state of one run. Nothing here survives the
// process: the platform does not keep authentication between runs.
type Session struct {
	ID            uuid.UUID
	Authenticated bool
	ModuleIndex   int
	ItemIndex     int
	StartedAt     time.Time
	FinishedAt    *time.Time
	ItemsDriven   int
	ItemsFailed   int
}

func NewSession() *Session {
	return &Session{
		ID:        uuid.New(),
		StartedAt: time.Now(),
	}
}

// Module is one course grouping. It deliberately carries no DOM handle:
// modules are re-resolved by Position from the live page on every access.
type Module struct {
	Label    string
	Position int
	Progress ModuleProgress
}

// ModuleProgress is the "finished/total" counter the platform renders next
// to each module title.
type ModuleProgress struct {
	Finished int
	Total    int
}

func (p ModuleProgress) Done() bool {
	return p.Total > 0 && p.Finished >= p.Total
}

type ItemStatus string

const (
	ItemStatusComplete   ItemStatus = "complete"
	ItemStatusIncomplete ItemStatus = "incomplete"
	ItemStatusUnknown    ItemStatus = "unknown"
)

type ContentType string

const (
	ContentTypeVideo       ContentType = "video"
	ContentTypeInteractive ContentType = "interactive"
	ContentTypeUnknown     ContentType = "unknown"
)

// CourseItem is one learning unit inside a module. Status is authoritative
// only immediately after the scan that produced it; Position is the only
// field safe to reuse across page refreshes.
type CourseItem struct {
	Label       string
	Position    int
	Status      ItemStatus
	ContentType ContentType
}

// NeedsWork treats unknown as incomplete: re-attempting a possibly-done item
// is cheaper than silently skipping an unfinished one.
func (i CourseItem) NeedsWork() bool {
	return i.Status != ItemStatusComplete
}

// ItemState is a step of the per-item completion state machine.
type ItemState string

const (
	ItemStateClosed         ItemState = "closed"
	ItemStateOpening        ItemState = "opening"
	ItemStateContentLoading ItemState = "content_loading"
	ItemStateTypeDetected   ItemState = "type_detected"
	ItemStateCompleting     ItemState = "completing"
	ItemStateCompleted      ItemState = "completed"
	ItemStateReturned       ItemState = "returned"
	ItemStateFailed         ItemState = "failed"
)

type AttemptOutcome string

const (
	AttemptOutcomeSuccess AttemptOutcome = "success"
	AttemptOutcomeFailure AttemptOutcome = "failure"
)

// InteractionAttempt records a single click strategy attempt. Used for retry
// bookkeeping only, never persisted.
type InteractionAttempt struct {
	ID       uuid.UUID
	Target   string
	Strategy string
	Outcome  AttemptOutcome
	Err      string
}
