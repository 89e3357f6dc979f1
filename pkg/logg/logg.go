package logg

// Shared zap field keys so log lines stay greppable across layers.
const (
	Layer     = "layer"
	Operation = "op"
	Selector  = "selector"
	URL       = "url"
	Frame     = "frame"
	Module    = "module"
	Item      = "item"
	Strategy  = "strategy"
	Attempt   = "attempt"
	State     = "state"
	SessionID = "session_id"
)
