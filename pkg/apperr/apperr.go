package apperr

import (
	"errors"
	"fmt"
)

const (
	MetaReason   = "reason"
	MetaStage    = "stage"
	MetaField    = "field"
	MetaModule   = "module"
	MetaItem     = "item"
	MetaSelector = "selector"
	MetaURL      = "url"

	StageBrowser     = "browser"
	StageLogin       = "login"
	StageNavigation  = "navigation"
	StageEnumeration = "enumeration"
	StageScan        = "scan"
	StageDrive       = "drive"
	StageReturn      = "return"
	StageInteraction = "interaction"

	CodeInternal             = "internal"
	CodeInvalidArgument      = "invalid_argument"
	CodeNotFound             = "not_found"
	CodeTimeout              = "timeout"
	CodeBrowserNotReady      = "browser_not_ready"
	CodeLoginTimeout         = "login_timeout"
	CodeElementNotActionable = "element_not_actionable"
	CodeContentLoadTimeout   = "content_load_timeout"
	CodeCompletionTimeout    = "completion_timeout"
	CodeNavigationLost       = "navigation_lost"
	CodeCancelled            = "cancelled"
)

type Error struct {
	Op       string
	Code     string
	Err      error
	Metadata map[string]any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}

	return e.Op
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Wrap(op, code string, err error, metadata map[string]any) error {
	if metadata == nil {
		metadata = make(map[string]any)
	}

	return &Error{
		Op:       op,
		Code:     code,
		Err:      err,
		Metadata: metadata,
	}
}

func WrapWithReason(op, code string, err error, reason string) error {
	return Wrap(op, code, err, map[string]any{
		MetaReason: reason,
	})
}

func WrapErrorWithReason(op, code, reason string) error {
	return Wrap(op, code, errors.New(reason), map[string]any{
		MetaReason: reason,
	})
}

func InvalidReqError(op, field string, err error) error {
	return Wrap(op, CodeInvalidArgument, err, map[string]any{
		MetaField:  field,
		MetaReason: "invalid_request",
	})
}

func NotFoundError(op string, err error) error {
	return Wrap(op, CodeNotFound, err, map[string]any{
		MetaReason: "not_found",
	})
}

// Code returns the code of the outermost *Error in err's chain, or "".
func Code(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}

	return ""
}

// IsCode reports whether any *Error in err's chain carries the given code.
func IsCode(err error, code string) bool {
	for err != nil {
		var appErr *Error
		if !errors.As(err, &appErr) {
			return false
		}

		if appErr.Code == code {
			return true
		}

		err = appErr.Err
	}

	return false
}
