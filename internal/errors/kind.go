package errors

import (
	"context"
	stderrors "errors"
)

// Kind is the caller-facing classification of a pipeline failure.
type Kind string

const (
	KindInvalidInput       Kind = "invalid_input"
	KindUpstream           Kind = "upstream_error"
	KindStore              Kind = "store_error"
	KindPersistenceWarning Kind = "persistence_warning"
	KindConfig             Kind = "config_error"
	KindInternal           Kind = "internal_error"
)

// KindOf maps any error to exactly one Kind. Errors without a PageError in
// their chain are internal, except a bare deadline expiry which is upstream.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	pe, ok := As(err)
	if !ok {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return KindUpstream
		}
		return KindInternal
	}
	if pe.Code == ErrCodePersistenceWarning {
		return KindPersistenceWarning
	}
	switch pe.Category {
	case CategoryValidation:
		return KindInvalidInput
	case CategoryUpstream:
		return KindUpstream
	case CategoryStore:
		return KindStore
	case CategoryConfig:
		return KindConfig
	default:
		return KindInternal
	}
}
