package service

import (
	"errors"
	"fmt"

	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/platform/sentinel"
)

// wrapStoreErr translates store sentinel errors into domain errors so
// handlers can map them to HTTP statuses without knowing the store layer.
func wrapStoreErr(err error, subject string) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, fmt.Sprintf("%s not found", subject))
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, fmt.Sprintf("%s already exists", subject))
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, fmt.Sprintf("%s in invalid state", subject))
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("%s store failure", subject))
	}
}
