// Package apperr holds the error kinds shared by the gateways, the
// classification session and the host adapters.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrGateway           = errors.New("gateway error")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrAlreadyClassified = errors.New("already classified")
	ErrInFlight          = errors.New("reclassification already in progress")
	ErrDuplicateCategory = errors.New("duplicate category")
)

// Gateway wraps err as an ErrGateway failure of op. Errors that already
// carry a known kind are returned wrapped without changing that kind.
func Gateway(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsKnown(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrGateway, op, err)
}

// IsKnown reports whether err already matches one of the sentinels above.
func IsKnown(err error) bool {
	for _, k := range []error{ErrGateway, ErrNotFound, ErrConflict, ErrAlreadyClassified, ErrInFlight, ErrDuplicateCategory} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// Kind returns a short machine-readable name for err's kind.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrAlreadyClassified):
		return "already_classified"
	case errors.Is(err, ErrInFlight):
		return "in_flight"
	case errors.Is(err, ErrDuplicateCategory):
		return "duplicate_category"
	case errors.Is(err, ErrGateway):
		return "gateway"
	default:
		return "internal"
	}
}
