package listing

import (
	"errors"
	"strings"
)

var (
	ErrNotFound    = errors.New("listing not found")
	ErrForbidden   = errors.New("unauthorized or listing not found")
	ErrUnknownKind = errors.New("invalid category")
)

// ValidationError reports required fields that were missing or empty.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	switch len(e.Fields) {
	case 0:
		return "invalid listing"
	case 1:
		return e.Fields[0] + " is required"
	default:
		head := e.Fields[:len(e.Fields)-1]
		return strings.Join(head, ", ") + " and " + e.Fields[len(e.Fields)-1] + " are required"
	}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
