package validation

import (
	"sort"
	"strings"
)

// Error carries per-field messages for input the caller must correct.
type Error struct {
	Fields map[string]string
}

// NewError returns an *Error for fields, or nil when fields is empty.
func NewError(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return &Error{Fields: fields}
}

// Field returns an *Error for a single field.
func Field(name, message string) error {
	return &Error{Fields: map[string]string{name: message}}
}

func (e *Error) Error() string {
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return "validation failed: " + strings.Join(names, ", ")
}
