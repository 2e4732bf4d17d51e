package model

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var ErrValidation = errors.New("validation failed")

var (
	nameRe       = regexp.MustCompile(`^[\p{L}\s'-]+$`)
	nationalIDRe = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	phoneRe      = regexp.MustCompile(`^[0-9]{10}$`)
	emailRe      = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// ValidationError maps field names to messages.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type Validation struct {
	fields map[string]string
}

func NewValidation() *Validation {
	return &Validation{fields: map[string]string{}}
}

func (v *Validation) Add(field, msg string) {
	if _, ok := v.fields[field]; !ok {
		v.fields[field] = msg
	}
}

func (v *Validation) Err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}

func validPhone(s string) bool {
	return phoneRe.MatchString(s)
}
