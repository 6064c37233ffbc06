// Package ptrx has the pointer helpers used when building partial updates
// and optional request fields, where nil means "leave the field alone".
package ptrx

import "time"

// To returns a pointer to v.
func To[T any](v T) *T {
	return &v
}

// Value returns the value behind v, or the zero value if v is nil.
func Value[T any](v *T) T {
	if v != nil {
		return *v
	}
	var zero T
	return zero
}

// ValueOr returns the value behind v, or def if v is nil.
func ValueOr[T any](v *T, def T) T {
	if v != nil {
		return *v
	}
	return def
}

// String returns a pointer to v, or nil when v is empty. Optional request
// fields map to nullable columns through this.
func String(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// Time returns a pointer to v, or nil when v is the zero time.
func Time(v time.Time) *time.Time {
	if v.IsZero() {
		return nil
	}
	return &v
}
