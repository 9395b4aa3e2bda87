// Package common holds small string helpers shared across packages.
package common

import "strings"

// HasAny reports whether s contains any of the non-empty substrings.
func HasAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// ErrorHasAny is HasAny over an error message. Some clients report remote
// status codes only as text.
func ErrorHasAny(err error, subs ...string) bool {
	return err != nil && HasAny(err.Error(), subs...)
}
