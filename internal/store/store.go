// Package store wraps the database behind the identity, conversation
// and message resolvers. The database is the single serialization
// point: unique constraints on phone and provider message id make
// lookup-then-create safe under concurrent webhook deliveries.
package store

import "errors"

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicateProviderID is returned when a message insert hits
	// the provider-message-id unique index. Callers treat it as an
	// idempotency signal, not a failure.
	ErrDuplicateProviderID = errors.New("store: duplicate provider message id")

	// ErrDuplicatePhone is returned when a contact insert hits the
	// phone unique index.
	ErrDuplicatePhone = errors.New("store: duplicate phone")

	// ErrDuplicateShortcut is returned when a quick reply insert hits
	// the shortcut unique index.
	ErrDuplicateShortcut = errors.New("store: duplicate shortcut")
)

// Truncate bounds a preview string to max runes.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
