package model

import (
	"errors"
	"strings"
)

// StatePrefix marks an input value as a reference into the state store.
const StatePrefix = "@state:"

// ErrMalformedStateRef is returned for "@state:" references without a key.
var ErrMalformedStateRef = errors.New("malformed @state reference")

// StateRef reports whether v is a state reference and returns its key.
// ok is true for any string carrying the prefix; callers must reject an
// empty key with ErrMalformedStateRef.
func StateRef(v any) (key string, ok bool) {
	s, isString := v.(string)
	if !isString || !strings.HasPrefix(s, StatePrefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(s, StatePrefix)), true
}
