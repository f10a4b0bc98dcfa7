package ir

import (
	"reflect"
	"slices"
	"unicode/utf16"
)

// UndefinedValue is the type of Undefined.
type UndefinedValue struct{}

// String renders Undefined for logs and CLI output.
func (UndefinedValue) String() string {
	return "undefined"
}

// Undefined is the value of a property that was declared but never assigned,
// and the value delivered to a reactive function for an input name that does
// not resolve to any declared property.
//
// nil is a legitimate assigned value and is NOT the same as Undefined.
var Undefined = UndefinedValue{}

// IsUndefined reports whether v is Undefined.
func IsUndefined(v any) bool {
	_, ok := v.(UndefinedValue)
	return ok
}

// Equal reports whether two property values are the same for change detection.
//
// Comparable types use ==; maps, slices and other non-comparable values use
// reflect.DeepEqual. A struct or array whose interface fields hold
// non-comparable values also falls back to reflect.DeepEqual.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		if eq, ok := shallowEqual(a, b); ok {
			return eq
		}
	}
	return reflect.DeepEqual(a, b)
}

// shallowEqual is a == b. ok is false when == panicked on a dynamic value
// that is not comparable.
func shallowEqual(a, b any) (eq, ok bool) {
	defer func() {
		if recover() != nil {
			eq, ok = false, false
		}
	}()
	return a == b, true
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// CRITICAL: Go's sort.Strings uses UTF-8 which produces DIFFERENT order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	default:
		return 0
	}
}
