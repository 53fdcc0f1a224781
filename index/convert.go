package index

import (
	"reflect"
	"strings"
)

const maxHashLength = 256

// NormalizeHash lower-cases a hex key and strips an optional 0x prefix.
// It returns false for anything that is not non-empty hex.
func NormalizeHash(value string) (string, bool) {
	value = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(value)), "0x")
	if len(value) == 0 || len(value) > maxHashLength {
		return "", false
	}
	for _, ch := range value {
		if !(ch >= '0' && ch <= '9' || ch >= 'a' && ch <= 'f') {
			return "", false
		}
	}
	return value, true
}

func HashConverter(value string) reflect.Value {
	if res, ok := NormalizeHash(value); ok {
		return reflect.ValueOf(HashType(res))
	}
	return reflect.Value{}
}

func AddressHashConverter(value string) reflect.Value {
	if res, ok := NormalizeHash(value); ok {
		return reflect.ValueOf(AddressHash(res))
	}
	return reflect.Value{}
}
