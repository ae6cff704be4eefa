// Package argkey turns a memoized call into a deterministic cache key.
//
// The key is the wrapped function's identity id followed by one encoded
// segment per argument. Primitives serialize to short tagged literals;
// reference types delegate to the identity Registry; oversized or
// non-comparable values fall back to hashing. Keys are deterministic for the
// same inputs but not cryptographically collision-free.
package argkey

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/ostrenko/memofn/internal/lib/errs"
)

// Maximum length for a raw string segment before it is hashed.
const maxRawLen = 100

// sep joins per-argument segments. No primitive encoding can produce it:
// strings containing it take the quoted form.
const sep = byte(0x1f)

var (
	// ErrMarshalJSON indicates a failure to marshal a fallback value to JSON.
	ErrMarshalJSON = fmt.Errorf("error marshalling to JSON")

	// ErrBuildKey indicates a failure to build a cache key from an argument.
	ErrBuildKey = fmt.Errorf("error building cache key")
)

// Build returns the composite cache key for one call of the function
// identified by fnID. A zero-argument call keys on the bare function id.
func Build(reg *Registry, fnID string, args []any) (string, error) {
	if len(args) == 0 {
		return fnID, nil
	}
	var b strings.Builder
	b.WriteString(fnID)
	for _, arg := range args {
		enc, err := encodeValue(reg, arg)
		if err != nil {
			return "", errs.NewError(ErrBuildKey, map[string]interface{}{
				"operation": "building cache key",
				"value":     arg,
				"error":     err,
			})
		}
		b.WriteByte(sep)
		b.WriteString(enc)
	}
	return b.String(), nil
}

// encodeValue encodes a single argument. The first matching branch wins;
// every branch produces a tag no other branch can produce.
func encodeValue(reg *Registry, v interface{}) (string, error) {
	switch val := v.(type) {
	case nil:
		return "nil", nil

	case context.Context:
		// Contexts are not serializable; all contexts key alike.
		return "ctx", nil

	case bool:
		if val {
			return "b:true", nil
		}
		return "b:false", nil

	case int, int8, int16, int32, int64:
		return "i:" + fmt.Sprint(val), nil

	case uint, uint8, uint16, uint32, uint64, uintptr:
		return "u:" + fmt.Sprint(val), nil

	case float32:
		return encodeFloat(float64(val)), nil

	case float64:
		return encodeFloat(val), nil

	case *big.Int:
		// Tagged so a big integer can never collide with an ordinary one.
		return "B:" + val.String(), nil

	case string:
		return encodeString(val), nil

	case fmt.Stringer:
		return encodeString(val.String()), nil

	default:
		return encodeRef(reg, v)
	}
}

// encodeFloat gives NaN and negative zero canonical forms that round-trip
// distinctly from each other and from ordinary zero.
func encodeFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "F:NaN"
	case f == 0 && math.Signbit(f):
		return "F:-0"
	default:
		return "F:" + strconv.FormatFloat(f, 'g', -1, 64)
	}
}

// encodeString keeps short delimiter-free strings raw, quotes strings that
// would be ambiguous, and hashes oversized ones to bound key length.
func encodeString(s string) string {
	if len(s) > maxRawLen {
		return "h:" + hashString(s)
	}
	if strings.IndexByte(s, sep) >= 0 {
		return "q:" + strconv.Quote(s)
	}
	return "s:" + s
}

// encodeRef encodes values with reference or composite identity via the
// Registry. Non-comparable aggregates passed by value have no identity to
// speak of and fall back to a serialized form.
func encodeRef(reg *Registry, v interface{}) (string, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func:
		return reg.FuncID(v), nil
	case reflect.Pointer, reflect.UnsafePointer, reflect.Chan, reflect.Map, reflect.Slice:
		return reg.ObjectID(rv), nil
	default:
		// Value-level check, not type-level: a struct whose interface field
		// holds a slice is comparable by type but not hashable at runtime.
		if rv.Comparable() {
			return reg.ValueID(v), nil
		}
		return encodeComplex(v)
	}
}

// encodeComplex marshals a non-comparable aggregate to JSON and hashes it
// when it is too long for a key segment.
func encodeComplex(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", errs.NewError(ErrMarshalJSON, map[string]interface{}{
			"operation": "encoding complex value to build cache key",
			"value":     v,
			"error":     err,
		})
	}
	if len(data) > maxRawLen {
		return "h:" + hashString(string(data)), nil
	}
	return "j:" + string(data), nil
}

// hashString hashes with xxhash and renders the sum as hex.
func hashString(s string) string {
	return strconv.FormatUint(xxhash.Sum64String(s), 16)
}
