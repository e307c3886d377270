package protocol

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Structured payloads are CBOR. Encoding uses the deterministic core profile so
// the same record always produces the same bytes; maps decode with string keys.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("protocol: cbor encoder: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("protocol: cbor decoder: %v", err))
	}
}

// Record is a decoded structured payload.
type Record map[string]any

// Marshal encodes v as a structured payload.
func Marshal(v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode payload: %w", err)
	}
	return b, nil
}

// Unmarshal decodes a structured payload into v.
// Any decode failure is reported as ErrBadPayload.
func Unmarshal(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

// DecodeRecord decodes a payload that must be a map.
func DecodeRecord(data []byte) (Record, error) {
	var rec map[string]any
	if err := Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: not a map", ErrBadPayload)
	}
	return Record(rec), nil
}

// Int returns the integer stored under key.
func (r Record) Int(key string) (int64, bool) {
	return AsInt(r[key])
}

// String returns the string stored under key.
func (r Record) String(key string) (string, bool) {
	s, ok := r[key].(string)
	return s, ok
}

// AsInt converts a decoded CBOR number to int64.
func AsInt(v any) (int64, bool) {
	switch n := v.(type) {
	case uint64:
		if n > 1<<63-1 {
			return 0, false
		}
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	default:
		return 0, false
	}
}
