// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remotevar

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/bureau-foundation/roomsync/lib/codec"
	"github.com/bureau-foundation/roomsync/lib/compress"
	"github.com/bureau-foundation/roomsync/lib/observable"
)

// Payload is the typed content of a variable.
type Payload interface {
	// Parse replaces the value with the one encoded in remote. On
	// error the value is left unchanged.
	Parse(remote string) error
	// Serialize encodes the current value for the service.
	Serialize() (string, error)
	// Reset restores the declared default.
	Reset()
}

// Value is an observable payload of type T with a string codec. The
// embedded Cell carries Get, Set, and Subscribe.
type Value[T any] struct {
	*observable.Cell[T]
	initial T
	encode  func(T) (string, error)
	decode  func(string) (T, error)
}

var _ Payload = (*Value[string])(nil)

func (v *Value[T]) Parse(remote string) error {
	decoded, err := v.decode(remote)
	if err != nil {
		return err
	}
	v.Set(decoded)
	return nil
}

func (v *Value[T]) Serialize() (string, error) {
	return v.encode(v.Get())
}

func (v *Value[T]) Reset() {
	v.Set(v.initial)
}

// Default returns the declared default value.
func (v *Value[T]) Default() T {
	return v.initial
}

// NewValue builds a payload from an explicit codec. equal decides
// whether a write is a change; comparable types can use
// NewComparableValue instead.
func NewValue[T any](initial T, equal func(a, b T) bool, encode func(T) (string, error), decode func(string) (T, error)) *Value[T] {
	return &Value[T]{
		Cell:    observable.NewFunc(initial, equal),
		initial: initial,
		encode:  encode,
		decode:  decode,
	}
}

// NewComparableValue is NewValue with == as the change test.
func NewComparableValue[T comparable](initial T, encode func(T) (string, error), decode func(string) (T, error)) *Value[T] {
	return &Value[T]{
		Cell:    observable.New(initial),
		initial: initial,
		encode:  encode,
		decode:  decode,
	}
}

// String is a plain text payload. The remote string is the value.
func String(initial string) *Value[string] {
	return NewComparableValue(initial,
		func(value string) (string, error) { return value, nil },
		func(remote string) (string, error) { return remote, nil },
	)
}

// Int is a base-10 integer payload. An empty remote string is zero.
func Int(initial int) *Value[int] {
	return NewComparableValue(initial,
		func(value int) (string, error) { return strconv.Itoa(value), nil },
		func(remote string) (int, error) {
			if remote == "" {
				return 0, nil
			}
			return strconv.Atoi(remote)
		},
	)
}

// Float is a float64 payload using the shortest exact formatting, so
// every finite value round-trips bit for bit. NaN equals NaN for
// change detection; with == a NaN payload would notify on every write.
func Float(initial float64) *Value[float64] {
	return NewValue(initial, floatEqual,
		func(value float64) (string, error) { return strconv.FormatFloat(value, 'g', -1, 64), nil },
		func(remote string) (float64, error) {
			if remote == "" {
				return 0, nil
			}
			return strconv.ParseFloat(remote, 64)
		},
	)
}

func floatEqual(a, b float64) bool {
	return a == b || (a != a && b != b)
}

// Bool is "true" or "false". An empty remote string is false.
func Bool(initial bool) *Value[bool] {
	return NewComparableValue(initial,
		func(value bool) (string, error) { return strconv.FormatBool(value), nil },
		func(remote string) (bool, error) {
			if remote == "" {
				return false, nil
			}
			return strconv.ParseBool(remote)
		},
	)
}

// Time is an RFC 3339 timestamp with nanoseconds. The zero time is
// the empty string. Values compare with time.Time.Equal.
func Time(initial time.Time) *Value[time.Time] {
	return NewValue(initial,
		func(a, b time.Time) bool { return a.Equal(b) },
		func(value time.Time) (string, error) {
			if value.IsZero() {
				return "", nil
			}
			return value.UTC().Format(time.RFC3339Nano), nil
		},
		func(remote string) (time.Time, error) {
			if remote == "" {
				return time.Time{}, nil
			}
			return time.Parse(time.RFC3339Nano, remote)
		},
	)
}

// JSON carries T as JSON text. Two values are equal when they encode
// to the same bytes. An empty remote string decodes to the zero T.
func JSON[T any](initial T) *Value[T] {
	encode := func(value T) ([]byte, error) { return json.Marshal(value) }
	return NewValue(initial,
		encodedEqual(encode),
		func(value T) (string, error) {
			data, err := encode(value)
			if err != nil {
				return "", err
			}
			return string(data), nil
		},
		func(remote string) (T, error) {
			var decoded T
			if remote == "" {
				return decoded, nil
			}
			err := json.Unmarshal([]byte(remote), &decoded)
			return decoded, err
		},
	)
}

// CBOR carries T as deterministic CBOR, framed by lib/compress with
// the given algorithm and base64url-encoded (no padding) into the
// remote string. Use it for structured values too large for JSON
// under the service's value size limit.
func CBOR[T any](initial T, algorithm compress.Algorithm) *Value[T] {
	encode := func(value T) ([]byte, error) { return codec.Marshal(value) }
	return NewValue(initial,
		encodedEqual(encode),
		func(value T) (string, error) {
			data, err := encode(value)
			if err != nil {
				return "", err
			}
			frame, err := compress.Encode(data, algorithm)
			if err != nil {
				return "", err
			}
			return base64.RawURLEncoding.EncodeToString(frame), nil
		},
		func(remote string) (T, error) {
			var decoded T
			if remote == "" {
				return decoded, nil
			}
			frame, err := base64.RawURLEncoding.DecodeString(remote)
			if err != nil {
				return decoded, fmt.Errorf("base64: %w", err)
			}
			data, _, err := compress.Decode(frame)
			if err != nil {
				return decoded, err
			}
			err = codec.Unmarshal(data, &decoded)
			return decoded, err
		},
	)
}

// encodedEqual compares two values by their encodings. Values that
// fail to encode are never equal, so the write goes through and the
// error surfaces on the next Serialize.
func encodedEqual[T any](encode func(T) ([]byte, error)) func(a, b T) bool {
	return func(a, b T) bool {
		left, err := encode(a)
		if err != nil {
			return false
		}
		right, err := encode(b)
		if err != nil {
			return false
		}
		return bytes.Equal(left, right)
	}
}
