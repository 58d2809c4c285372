// Package keycodec implements the total-ordered byte encoding used for
// every shard map key type (spec.md §4.1): fixed width for numeric, time
// and UUID keys, and length-prefixed components for composite keys. The encoded
// byte strings are the on-disk and wire format for mapping rows: unsigned
// lexicographic order on the encoding must match the natural order of the
// decoded value, for every supported type.
package keycodec

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// KeyType identifies one of the supported shard map key types.
type KeyType int

const (
	// KeyTypeInt32 is a signed 32-bit integer.
	KeyTypeInt32 KeyType = iota
	// KeyTypeInt64 is a signed 64-bit integer.
	KeyTypeInt64
	// KeyTypeUUID is a 128-bit UUID.
	KeyTypeUUID
	// KeyTypeBinary is a variable-length byte string.
	KeyTypeBinary
	// KeyTypeDateTime is a tick-precision timestamp (UTC instant).
	KeyTypeDateTime
	// KeyTypeDateTimeOffset is a timestamp with a minute offset.
	KeyTypeDateTimeOffset
	// KeyTypeTimeSpan is a tick-precision duration.
	KeyTypeTimeSpan
	// KeyTypeComposite is an ordered tuple of two sub-keys (SPEC_FULL §4.1
	// domain addition), used by range maps keyed on compound tenant ids.
	KeyTypeComposite
)

// ticksPerSecond matches the "tick" unit used throughout spec.md §4.1
// (100ns ticks, the same granularity the source catalog used for time and
// duration keys).
const ticksPerSecond = 10_000_000

// Ticks converts a time.Duration to the tick count used for encoding.
func Ticks(d time.Duration) int64 {
	return int64(d) / 100
}

// TicksFromTime converts an absolute instant to its tick count since the
// Unix epoch.
func TicksFromTime(t time.Time) int64 {
	return t.UnixNano() / 100
}

// TimeFromTicks converts ticks since the Unix epoch back to a time.Time.
func TimeFromTicks(ticks int64) time.Time {
	return time.Unix(0, ticks*100).UTC()
}

// CompositeKey is an ordered tuple of sub-keys, each tagged with its own
// KeyType, used for KeyTypeComposite.
type CompositeKey struct {
	Types  []KeyType
	Values []any
}

// Encode produces the ordered byte encoding for value, interpreted as type t.
//
// The two infinity sentinels are positional, not content-based: both are
// the empty byte slice, and callers use NegativeInfinity/PositiveInfinity
// explicitly when they mean the open bound of a range. Encode never returns
// the empty slice for a numeric or time value: the minimum representable
// value encodes as its full width of zero bytes (e.g. four zero bytes for
// math.MinInt32), which sorts just above negative infinity.
func Encode(t KeyType, value any) ([]byte, error) {
	switch t {
	case KeyTypeInt32:
		v, ok := value.(int32)
		if !ok {
			return nil, fmt.Errorf("keycodec: expected int32, got %T", value)
		}
		return encodeInt64(int64(v), 4), nil
	case KeyTypeInt64:
		v, ok := value.(int64)
		if !ok {
			return nil, fmt.Errorf("keycodec: expected int64, got %T", value)
		}
		return encodeInt64(v, 8), nil
	case KeyTypeUUID:
		v, ok := value.(uuid.UUID)
		if !ok {
			return nil, fmt.Errorf("keycodec: expected uuid.UUID, got %T", value)
		}
		return encodeUUID(v), nil
	case KeyTypeBinary:
		v, ok := value.([]byte)
		if !ok {
			return nil, fmt.Errorf("keycodec: expected []byte, got %T", value)
		}
		return normalizeBinary(v), nil
	case KeyTypeDateTime:
		v, ok := value.(time.Time)
		if !ok {
			return nil, fmt.Errorf("keycodec: expected time.Time, got %T", value)
		}
		return encodeInt64(TicksFromTime(v), 8), nil
	case KeyTypeDateTimeOffset:
		v, ok := value.(time.Time)
		if !ok {
			return nil, fmt.Errorf("keycodec: expected time.Time, got %T", value)
		}
		_, offsetSeconds := v.Zone()
		offsetMinutes := int32(offsetSeconds / 60)
		instant := encodeInt64(TicksFromTime(v), 8)
		offset := encodeInt64(int64(offsetMinutes), 4)
		return append(instant, offset...), nil
	case KeyTypeTimeSpan:
		v, ok := value.(time.Duration)
		if !ok {
			return nil, fmt.Errorf("keycodec: expected time.Duration, got %T", value)
		}
		return encodeInt64(Ticks(v), 8), nil
	case KeyTypeComposite:
		v, ok := value.(CompositeKey)
		if !ok {
			return nil, fmt.Errorf("keycodec: expected CompositeKey, got %T", value)
		}
		return encodeComposite(v)
	default:
		return nil, fmt.Errorf("keycodec: unsupported key type %d", t)
	}
}

// Decode reverses Encode. For KeyTypeBinary, trailing zero bytes stripped by
// normalization on encode are not restored (spec.md §4.1 binary-trailing-zero
// caveat): decode(encode(v)) == v only up to that normalization.
func Decode(t KeyType, data []byte) (any, error) {
	switch t {
	case KeyTypeInt32:
		v, err := decodeInt64(data, 4)
		if err != nil {
			return nil, err
		}
		return int32(v), nil
	case KeyTypeInt64:
		return decodeInt64(data, 8)
	case KeyTypeUUID:
		return decodeUUID(data)
	case KeyTypeBinary:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	case KeyTypeDateTime:
		ticks, err := decodeInt64(data, 8)
		if err != nil {
			return nil, err
		}
		return TimeFromTicks(ticks), nil
	case KeyTypeDateTimeOffset:
		if len(data) != 0 && len(data) != 12 {
			return nil, fmt.Errorf("keycodec: invalid datetimeoffset encoding length %d", len(data))
		}
		if len(data) == 0 {
			return TimeFromTicks(0), nil
		}
		ticks, err := decodeInt64(data[:8], 8)
		if err != nil {
			return nil, err
		}
		offsetMinutes, err := decodeInt64(data[8:], 4)
		if err != nil {
			return nil, err
		}
		loc := time.FixedZone("", int(offsetMinutes)*60)
		return TimeFromTicks(ticks).In(loc), nil
	case KeyTypeTimeSpan:
		ticks, err := decodeInt64(data, 8)
		if err != nil {
			return nil, err
		}
		return time.Duration(ticks) * 100, nil
	default:
		return nil, fmt.Errorf("keycodec: unsupported key type %d for decode", t)
	}
}

// NegativeInfinity is the sentinel encoding for the open lower bound of the
// key domain: the empty byte string.
func NegativeInfinity() []byte { return []byte{} }

// PositiveInfinity is the sentinel encoding for the open upper bound of a
// range. It shares its byte representation with NegativeInfinity; callers
// disambiguate the two by position (RangeMapping.High vs .Low), exactly as
// spec.md §4.1 specifies.
func PositiveInfinity() []byte { return []byte{} }

// encodeInt64 big-endian-encodes v into width bytes with the sign bit
// flipped, so unsigned byte comparison matches signed integer order.
func encodeInt64(v int64, width int) []byte {
	var flipped uint64
	switch width {
	case 4:
		flipped = uint64(uint32(v) ^ 0x80000000)
	case 8:
		flipped = uint64(v) ^ 0x8000000000000000
	default:
		panic(fmt.Sprintf("keycodec: unsupported int width %d", width))
	}
	buf := make([]byte, width)
	switch width {
	case 4:
		binary.BigEndian.PutUint32(buf, uint32(flipped))
	case 8:
		binary.BigEndian.PutUint64(buf, flipped)
	}
	return buf
}

func decodeInt64(data []byte, width int) (int64, error) {
	if len(data) != width {
		return 0, fmt.Errorf("keycodec: expected %d-byte encoding, got %d", width, len(data))
	}
	switch width {
	case 4:
		flipped := binary.BigEndian.Uint32(data) ^ 0x80000000
		return int64(int32(flipped)), nil
	case 8:
		flipped := binary.BigEndian.Uint64(data) ^ 0x8000000000000000
		return int64(flipped), nil
	default:
		return 0, fmt.Errorf("keycodec: unsupported int width %d", width)
	}
}

// encodeUUID lays the 16 bytes out in the engine's native sort order rather
// than RFC 4122 byte order: the first three fields (time-low, time-mid,
// time-hi-and-version) are byte-swapped to big-endian-of-their-own-width so
// that lexicographic byte comparison matches SQL Server's UNIQUEIDENTIFIER
// ORDER BY semantics, which this catalog's on-disk format is pinned to
// (spec.md §4.1 "matches the database engine's sort order for that type").
func encodeUUID(v uuid.UUID) []byte {
	b := v // [16]byte
	out := make([]byte, 16)
	// time_low: bytes 0-3, reversed
	out[0], out[1], out[2], out[3] = b[3], b[2], b[1], b[0]
	// time_mid: bytes 4-5, reversed
	out[4], out[5] = b[5], b[4]
	// time_hi_and_version: bytes 6-7, reversed
	out[6], out[7] = b[7], b[6]
	// clock_seq + node: bytes 8-15, verbatim
	copy(out[8:], b[8:])
	return out
}

func decodeUUID(data []byte) (uuid.UUID, error) {
	if len(data) != 16 {
		return uuid.UUID{}, fmt.Errorf("keycodec: invalid uuid encoding length %d", len(data))
	}
	var out uuid.UUID
	out[3], out[2], out[1], out[0] = data[0], data[1], data[2], data[3]
	out[5], out[4] = data[4], data[5]
	out[7], out[6] = data[6], data[7]
	copy(out[8:], data[8:])
	return out, nil
}

// normalizeBinary strips trailing zero bytes: spec.md §4.1 states they are
// "not significant" and must be normalized away on re-encoding so that two
// binary values differing only in trailing zero padding compare equal and
// occupy the same region.
func normalizeBinary(v []byte) []byte {
	end := len(v)
	for end > 0 && v[end-1] == 0 {
		end--
	}
	out := make([]byte, end)
	copy(out, v[:end])
	return out
}

func encodeComposite(v CompositeKey) ([]byte, error) {
	if len(v.Types) != len(v.Values) {
		return nil, fmt.Errorf("keycodec: composite key type/value length mismatch")
	}
	var out []byte
	for i, t := range v.Types {
		enc, err := Encode(t, v.Values[i])
		if err != nil {
			return nil, fmt.Errorf("keycodec: composite component %d: %w", i, err)
		}
		if len(enc) > math.MaxUint16 {
			return nil, fmt.Errorf("keycodec: composite component %d too large to frame", i)
		}
		lenPrefix := make([]byte, 2)
		binary.BigEndian.PutUint16(lenPrefix, uint16(len(enc)))
		out = append(out, lenPrefix...)
		out = append(out, enc...)
	}
	return out, nil
}
