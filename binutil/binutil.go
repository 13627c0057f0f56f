// Package binutil contains some helpful utilities for reading binary data from byte slices.
package binutil

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/t9t/ntfsfs/ntfserr"
)

// Duplicate creates a full copy of the input byte slice.
func Duplicate(in []byte) []byte {
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

// IsOnlyZeroes return true when the input data is all bytes of zero value and false if any of the bytes has a nonzero
// value.
func IsOnlyZeroes(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

// BinReader helps to read data from a byte slice using an offset and a data length (instead two offsets when using
// a slice expression). For example b[2:4] yields the same as Read(2, 2) using a BinReader over b. Also some convenient
// methods are provided to read integer values using a binary.ByteOrder from the slice directly.
//
// Note that methods that return a []byte may not necessarily copy the data, so modifying the returned slice may also
// affect the data in the BinReader.
//
// Methods will panic when any offset or length is outside of the bounds of the original data. Use SafeReader instead
// when the offset or length is derived from the untrusted data being parsed and a recoverable *ntfserr.Error is
// wanted.
type BinReader struct {
	data []byte
	bo   binary.ByteOrder
}

// NewBinReader creates a BinReader over data using the specified binary.ByteOrder. The data slice is stored directly,
// no copy is made, so modifying the original slice will also affect the returned BinReader.
func NewBinReader(data []byte, bo binary.ByteOrder) *BinReader {
	return &BinReader{data: data, bo: bo}
}

// NewLittleEndianReader creates a BinReader over data using binary.LittleEndian. The data slice is stored directly,
// no copy is made, so modifying the original slice will also affect the returned BinReader.
func NewLittleEndianReader(data []byte) *BinReader {
	return NewBinReader(data, binary.LittleEndian)
}

// NewBigEndianReader creates a BinReader over data using binary.BigEndian. The data slice is stored directly,
// no copy is made, so modifying the original slice will also affect the returned BinReader.
func NewBigEndianReader(data []byte) *BinReader {
	return NewBinReader(data, binary.BigEndian)
}

// Data returns all data inside this BinReader.
func (r *BinReader) Data() []byte {
	return r.data
}

// ByteOrder returns the ByteOrder for this BinReader.
func (r *BinReader) ByteOrder() binary.ByteOrder {
	return r.bo
}

// Length returns the length of the contained data.
func (r *BinReader) Length() int {
	return len(r.data)
}

// Read reads an amount of bytes as specified by length from the provided offset. The returned slice's length is the
// same as the specified length.
func (r *BinReader) Read(offset int, length int) []byte {
	return r.data[offset : offset+length]
}

// Reader returns a new BinReader over the data read by Read(offset, length) using the same ByteOrder as this reader.
// There is no guarantee a copy of the data is made, so modifying the new reader's data may affect the original.
func (r *BinReader) Reader(offset int, length int) *BinReader {
	return &BinReader{data: r.data[offset : offset+length], bo: r.bo}
}

// Byte returns the byte at the position indicated by the offset.
func (r *BinReader) Byte(offset int) byte {
	return r.Read(offset, 1)[0]
}

// Int8 returns the signed byte at the position indicated by the offset.
func (r *BinReader) Int8(offset int) int8 {
	return int8(r.Byte(offset))
}

// ReadFrom returns all data starting at the specified offset.
func (r *BinReader) ReadFrom(offset int) []byte {
	return r.data[offset:]
}

// ReaderFrom returns a BinReader over the data read by ReadFrom(offset) using the same ByteOrder as this reader.
// There is no guarantee a copy of the data is made, so modifying the new reader's data may affect the original.
func (r *BinReader) ReaderFrom(offset int) *BinReader {
	return &BinReader{data: r.data[offset:], bo: r.bo}
}

// Uint16 reads 2 bytes from the provided offset and parses them into a uint16 using the provided ByteOrder.
func (r *BinReader) Uint16(offset int) uint16 {
	return r.bo.Uint16(r.Read(offset, 2))
}

// Int16 reads 2 bytes from the provided offset and parses them into a signed int16.
func (r *BinReader) Int16(offset int) int16 {
	return int16(r.Uint16(offset))
}

// Uint32 reads 4 bytes from the provided offset and parses them into a uint32 using the provided ByteOrder.
func (r *BinReader) Uint32(offset int) uint32 {
	return r.bo.Uint32(r.Read(offset, 4))
}

// Int32 reads 4 bytes from the provided offset and parses them into a signed int32.
func (r *BinReader) Int32(offset int) int32 {
	return int32(r.Uint32(offset))
}

// Uint64 reads 8 bytes from the provided offset and parses them into a uint64 using the provided ByteOrder.
func (r *BinReader) Uint64(offset int) uint64 {
	return r.bo.Uint64(r.Read(offset, 8))
}

// Int64 reads 8 bytes from the provided offset and parses them into a signed int64.
func (r *BinReader) Int64(offset int) int64 {
	return int64(r.Uint64(offset))
}

// SafeReader wraps a byte slice and returns an *ntfserr.Error (Kind Overrun) instead of panicking when a read would
// go out of bounds. Use this at the boundary where offsets and lengths come from the data being parsed rather than
// from a caller who already validated them.
type SafeReader struct {
	data []byte
	bo   binary.ByteOrder
}

// NewSafeLittleEndianReader creates a SafeReader over data using binary.LittleEndian.
func NewSafeLittleEndianReader(data []byte) *SafeReader {
	return &SafeReader{data: data, bo: binary.LittleEndian}
}

// Len returns the length of the contained data.
func (r *SafeReader) Len() int {
	return len(r.data)
}

// Read reads length bytes starting at offset, failing with an Overrun *ntfserr.Error if that range is out of bounds.
func (r *SafeReader) Read(offset, length int) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > len(r.data) {
		return nil, ntfserr.Wrap("binutil.SafeReader.Read", ntfserr.Overrun,
			fmt.Errorf("offset %d, length %d exceeds source length %d", offset, length, len(r.data)))
	}
	return r.data[offset : offset+length], nil
}

// Uint16 reads a little-endian uint16 at offset.
func (r *SafeReader) Uint16(offset int) (uint16, error) {
	b, err := r.Read(offset, 2)
	if err != nil {
		return 0, err
	}
	return r.bo.Uint16(b), nil
}

// Uint32 reads a little-endian uint32 at offset.
func (r *SafeReader) Uint32(offset int) (uint32, error) {
	b, err := r.Read(offset, 4)
	if err != nil {
		return 0, err
	}
	return r.bo.Uint32(b), nil
}

// Uint64 reads a little-endian uint64 at offset.
func (r *SafeReader) Uint64(offset int) (uint64, error) {
	b, err := r.Read(offset, 8)
	if err != nil {
		return 0, err
	}
	return r.bo.Uint64(b), nil
}

// ntfsEpoch is the start of the Windows FILETIME epoch: 1601-01-01T00:00:00Z.
var ntfsEpoch = time.Date(1601, time.January, 1, 0, 0, 0, 0, time.UTC)

// unixEpochSentinel is substituted by callers (see the mft package) when ConvertFileTime reports a *ntfserr.Error of
// Kind Value, i.e. when the on-disk value cannot be represented as a civil time.Time.
var unixEpochSentinel = time.Unix(0, 0).UTC()

// UnixEpochSentinel returns the 1970-01-01T00:00:00Z sentinel used in place of unrepresentable FILETIME values.
func UnixEpochSentinel() time.Time {
	return unixEpochSentinel
}

// maxFileTimeTicks is the largest FILETIME tick count ConvertFileTime accepts: the largest value a signed 64-bit
// FILETIME can hold. Larger tick counts are reported as out of range.
const maxFileTimeTicks = uint64(1)<<63 - 1

// ConvertFileTime converts a raw Windows FILETIME value (100-nanosecond ticks since 1601-01-01) into a time.Time. If
// the value cannot be represented, it returns the zero time.Time and a *ntfserr.Error of Kind Value; callers that want
// to present a valid timestamp regardless should substitute UnixEpochSentinel() in that case.
func ConvertFileTime(ticks uint64) (time.Time, error) {
	if ticks > maxFileTimeTicks {
		return time.Time{}, ntfserr.Wrap("binutil.ConvertFileTime", ntfserr.Value,
			fmt.Errorf("tick count %d is out of representable range", ticks))
	}
	// 100ns ticks; split into whole seconds and a nanosecond remainder and let time.Unix combine them, which stays in
	// range for any ticks value up to maxFileTimeTicks (a time.Duration would overflow past roughly 292 years).
	const ticksPerSecond = 10_000_000
	seconds := int64(ticks / ticksPerSecond)
	nanos := int64(ticks%ticksPerSecond) * 100
	return time.Unix(ntfsEpoch.Unix()+seconds, nanos).UTC(), nil
}
