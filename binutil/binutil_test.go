package binutil_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/t9t/ntfsfs/binutil"
	"github.com/t9t/ntfsfs/ntfserr"
)

func TestIsOnlyZeroesYes(t *testing.T) {
	assert.True(t, binutil.IsOnlyZeroes([]byte{0, 0, 0, 0, 0, 0}))
}

func TestIsOnlyZeroesNo(t *testing.T) {
	assert.False(t, binutil.IsOnlyZeroes([]byte{0, 0, 0, 0, 0, 1}))
}

func TestBinReaderSignedInts(t *testing.T) {
	r := binutil.NewLittleEndianReader([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
	assert.Equal(t, int8(-1), r.Int8(0))
	assert.Equal(t, int16(-1), r.Int16(0))
	assert.Equal(t, int32(-1), r.Int32(0))
	assert.Equal(t, int64(-1), r.Int64(0))
}

func TestSafeReaderReadInBounds(t *testing.T) {
	r := binutil.NewSafeLittleEndianReader([]byte{1, 2, 3, 4})
	b, err := r.Read(1, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 3}, b)
}

func TestSafeReaderReadOutOfBoundsReportsOverrun(t *testing.T) {
	r := binutil.NewSafeLittleEndianReader([]byte{1, 2, 3, 4})
	_, err := r.Read(3, 4)
	require.Error(t, err)
	assert.True(t, ntfserr.Is(err, ntfserr.Overrun))
}

func TestSafeReaderUint32(t *testing.T) {
	r := binutil.NewSafeLittleEndianReader([]byte{0x01, 0x00, 0x00, 0x00})
	v, err := r.Uint32(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v)
}

func TestConvertFileTimeEpoch(t *testing.T) {
	tm, err := binutil.ConvertFileTime(0)
	require.NoError(t, err)
	assert.Equal(t, time.Date(1601, time.January, 1, 0, 0, 0, 0, time.UTC), tm)
}

func TestConvertFileTimeIsAfterEpoch(t *testing.T) {
	const ticks = uint64(0x01D9C2A1B8A9CD00)
	tm, err := binutil.ConvertFileTime(ticks)
	require.NoError(t, err)
	assert.True(t, tm.After(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestConvertFileTimeOutOfRangeIsValueError(t *testing.T) {
	_, err := binutil.ConvertFileTime(^uint64(0))
	require.Error(t, err)
	assert.True(t, ntfserr.Is(err, ntfserr.Value))
}

func TestUnixEpochSentinel(t *testing.T) {
	assert.Equal(t, time.Unix(0, 0).UTC(), binutil.UnixEpochSentinel())
}
