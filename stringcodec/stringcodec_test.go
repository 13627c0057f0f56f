package stringcodec_test

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/t9t/ntfsfs/stringcodec"
)

func TestDecodeStringAscii(t *testing.T) {
	input, err := hex.DecodeString("6e00740066007300") // "ntfs"
	require.NoError(t, err)
	out, err := stringcodec.DecodeString(input)
	require.NoError(t, err)
	assert.Equal(t, "ntfs", out)
}

func TestDecodeStringOddLengthFails(t *testing.T) {
	_, err := stringcodec.DecodeString([]byte{0x6e, 0x00, 0x74})
	assert.Error(t, err)
}

func TestValidAcceptsPlausibleText(t *testing.T) {
	input, err := hex.DecodeString("6e00740066007300")
	require.NoError(t, err)
	assert.True(t, stringcodec.Valid(input))
}

func TestValidRejectsOddLength(t *testing.T) {
	assert.False(t, stringcodec.Valid([]byte{0x6e, 0x00, 0x74}))
}
