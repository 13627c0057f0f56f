package runlist_test

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/t9t/ntfsfs/runlist"
)

func decodeHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestParseAccumulatesAbsoluteLCN(t *testing.T) {
	input := decodeHex(t, "3320c80000000c42e061a4b54507330dc8006fedb142365db3d89cfb32802b3a045b433d830054029301000000000000")

	runs, err := runlist.Parse(input)
	require.NoError(t, err)

	expected := []runlist.Run{
		{LCN: 786432, Count: 51232},
		{LCN: 122795428, Count: 25056},
		{LCN: 117678867, Count: 51213},
		{LCN: 44071878, Count: 23862},
		{LCN: 50036736, Count: 11136},
		{LCN: 76448340, Count: 33597},
	}

	assert.Equal(t, expected, runs)
}

func TestParseEmptyYieldsNoRuns(t *testing.T) {
	runs, err := runlist.Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestParseStopsAtTerminator(t *testing.T) {
	runs, err := runlist.Parse([]byte{0x00, 0xFF, 0xFF})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestParseSparseRun(t *testing.T) {
	// header 0x01 means count length 1, offset length 0 (sparse); count byte 0x05
	runs, err := runlist.Parse([]byte{0x01, 0x05})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Sparse)
	assert.Equal(t, uint64(5), runs[0].Count)
}

func TestParseTruncatedDataFails(t *testing.T) {
	_, err := runlist.Parse([]byte{0x21, 0x05})
	assert.Error(t, err)
}

func TestTotalClusters(t *testing.T) {
	total := runlist.TotalClusters([]runlist.Run{{Count: 3}, {Count: 7}})
	assert.Equal(t, uint64(10), total)
}
