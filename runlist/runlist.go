/*
	Package runlist decodes NTFS data runs: the variable-length signed/unsigned encoding non-resident attributes use to
	describe which clusters on the volume hold their data. A Run's LCN delta is relative to the previous run's absolute
	LCN (the first run's delta is the absolute LCN); Parse does the delta accumulation so callers see absolute
	cluster numbers directly.
*/
package runlist

import (
	"encoding/binary"
	"fmt"

	"github.com/t9t/ntfsfs/binutil"
	"github.com/t9t/ntfsfs/ntfserr"
)

// Run is a single data run: a starting logical cluster number (LCN) on the volume and the number of clusters the run
// covers. A sparse run (one with no allocated clusters backing it) has Sparse set to true; its LCN is meaningless and
// reads against it must be treated as returning zero bytes.
type Run struct {
	LCN     int64
	Count   uint64
	Sparse  bool
}

// Parse decodes b into an ordered sequence of Runs with absolute LCNs. Decoding stops at the first zero header byte,
// per the on-disk terminator convention; trailing bytes after the terminator, if any, are ignored by this function and
// left to the caller.
func Parse(b []byte) ([]Run, error) {
	const op = "runlist.Parse"
	runs := make([]Run, 0)
	lcn := int64(0)
	for len(b) > 0 {
		r := binutil.NewLittleEndianReader(b)
		header := r.Byte(0)
		if header == 0 {
			break
		}

		countLength := int(header &^ 0xF0)
		offsetLength := int(header >> 4)
		dataLength := countLength + offsetLength
		headerAndDataLength := dataLength + 1
		if len(b) < headerAndDataLength {
			return nil, ntfserr.Wrap(op, ntfserr.InvalidRecord,
				fmt.Errorf("expected at least %d bytes of run data but have %d", headerAndDataLength, len(b)))
		}

		data := r.Reader(1, dataLength)
		count := binary.LittleEndian.Uint64(padTo(data.Read(0, countLength), 8))

		sparse := offsetLength == 0
		if !sparse {
			delta := int64(binary.LittleEndian.Uint64(padTo(data.Read(countLength, offsetLength), 8)))
			lcn += delta
		}

		runs = append(runs, Run{LCN: lcn, Count: count, Sparse: sparse})
		b = r.ReadFrom(headerAndDataLength)
	}
	return runs, nil
}

// padTo sign-extends (for the high bit set) or zero-extends data out to length bytes, so a variable-width little-endian
// run field can be read with a fixed-width binary.LittleEndian.Uint64.
func padTo(data []byte, length int) []byte {
	if len(data) >= length {
		return data
	}
	result := make([]byte, length)
	if len(data) == 0 {
		return result
	}
	copy(result, data)
	if data[len(data)-1]&0x80 == 0x80 {
		for i := len(data); i < length; i++ {
			result[i] = 0xFF
		}
	}
	return result
}

// TotalClusters returns the sum of every run's cluster count.
func TotalClusters(runs []Run) uint64 {
	total := uint64(0)
	for _, r := range runs {
		total += r.Count
	}
	return total
}
