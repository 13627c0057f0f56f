/*
	Package mmapvolume provides a volume.ByteSource backed by a memory-mapped file, for opening NTFS images too large
	to comfortably read into a single in-memory buffer. It implements the same capability interface as volume.Volume,
	so everything above the volume package is indifferent to which one backs a given Filesystem.
*/
package mmapvolume

import (
	"fmt"

	"github.com/t9t/ntfsfs/ntfserr"
	"golang.org/x/exp/mmap"
)

// Volume is a volume.ByteSource over a memory-mapped file, offset from the start of the file by a fixed base. Close
// must be called once the Volume is no longer in use to unmap the file.
type Volume struct {
	reader *mmap.ReaderAt
	offset int
}

// Open memory-maps the file at path and returns a Volume over it starting at offset.
func Open(path string, offset int) (*Volume, error) {
	const op = "mmapvolume.Open"
	r, err := mmap.Open(path)
	if err != nil {
		return nil, ntfserr.Wrap(op, ntfserr.CorruptFilesystem, err)
	}
	return &Volume{reader: r, offset: offset}, nil
}

// Close unmaps the underlying file. It is safe to call once; the Volume must not be used afterward.
func (v *Volume) Close() error {
	return v.reader.Close()
}

// Len returns the number of bytes in the volume, i.e. the mapped file size minus offset.
func (v *Volume) Len() int {
	return v.reader.Len() - v.offset
}

// ByteAt returns the byte at volume-relative index i.
func (v *Volume) ByteAt(i int) (byte, error) {
	const op = "mmapvolume.Volume.ByteAt"
	if i < 0 || i >= v.Len() {
		return 0, ntfserr.Wrap(op, ntfserr.Overrun, fmt.Errorf("index %d exceeds volume length %d", i, v.Len()))
	}
	var b [1]byte
	if _, err := v.reader.ReadAt(b[:], int64(v.offset+i)); err != nil {
		return 0, ntfserr.Wrap(op, ntfserr.Overrun, err)
	}
	return b[0], nil
}

// Slice returns the bytes in the volume-relative range [lo, hi), copied out of the mapping.
func (v *Volume) Slice(lo, hi int) ([]byte, error) {
	const op = "mmapvolume.Volume.Slice"
	if lo < 0 || hi < lo || hi > v.Len() {
		return nil, ntfserr.Wrap(op, ntfserr.Overrun, fmt.Errorf("range [%d,%d) exceeds volume length %d", lo, hi, v.Len()))
	}
	out := make([]byte, hi-lo)
	if _, err := v.reader.ReadAt(out, int64(v.offset+lo)); err != nil {
		return nil, ntfserr.Wrap(op, ntfserr.Overrun, err)
	}
	return out, nil
}
