/*
	Package volume provides the byte-buffer and cluster-granularity accessors every other package in this module reads
	through. A Volume indexes an NTFS image in bytes from a configurable base offset; a ClusterAccessor re-indexes that
	same image in cluster-size units derived from the volume boot record.
*/
package volume

import (
	"fmt"

	"github.com/t9t/ntfsfs/ntfserr"
)

// ByteSource is the capability this module needs from whatever backs an NTFS image: indexed and sliced byte reads
// plus a length. A plain in-memory []byte satisfies it via Volume; mmapvolume.Volume satisfies it over a memory-mapped
// file. Nothing downstream of Volume cares which one it has.
type ByteSource interface {
	// Len returns the number of bytes available.
	Len() int
	// ByteAt returns the byte at index i, failing with an Overrun *ntfserr.Error if i is out of range.
	ByteAt(i int) (byte, error)
	// Slice returns the bytes in [lo, hi), failing with an Overrun *ntfserr.Error if the range is out of bounds.
	Slice(lo, hi int) ([]byte, error)
}

// Volume is a ByteSource over an in-memory buffer, offset from the start of the buffer by a fixed base. The base
// offset lets a caller open a volume that begins partway into a larger disk image (e.g. a single partition inside a
// full-disk image) without copying.
type Volume struct {
	buf    []byte
	offset int
}

// New creates a Volume over buf starting at offset. The Volume does not copy buf; buf must not be mutated for the
// lifetime of the Volume.
func New(buf []byte, offset int) *Volume {
	return &Volume{buf: buf, offset: offset}
}

// Len returns the number of bytes in the volume, i.e. len(buf) - offset.
func (v *Volume) Len() int {
	return len(v.buf) - v.offset
}

// ByteAt returns the byte at volume-relative index i.
func (v *Volume) ByteAt(i int) (byte, error) {
	const op = "volume.Volume.ByteAt"
	if i < 0 || i >= v.Len() {
		return 0, ntfserr.Wrap(op, ntfserr.Overrun, fmt.Errorf("index %d exceeds volume length %d", i, v.Len()))
	}
	return v.buf[v.offset+i], nil
}

// Slice returns the bytes in the volume-relative range [lo, hi).
func (v *Volume) Slice(lo, hi int) ([]byte, error) {
	const op = "volume.Volume.Slice"
	if lo < 0 || hi < lo || hi > v.Len() {
		return nil, ntfserr.Wrap(op, ntfserr.Overrun, fmt.Errorf("range [%d,%d) exceeds volume length %d", lo, hi, v.Len()))
	}
	return v.buf[v.offset+lo : v.offset+hi], nil
}

// ClusterAccessor re-indexes a ByteSource in units of ClusterSize bytes, as derived from the volume boot record (see
// the bootsect package). A single-index read returns the full bytes of one cluster; a slice [a,b) returns bytes
// [a*ClusterSize, b*ClusterSize).
type ClusterAccessor struct {
	source      ByteSource
	clusterSize int
}

// NewClusterAccessor creates a ClusterAccessor over source using the given cluster size in bytes.
func NewClusterAccessor(source ByteSource, clusterSize int) *ClusterAccessor {
	return &ClusterAccessor{source: source, clusterSize: clusterSize}
}

// ClusterSize returns the number of bytes per cluster.
func (c *ClusterAccessor) ClusterSize() int {
	return c.clusterSize
}

// Len returns the number of whole clusters available, i.e. floor(source length / cluster size).
func (c *ClusterAccessor) Len() int {
	return c.source.Len() / c.clusterSize
}

// Cluster returns the bytes of cluster n.
func (c *ClusterAccessor) Cluster(n int64) ([]byte, error) {
	const op = "volume.ClusterAccessor.Cluster"
	lo := n * int64(c.clusterSize)
	hi := lo + int64(c.clusterSize)
	b, err := c.source.Slice(int(lo), int(hi))
	if err != nil {
		return nil, ntfserr.Wrap(op, ntfserr.Overrun, err)
	}
	return b, nil
}

// Slice returns the bytes covering clusters [a, b), i.e. byte range [a*ClusterSize, b*ClusterSize).
func (c *ClusterAccessor) Slice(a, b int64) ([]byte, error) {
	const op = "volume.ClusterAccessor.Slice"
	lo := a * int64(c.clusterSize)
	hi := b * int64(c.clusterSize)
	out, err := c.source.Slice(int(lo), int(hi))
	if err != nil {
		return nil, ntfserr.Wrap(op, ntfserr.Overrun, err)
	}
	return out, nil
}
