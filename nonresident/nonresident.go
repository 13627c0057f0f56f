/*
	Package nonresident presents a runlist (runlist.Run) as a single logically contiguous, indexable byte sequence, even
	though the underlying clusters may be scattered (or, for sparse runs, not allocated at all) across the volume. This
	is how a non-resident MFT attribute's data — most importantly the $MFT's own $DATA attribute, and any regular file's
	$DATA attribute — gets read.
*/
package nonresident

import (
	"fmt"

	"github.com/t9t/ntfsfs/ntfserr"
	"github.com/t9t/ntfsfs/runlist"
	"github.com/t9t/ntfsfs/volume"
)

// ToEnd is the sentinel hi value meaning "slice to the end of the view", mirroring the "to end" sentinel described for
// non-resident view slicing.
const ToEnd = int(^uint(0) >> 1)

// View is a read-only byte sequence backed by a volume.ClusterAccessor and an ordered list of runlist.Run entries. It
// implements volume.ByteSource so it can itself be the backing store for, e.g., an attribute list in another record or
// the MFT's own data when treated virtually instead of being materialized into a single buffer.
type View struct {
	clusters *volume.ClusterAccessor
	runs     []runlist.Run
	length   int
}

// New constructs a View over clusters using runs. All of a run's bytes are clusterSize * run.Count long; sparse runs
// contribute that many zero bytes without consulting the cluster accessor.
func New(clusters *volume.ClusterAccessor, runs []runlist.Run) *View {
	length := 0
	for _, r := range runs {
		length += int(r.Count) * clusters.ClusterSize()
	}
	return &View{clusters: clusters, runs: runs, length: length}
}

// Len returns the total byte length of the view: the sum of every run's cluster count times the cluster size.
func (v *View) Len() int {
	return v.length
}

// ByteAt returns the byte at index i, walking runs to find the one that contains it. Sparse runs yield zero bytes.
func (v *View) ByteAt(i int) (byte, error) {
	const op = "nonresident.View.ByteAt"
	if i < 0 || i >= v.length {
		return 0, ntfserr.Wrap(op, ntfserr.Overrun, fmt.Errorf("index %d exceeds view length %d", i, v.length))
	}
	clusterSize := v.clusters.ClusterSize()
	runStart := 0
	for _, r := range v.runs {
		runLength := int(r.Count) * clusterSize
		if i < runStart+runLength {
			if r.Sparse {
				return 0, nil
			}
			offsetInRun := i - runStart
			clusterIndex := r.LCN + int64(offsetInRun/clusterSize)
			b, err := v.clusters.Cluster(clusterIndex)
			if err != nil {
				return 0, ntfserr.Wrap(op, ntfserr.Overrun, err)
			}
			return b[offsetInRun%clusterSize], nil
		}
		runStart += runLength
	}
	return 0, ntfserr.New(op, ntfserr.Overrun)
}

// Slice returns the bytes in [lo, hi). Negative lo or hi are interpreted relative to the end of the view (len+i), as
// is conventional for slice-style APIs; hi == ToEnd means "through the last byte". Sparse runs within the requested
// range contribute zero bytes. Fails with an Overrun *ntfserr.Error if lo > hi or the normalized range exceeds the
// view length.
func (v *View) Slice(lo, hi int) ([]byte, error) {
	const op = "nonresident.View.Slice"
	n := v.length
	if hi == ToEnd {
		hi = n
	}
	if lo < 0 {
		lo += n
	}
	if hi < 0 {
		hi += n
	}
	if lo < 0 || hi > n || lo > hi {
		return nil, ntfserr.Wrap(op, ntfserr.Overrun, fmt.Errorf("range [%d,%d) invalid for view length %d", lo, hi, n))
	}

	out := make([]byte, 0, hi-lo)
	clusterSize := v.clusters.ClusterSize()
	runStart := 0
	for _, r := range v.runs {
		runLength := int(r.Count) * clusterSize
		runEnd := runStart + runLength

		overlapLo := max(lo, runStart)
		overlapHi := min(hi, runEnd)
		if overlapLo < overlapHi {
			if r.Sparse {
				out = append(out, make([]byte, overlapHi-overlapLo)...)
			} else {
				startClusterOffset := overlapLo - runStart
				endClusterOffset := overlapHi - runStart
				runBytes, err := v.clusters.Slice(r.LCN, r.LCN+int64(r.Count))
				if err != nil {
					return nil, ntfserr.Wrap(op, ntfserr.Overrun, err)
				}
				out = append(out, runBytes[startClusterOffset:endClusterOffset]...)
			}
		}

		runStart = runEnd
		if runStart >= hi {
			break
		}
	}
	return out, nil
}
