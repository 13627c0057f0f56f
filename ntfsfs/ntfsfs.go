/*
	Package ntfsfs is the filesystem facade: given a byte source holding an NTFS volume, Open decodes the boot sector,
	locates and materializes the Master File Table, and returns a Filesystem from which the namespace (files,
	directories, paths) and file data are reachable without the caller ever touching mft, mftidx, or runlist directly.
*/
package ntfsfs

import (
	"fmt"
	"log/slog"

	"github.com/t9t/ntfsfs/bootsect"
	"github.com/t9t/ntfsfs/mft"
	"github.com/t9t/ntfsfs/mftenum"
	"github.com/t9t/ntfsfs/nonresident"
	"github.com/t9t/ntfsfs/ntfserr"
	"github.com/t9t/ntfsfs/runlist"
	"github.com/t9t/ntfsfs/volume"
)

// MaterializationPolicy controls whether the $MFT's data is copied into memory up front or read lazily through a
// virtual non-resident view.
type MaterializationPolicy int

const (
	// Auto copies the MFT into memory when it's at most 500MiB, and otherwise operates over a virtual view.
	Auto MaterializationPolicy = iota
	// AlwaysCopy always materializes a contiguous in-memory copy of the MFT's data before use.
	AlwaysCopy
	// AlwaysView never copies; every MFT record read walks the runlist view directly.
	AlwaysView
)

const autoMaterializationThresholdBytes = 500 * 1024 * 1024

type options struct {
	clusterSize int
	policy      MaterializationPolicy
	logger      *slog.Logger
}

// Option configures Open.
type Option func(*options)

// WithClusterSize overrides the cluster size that would otherwise be computed from the boot sector.
func WithClusterSize(bytes int) Option {
	return func(o *options) { o.clusterSize = bytes }
}

// WithMaterializationPolicy selects how the $MFT's data is brought into memory; see MaterializationPolicy.
func WithMaterializationPolicy(policy MaterializationPolicy) Option {
	return func(o *options) { o.policy = policy }
}

// WithLogger sets the logger used for recoverable conditions encountered during a full record or path scan. A nil
// logger is replaced by slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Filesystem is a read-only, opened NTFS volume: the entry point for walking its directory tree, reading file data,
// and escaping to raw MFT access when needed.
type Filesystem struct {
	source          volume.ByteSource
	bootSector      bootsect.BootSector
	clusters        *volume.ClusterAccessor
	enumerator      *mftenum.Enumerator
	indexBlockBytes int
	logger          *slog.Logger
}

// Open decodes the boot sector from source, locates the $MFT via its logical cluster number, and materializes it
// (falling back to $MFTMirr if the primary copy isn't fully readable) according to policy. Fails with an
// *ntfserr.Error of Kind CorruptFilesystem if neither copy can be read to its final byte.
func Open(source volume.ByteSource, opts ...Option) (*Filesystem, error) {
	const op = "ntfsfs.Open"

	cfg := options{policy: Auto, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	vbrLen := 512
	if source.Len() < vbrLen {
		vbrLen = source.Len()
	}
	vbrData, err := source.Slice(0, vbrLen)
	if err != nil {
		return nil, ntfserr.Wrap(op, ntfserr.CorruptFilesystem, fmt.Errorf("unable to read boot sector: %w", err))
	}
	bootSector, err := bootsect.Parse(vbrData)
	if err != nil {
		return nil, ntfserr.Wrap(op, ntfserr.CorruptFilesystem, fmt.Errorf("unable to parse boot sector: %w", err))
	}

	clusterSize := bootSector.BytesPerCluster
	if cfg.clusterSize > 0 {
		clusterSize = cfg.clusterSize
	}
	if clusterSize <= 0 {
		return nil, ntfserr.Wrap(op, ntfserr.CorruptFilesystem, fmt.Errorf("invalid cluster size %d", clusterSize))
	}
	clusters := volume.NewClusterAccessor(source, clusterSize)

	recordSize := bootSector.FileRecordSegmentSizeInBytes
	if recordSize <= 0 {
		recordSize = mftenum.DefaultRecordSize
	}

	mftSource, mftErr := materializeMFT(clusters, bootSector.MftLogicalClusterNumber, recordSize, cfg.policy)
	if mftErr != nil {
		cfg.logger.Warn("primary $MFT unreadable, falling back to $MFTMirr", "error", mftErr)
		mftSource, mftErr = materializeMFT(clusters, bootSector.MftMirrorLogicalClusterNumber, recordSize, cfg.policy)
		if mftErr != nil {
			return nil, ntfserr.Wrap(op, ntfserr.CorruptFilesystem, fmt.Errorf("unable to read $MFT or $MFTMirr: %w", mftErr))
		}
	}

	enumerator := mftenum.New(mftSource, recordSize, mftenum.WithLogger(cfg.logger))

	return &Filesystem{
		source:          source,
		bootSector:      bootSector,
		clusters:        clusters,
		enumerator:      enumerator,
		indexBlockBytes: bootSector.IndexBufferSizeInBytes,
		logger:          cfg.logger,
	}, nil
}

// materializeMFT decodes the MFT's base record (record 0) at lcn, extracts its unnamed $DATA attribute, and proves
// every run in that attribute's runlist is reachable by reading the view's final byte — the check §4.8 requires
// before trusting a candidate MFT copy.
func materializeMFT(clusters *volume.ClusterAccessor, lcn uint64, recordSize int, policy MaterializationPolicy) (volume.ByteSource, error) {
	clusterCount := int64((recordSize + clusters.ClusterSize() - 1) / clusters.ClusterSize())
	raw, err := clusters.Slice(int64(lcn), int64(lcn)+clusterCount)
	if err != nil {
		return nil, fmt.Errorf("unable to read $MFT base record clusters: %w", err)
	}
	if len(raw) < recordSize {
		return nil, fmt.Errorf("expected at least %d bytes for $MFT base record but got %d", recordSize, len(raw))
	}

	record, err := mft.ParseRecord(raw[:recordSize])
	if err != nil {
		return nil, fmt.Errorf("unable to parse $MFT base record: %w", err)
	}

	dataAttr, err := record.FindAttribute(mft.AttributeTypeData)
	if err != nil {
		return nil, fmt.Errorf("unable to find $DATA attribute in $MFT base record: %w", err)
	}

	if dataAttr.Resident {
		return volume.New(dataAttr.Data, 0), nil
	}

	runs, err := runlist.Parse(dataAttr.Data)
	if err != nil {
		return nil, fmt.Errorf("unable to parse $MFT runlist: %w", err)
	}
	view := nonresident.New(clusters, runs)

	if view.Len() > 0 {
		if _, err := view.ByteAt(view.Len() - 1); err != nil {
			return nil, fmt.Errorf("$MFT runlist is not fully reachable: %w", err)
		}
	}

	if policy == AlwaysView || (policy == Auto && view.Len() > autoMaterializationThresholdBytes) {
		return view, nil
	}

	copied, err := view.Slice(0, view.Len())
	if err != nil {
		return nil, fmt.Errorf("unable to materialize $MFT copy: %w", err)
	}
	return volume.New(copied, 0), nil
}

// Record returns the raw, decoded MFT record at number n, escaping the facade's File/Directory types.
func (fs *Filesystem) Record(n uint64) (mft.Record, error) {
	return fs.enumerator.GetRecord(n)
}

// ClusterSize returns the volume's cluster size in bytes, as decoded from the boot sector (or overridden via
// WithClusterSize).
func (fs *Filesystem) ClusterSize() int {
	return fs.clusters.ClusterSize()
}

// EnumeratePaths returns a lazy cursor over every in-use record together with its resolved full path; see
// mftenum.Enumerator.EnumeratePaths.
func (fs *Filesystem) EnumeratePaths() *mftenum.PathCursor {
	return fs.enumerator.EnumeratePaths()
}

// GetAttributeData returns attr's value as a ByteSource: the resident bytes directly, or a non-resident view over
// its runlist.
func (fs *Filesystem) GetAttributeData(attr mft.Attribute) (volume.ByteSource, error) {
	const op = "ntfsfs.Filesystem.GetAttributeData"
	if attr.Resident {
		return volume.New(attr.Data, 0), nil
	}
	runs, err := runlist.Parse(attr.Data)
	if err != nil {
		return nil, ntfserr.Wrap(op, ntfserr.InvalidRecord, err)
	}
	return nonresident.New(fs.clusters, runs), nil
}

// RootDirectory returns the Directory for record #5, the volume's root.
func (fs *Filesystem) RootDirectory() (*Directory, error) {
	return fs.directoryAt(mftenum.RootRecordNumber)
}

func (fs *Filesystem) directoryAt(n uint64) (*Directory, error) {
	const op = "ntfsfs.Filesystem.directoryAt"
	record, err := fs.enumerator.GetRecord(n)
	if err != nil {
		return nil, err
	}
	if !record.IsDirectory() {
		return nil, ntfserr.New(op, ntfserr.DirectoryNotFound)
	}
	return &Directory{Entry{fs: fs, record: record}}, nil
}

func (fs *Filesystem) nodeFor(record mft.Record) Node {
	entry := Entry{fs: fs, record: record}
	if record.IsDirectory() {
		return &Directory{entry}
	}
	return &File{entry}
}
