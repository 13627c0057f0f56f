/*
	Package mftenum turns a byte source holding the $MFT's data (typically a non-resident view over its runlist, or an
	in-memory copy of it) into record-number-indexed access, a full scan, and parent-reference path resolution.

	GetRecord decodes lazily and caches the result; EnumerateRecords and EnumeratePaths are pull-based — nothing is
	decoded until the cursor's Next is actually called, and stopping early never leaves anything to clean up.
*/
package mftenum

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/t9t/ntfsfs/mft"
	"github.com/t9t/ntfsfs/ntfserr"
	"github.com/t9t/ntfsfs/volume"
)

// RootRecordNumber is the well-known MFT record number of the volume's root directory.
const RootRecordNumber = 5

// DefaultRecordSize is the size in bytes of one MFT record on the overwhelming majority of NTFS volumes.
const DefaultRecordSize = 1024

// Option configures an Enumerator constructed with New.
type Option func(*Enumerator)

// WithLogger sets the logger used for recoverable conditions (a record that fails to decode during a scan). A nil
// logger is replaced by slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Enumerator) { e.logger = logger }
}

// Enumerator decodes MFT records from source on demand, by record number. It is safe for concurrent use: concurrent
// GetRecord calls for the same record number decode it exactly once, via a singleflight.Group guarding the cache.
type Enumerator struct {
	source     volume.ByteSource
	recordSize int
	logger     *slog.Logger
	cache      sync.Map
	group      singleflight.Group
}

// New constructs an Enumerator over source, which must expose exactly the $MFT's bytes (record 0 at byte 0, record 1
// at byte recordSize, and so on).
func New(source volume.ByteSource, recordSize int, opts ...Option) *Enumerator {
	e := &Enumerator{source: source, recordSize: recordSize, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// RecordCount returns how many whole records fit in the underlying source.
func (e *Enumerator) RecordCount() uint64 {
	return uint64(e.source.Len() / e.recordSize)
}

// GetRecord decodes and returns the record at number n, from cache if a prior call already decoded it. Fails with an
// *ntfserr.Error of Kind Overrun if n is beyond the source, or Kind InvalidRecord/Fixup if decoding fails.
func (e *Enumerator) GetRecord(n uint64) (mft.Record, error) {
	const op = "mftenum.Enumerator.GetRecord"

	if cached, ok := e.cache.Load(n); ok {
		return cached.(mft.Record), nil
	}

	key := fmt.Sprintf("%d", n)
	result, err, _ := e.group.Do(key, func() (interface{}, error) {
		if cached, ok := e.cache.Load(n); ok {
			return cached.(mft.Record), nil
		}

		lo := int(n) * e.recordSize
		hi := lo + e.recordSize
		data, err := e.source.Slice(lo, hi)
		if err != nil {
			return mft.Record{}, ntfserr.Wrap(op, ntfserr.Overrun, fmt.Errorf("unable to read record %d: %w", n, err))
		}

		record, err := mft.ParseRecord(data)
		if err != nil {
			return mft.Record{}, err
		}

		e.cache.Store(n, record)
		return record, nil
	})
	if err != nil {
		return mft.Record{}, err
	}
	return result.(mft.Record), nil
}

// RecordCursor is a lazy, pull-based iterator over every record number the underlying source could hold, produced by
// Enumerator.EnumerateRecords. Records that fail to decode are skipped and logged at slog.LevelWarn; nothing else is
// done to or for them.
type RecordCursor struct {
	e    *Enumerator
	next uint64
	max  uint64
}

// EnumerateRecords returns a cursor over record numbers [0, RecordCount()), skipping any record that fails to decode.
func (e *Enumerator) EnumerateRecords() *RecordCursor {
	return &RecordCursor{e: e, next: 0, max: e.RecordCount()}
}

// Next advances the cursor and returns the next decodable record along with its record number. ok is false once the
// scan is exhausted.
func (c *RecordCursor) Next(ctx context.Context) (record mft.Record, recordNumber uint64, ok bool) {
	for c.next < c.max {
		n := c.next
		c.next++

		select {
		case <-ctx.Done():
			return mft.Record{}, 0, false
		default:
		}

		r, err := c.e.GetRecord(n)
		if err != nil {
			c.e.logger.Warn("skipping undecodable MFT record", "recordNumber", n, "error", err)
			continue
		}
		return r, n, true
	}
	return mft.Record{}, 0, false
}

// PathedRecord pairs a decoded, in-use record with its resolved full path.
type PathedRecord struct {
	Record mft.Record
	Path   string
}

// PathCursor is a lazy, pull-based iterator over every in-use record together with its resolved path, produced by
// Enumerator.EnumeratePaths.
type PathCursor struct {
	records *RecordCursor
	e       *Enumerator
}

// EnumeratePaths returns a cursor over every in-use record, paired with the path GetPath resolves for it.
func (e *Enumerator) EnumeratePaths() *PathCursor {
	return &PathCursor{records: e.EnumerateRecords(), e: e}
}

// Next advances the cursor, skipping records that are not in use, and returns the next (record, path) pair. ok is
// false once the scan is exhausted.
func (c *PathCursor) Next(ctx context.Context) (PathedRecord, bool) {
	for {
		record, _, ok := c.records.Next(ctx)
		if !ok {
			return PathedRecord{}, false
		}
		if !record.IsInUse() {
			continue
		}
		return PathedRecord{Record: record, Path: c.e.GetPath(record)}, true
	}
}

// GetPath resolves record's full path by walking FILE_NAME parent references up to the root (record #5). It never
// fails: a broken or missing parent link yields a best-effort path prefixed with `\$ORPHAN\`, and a cyclic parent
// graph is detected via a visited-record-number set and yields one prefixed with `\$CYCLE\`.
func (e *Enumerator) GetPath(record mft.Record) string {
	if record.RecordNumber == RootRecordNumber {
		return `\`
	}

	var components []string
	visited := map[uint64]bool{record.RecordNumber: true}
	current := record

	for {
		name, ok := preferredFileName(current)
		if !ok {
			return `\$ORPHAN\` + joinPathComponents(components)
		}
		components = append(components, name.Name)

		parentRef := name.ParentFileReference
		if parentRef.RecordNumber == RootRecordNumber {
			root, err := e.GetRecord(RootRecordNumber)
			if err != nil || root.SequenceNumber != parentRef.SequenceNumber {
				return `\$ORPHAN\` + joinPathComponents(components)
			}
			return `\` + joinPathComponents(components)
		}

		if visited[parentRef.RecordNumber] {
			return `\$CYCLE\` + joinPathComponents(components)
		}

		parent, err := e.GetRecord(parentRef.RecordNumber)
		if err != nil || parent.SequenceNumber != parentRef.SequenceNumber {
			return `\$ORPHAN\` + joinPathComponents(components)
		}

		visited[parentRef.RecordNumber] = true
		current = parent
	}
}

// preferredFileName returns record's most path-worthy FILE_NAME attribute: Win32 or Win32+DOS namespace entries are
// preferred over POSIX/DOS-only ones, since those are the names users and other tools actually expect to see.
func preferredFileName(record mft.Record) (mft.FileName, bool) {
	attrs := record.FindAttributes(mft.AttributeTypeFileName)
	var fallback *mft.FileName
	for i := range attrs {
		name, err := mft.ParseFileName(attrs[i].Data)
		if err != nil {
			continue
		}
		if name.Namespace == mft.FileNameNamespaceWin32 || name.Namespace == mft.FileNameNamespaceWin32Dos {
			return name, true
		}
		if fallback == nil {
			n := name
			fallback = &n
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return mft.FileName{}, false
}

func joinPathComponents(components []string) string {
	s := ""
	for i := len(components) - 1; i >= 0; i-- {
		s += components[i]
		if i > 0 {
			s += `\`
		}
	}
	return s
}
