package ntfsfs

import (
	"bytes"
	"io"
	"strings"

	"github.com/t9t/ntfsfs/fragment"
	"github.com/t9t/ntfsfs/mft"
	"github.com/t9t/ntfsfs/mftenum"
	"github.com/t9t/ntfsfs/mftidx"
	"github.com/t9t/ntfsfs/ntfserr"
	"github.com/t9t/ntfsfs/runlist"
)

// Node is the shared surface of File and Directory: everything that can be asked of an entry in the namespace
// without knowing whether it's a file or a directory.
type Node interface {
	Name() string
	FullPath() string
	IsDirectory() bool
	Size() uint64
	SiTimestamps() (mft.StandardInformation, error)
	FnTimestamps() (mft.FileName, bool)
	Filenames() []mft.FileName
	Record() mft.Record
}

// Entry holds the state shared by File and Directory: the filesystem it belongs to and its decoded MFT record.
type Entry struct {
	fs     *Filesystem
	record mft.Record
}

// Record returns the raw, decoded MFT record backing this entry.
func (e *Entry) Record() mft.Record {
	return e.record
}

// IsDirectory reports whether this entry is a directory.
func (e *Entry) IsDirectory() bool {
	return e.record.IsDirectory()
}

// Name returns this entry's preferred display name, from its most path-worthy FILE_NAME attribute.
func (e *Entry) Name() string {
	name, ok := e.FnTimestamps()
	if !ok {
		return ""
	}
	return name.Name
}

// FullPath resolves this entry's path from the volume root, walking FILE_NAME parent references. It never fails;
// see Enumerator.GetPath for the `\$ORPHAN\` / `\$CYCLE\` fallback behavior.
func (e *Entry) FullPath() string {
	return e.fs.enumerator.GetPath(e.record)
}

// ParentDirectory returns the directory named by this entry's preferred FILE_NAME's parent reference.
func (e *Entry) ParentDirectory() (*Directory, error) {
	const op = "ntfsfs.Entry.ParentDirectory"
	name, ok := e.FnTimestamps()
	if !ok {
		return nil, ntfserr.New(op, ntfserr.NoParent)
	}
	return e.fs.directoryAt(name.ParentFileReference.RecordNumber)
}

// SiTimestamps decodes and returns this entry's $STANDARD_INFORMATION attribute.
func (e *Entry) SiTimestamps() (mft.StandardInformation, error) {
	const op = "ntfsfs.Entry.SiTimestamps"
	attr, err := e.record.FindAttribute(mft.AttributeTypeStandardInformation)
	if err != nil {
		return mft.StandardInformation{}, err
	}
	si, err := mft.ParseStandardInformation(attr.Data)
	if err != nil {
		return mft.StandardInformation{}, ntfserr.Wrap(op, ntfserr.InvalidRecord, err)
	}
	return si, nil
}

// FnTimestamps returns this entry's preferred FILE_NAME attribute (see mftenum's namespace-preference rule), or ok
// false if the record has none that could be decoded.
func (e *Entry) FnTimestamps() (mft.FileName, bool) {
	var fallback *mft.FileName
	for _, attr := range e.record.FindAttributes(mft.AttributeTypeFileName) {
		name, err := mft.ParseFileName(attr.Data)
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

// Filenames returns every FILE_NAME attribute on this entry's record that could be decoded, one per hard link and
// namespace it is known by.
func (e *Entry) Filenames() []mft.FileName {
	attrs := e.record.FindAttributes(mft.AttributeTypeFileName)
	names := make([]mft.FileName, 0, len(attrs))
	for _, attr := range attrs {
		name, err := mft.ParseFileName(attr.Data)
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	return names
}

// File is a regular, readable entry in the namespace.
type File struct {
	Entry
}

// Size returns the logical size of the file's unnamed $DATA attribute: for a resident attribute, the length of its
// decoded bytes; for a non-resident one, its recorded real size. A record with no unnamed $DATA attribute at all
// (e.g. a reparse point) falls back to the preferred FILE_NAME's recorded real size, or zero if it has none either.
func (f *File) Size() uint64 {
	attr, err := f.record.FindAttribute(mft.AttributeTypeData)
	if err != nil {
		name, ok := f.FnTimestamps()
		if !ok {
			return 0
		}
		return name.RealSize
	}
	if attr.Resident {
		return uint64(len(attr.Data))
	}
	return attr.ActualSize
}

// Read returns up to length bytes of the file's unnamed $DATA attribute starting at offset.
func (f *File) Read(offset, length int) ([]byte, error) {
	const op = "ntfsfs.File.Read"
	attr, err := f.record.FindAttribute(mft.AttributeTypeData)
	if err != nil {
		return nil, err
	}
	source, err := f.fs.GetAttributeData(attr)
	if err != nil {
		return nil, err
	}
	hi := offset + length
	if hi > source.Len() {
		hi = source.Len()
	}
	if offset >= hi {
		return nil, nil
	}
	data, err := source.Slice(offset, hi)
	if err != nil {
		return nil, ntfserr.Wrap(op, ntfserr.Overrun, err)
	}
	return data, nil
}

// OpenStream returns an io.Reader over the file's unnamed $DATA attribute without materializing a non-resident view:
// a non-resident attribute's runlist is converted straight into fragment.Fragments read directly off src, which must
// be the same underlying volume the Filesystem was opened from (e.g. the *os.File backing an mmapvolume.Volume). This
// is the low-memory-footprint counterpart to Read, meant for streaming a whole file out sequentially. A non-resident
// stream ends after the attribute's recorded real size, not at the end of its last cluster.
func (f *File) OpenStream(src io.ReadSeeker) (io.Reader, error) {
	attr, err := f.record.FindAttribute(mft.AttributeTypeData)
	if err != nil {
		return nil, err
	}
	if attr.Resident {
		return bytes.NewReader(attr.Data), nil
	}
	runs, err := runlist.Parse(attr.Data)
	if err != nil {
		return nil, err
	}
	fragments := fragment.RunsToFragments(runs, f.fs.ClusterSize())
	return io.LimitReader(fragment.NewReader(src, fragments), int64(attr.ActualSize)), nil
}

// Directory is a container entry in the namespace: it can list its children by walking the INDX blocks of its
// $INDEX_ALLOCATION attribute when it has one, and otherwise the entries of its $INDEX_ROOT attribute.
type Directory struct {
	Entry
}

// Size always reports zero for a directory; NTFS does not give directories a meaningful data size.
func (d *Directory) Size() uint64 {
	return 0
}

// Children returns every live (non-deleted) entry this directory's index lists, deduplicated by child MFT record
// number. For the root directory, its own self-referencing "." entry is skipped; no other directory's entries are
// filtered by name.
func (d *Directory) Children() ([]Node, error) {
	const op = "ntfsfs.Directory.Children"

	seen := map[uint64]bool{}
	var nodes []Node
	addEntry := func(entry mftidx.Entry) error {
		if entry.IsEnd() {
			return nil
		}
		if d.record.RecordNumber == mftenum.RootRecordNumber && entry.FileName.Name == "." {
			return nil // root's own self-referencing "." entry
		}
		if seen[entry.FileReference.RecordNumber] {
			return nil
		}
		seen[entry.FileReference.RecordNumber] = true
		childRecord, err := d.fs.enumerator.GetRecord(entry.FileReference.RecordNumber)
		if err != nil {
			return nil // a child that no longer decodes is simply omitted, not fatal to the listing
		}
		nodes = append(nodes, d.fs.nodeFor(childRecord))
		return nil
	}

	allocAttr, err := d.record.FindAttribute(mft.AttributeTypeIndexAllocation)
	if err == nil {
		source, err := d.fs.GetAttributeData(allocAttr)
		if err != nil {
			return nil, err
		}
		blockSize := d.fs.indexBlockBytes
		for lo := 0; lo+blockSize <= source.Len(); lo += blockSize {
			raw, err := source.Slice(lo, lo+blockSize)
			if err != nil {
				return nil, ntfserr.Wrap(op, ntfserr.Overrun, err)
			}
			block, err := mftidx.ParseBlock(raw)
			if err != nil {
				d.fs.logger.Warn("skipping undecodable INDX block", "directory", d.record.RecordNumber, "error", err)
				continue
			}
			for _, entry := range block.ActiveEntries {
				if err := addEntry(entry); err != nil {
					return nil, err
				}
			}
		}
		return nodes, nil
	}

	rootAttr, err := d.record.FindAttribute(mft.AttributeTypeIndexRoot)
	if err != nil {
		return nil, ntfserr.New(op, ntfserr.DirectoryNotFound)
	}
	root, err := mftidx.ParseIndexRoot(rootAttr.Data)
	if err != nil {
		return nil, err
	}
	for _, entry := range root.ActiveEntries {
		if err := addEntry(entry); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

// Files returns the subset of Children that are regular files.
func (d *Directory) Files() ([]*File, error) {
	children, err := d.Children()
	if err != nil {
		return nil, err
	}
	var files []*File
	for _, c := range children {
		if f, ok := c.(*File); ok {
			files = append(files, f)
		}
	}
	return files, nil
}

// Directories returns the subset of Children that are themselves directories.
func (d *Directory) Directories() ([]*Directory, error) {
	children, err := d.Children()
	if err != nil {
		return nil, err
	}
	var dirs []*Directory
	for _, c := range children {
		if sub, ok := c.(*Directory); ok {
			dirs = append(dirs, sub)
		}
	}
	return dirs, nil
}

// Child looks up a direct child by name, case-insensitively, failing with an *ntfserr.Error of Kind ChildNotFound if
// no child matches.
func (d *Directory) Child(name string) (Node, error) {
	const op = "ntfsfs.Directory.Child"
	children, err := d.Children()
	if err != nil {
		return nil, err
	}
	for _, c := range children {
		if strings.EqualFold(c.Name(), name) {
			return c, nil
		}
	}
	return nil, ntfserr.New(op, ntfserr.ChildNotFound)
}
