package ntfsfs_test

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/t9t/ntfsfs/mft"
	"github.com/t9t/ntfsfs/ntfserr"
	"github.com/t9t/ntfsfs/ntfsfs"
	"github.com/t9t/ntfsfs/volume"
)

// The synthetic volume built by buildVolume uses a 512-byte sector/cluster, 1024-byte (two-cluster) MFT records, and
// ten records: 0 is $MFT itself, 5 is the root directory, 6 is a subdirectory "docs", 7 is a file "hello.txt" in the
// root, 8 is a file "notes.txt" in "docs", and 9 is "reparse.txt" in the root, a record with a FILE_NAME but no
// $DATA attribute at all. Records 1-4 are left zeroed and never addressed by these tests.
const clusterSize = 512
const recordSize = 1024
const recordCount = 10

const helloContent = "hello, ntfs"
const notesContent = "a note"
const reparseRealSize = uint64(42)

func residentAttribute(attrType mft.AttributeType, data []byte) []byte {
	const headerLen = 0x18
	b := make([]byte, headerLen+len(data))
	binary.LittleEndian.PutUint32(b[0x00:], uint32(attrType))
	binary.LittleEndian.PutUint32(b[0x04:], uint32(headerLen+len(data)))
	binary.LittleEndian.PutUint32(b[0x10:], uint32(len(data)))
	binary.LittleEndian.PutUint16(b[0x14:], headerLen)
	copy(b[headerLen:], data)
	return b
}

func nonResidentAttribute(attrType mft.AttributeType, runlistBytes []byte, actualSize uint64) []byte {
	const headerLen = 0x40
	b := make([]byte, headerLen+len(runlistBytes))
	binary.LittleEndian.PutUint32(b[0x00:], uint32(attrType))
	binary.LittleEndian.PutUint32(b[0x04:], uint32(headerLen+len(runlistBytes)))
	b[0x08] = 1 // non-resident
	binary.LittleEndian.PutUint16(b[0x20:], headerLen)
	binary.LittleEndian.PutUint64(b[0x28:], actualSize)
	binary.LittleEndian.PutUint64(b[0x30:], actualSize)
	copy(b[headerLen:], runlistBytes)
	return b
}

func terminator() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:], uint32(mft.AttributeTypeTerminator))
	return b
}

func standardInformation() []byte {
	return make([]byte, 48) // short form; all-zero ticks decode to 1601-01-01
}

func fileNameData(parent mft.FileReference, name string) []byte {
	return fileNameDataWithRealSize(parent, name, 0)
}

func fileNameDataWithRealSize(parent mft.FileReference, name string, realSize uint64) []byte {
	nameBytes := make([]byte, 0, len(name)*2)
	for _, r := range name {
		nameBytes = append(nameBytes, byte(r), 0)
	}
	b := make([]byte, 0x42+len(nameBytes))
	binary.LittleEndian.PutUint32(b[0x00:], uint32(parent.RecordNumber))
	binary.LittleEndian.PutUint16(b[0x06:], parent.SequenceNumber)
	binary.LittleEndian.PutUint64(b[0x30:], realSize)
	b[0x40] = byte(len(name))
	b[0x41] = byte(mft.FileNameNamespaceWin32)
	copy(b[0x42:], nameBytes)
	return b
}

func indexEntry(ref mft.FileReference, flags uint32, name string, parent mft.FileReference) []byte {
	var content []byte
	if flags&0x02 == 0 {
		content = fileNameData(parent, name)
	}
	entryLength := 0x10 + len(content)
	if entryLength%8 != 0 {
		entryLength += 8 - entryLength%8
	}
	b := make([]byte, entryLength)
	binary.LittleEndian.PutUint32(b[0x00:], uint32(ref.RecordNumber))
	binary.LittleEndian.PutUint16(b[0x06:], ref.SequenceNumber)
	binary.LittleEndian.PutUint16(b[0x08:], uint16(entryLength))
	binary.LittleEndian.PutUint16(b[0x0A:], uint16(len(content)))
	binary.LittleEndian.PutUint32(b[0x0C:], flags)
	copy(b[0x10:], content)
	return b
}

func indexRootData(entries ...[]byte) []byte {
	const nodeHeaderLen = 16
	var body []byte
	for _, e := range entries {
		body = append(body, e...)
	}
	header := make([]byte, 0x10)
	binary.LittleEndian.PutUint32(header[0x00:], uint32(mft.AttributeTypeFileName))
	binary.LittleEndian.PutUint32(header[0x04:], 1) // CollationTypeFileName
	binary.LittleEndian.PutUint32(header[0x08:], 4096)
	binary.LittleEndian.PutUint32(header[0x0C:], 1)

	node := make([]byte, nodeHeaderLen)
	binary.LittleEndian.PutUint32(node[0x00:], nodeHeaderLen)
	binary.LittleEndian.PutUint32(node[0x04:], uint32(nodeHeaderLen+len(body)))
	binary.LittleEndian.PutUint32(node[0x08:], uint32(nodeHeaderLen+len(body)))
	node = append(node, body...)

	return append(header, node...)
}

// buildMftRecord assembles a well-formed, fixed-up 1024-byte MFT record.
func buildMftRecord(t *testing.T, recordNumber uint32, flags uint16, attributeData []byte) []byte {
	t.Helper()
	const usaOffset = 0x30
	const usaWords = 3
	const sectorSize = 512
	firstAttributeOffset := usaOffset + usaWords*2
	if firstAttributeOffset%8 != 0 {
		firstAttributeOffset += 8 - firstAttributeOffset%8
	}
	payload := append(append([]byte{}, attributeData...), terminator()...)

	b := make([]byte, recordSize)
	copy(b, []byte("FILE"))
	binary.LittleEndian.PutUint16(b[0x04:], usaOffset)
	binary.LittleEndian.PutUint16(b[0x06:], usaWords)
	binary.LittleEndian.PutUint16(b[0x10:], 1)
	binary.LittleEndian.PutUint16(b[0x12:], 1)
	binary.LittleEndian.PutUint16(b[0x14:], uint16(firstAttributeOffset))
	binary.LittleEndian.PutUint16(b[0x16:], flags)
	binary.LittleEndian.PutUint32(b[0x18:], uint32(firstAttributeOffset+len(payload)))
	binary.LittleEndian.PutUint32(b[0x1C:], recordSize)
	binary.LittleEndian.PutUint16(b[0x28:], 1)
	binary.LittleEndian.PutUint32(b[0x2C:], recordNumber)
	copy(b[firstAttributeOffset:], payload)

	const usn = uint16(0x0001)
	binary.LittleEndian.PutUint16(b[usaOffset:], usn)
	binary.LittleEndian.PutUint16(b[usaOffset+2:], 0xAAAA)
	binary.LittleEndian.PutUint16(b[usaOffset+4:], 0xBBBB)
	binary.LittleEndian.PutUint16(b[sectorSize-2:], usn)
	binary.LittleEndian.PutUint16(b[2*sectorSize-2:], usn)
	return b
}

func buildBootSector(t *testing.T) []byte {
	t.Helper()
	b := make([]byte, 512)
	copy(b[0x03:], []byte("NTFS    "))
	binary.LittleEndian.PutUint16(b[0x0B:], uint16(clusterSize)) // bytes per sector
	b[0x0D] = 1                                                  // sectors per cluster
	binary.LittleEndian.PutUint64(b[0x28:], uint64((512+recordCount*recordSize)/clusterSize))
	binary.LittleEndian.PutUint64(b[0x30:], 1) // $MFT at LCN 1
	binary.LittleEndian.PutUint64(b[0x38:], 1) // $MFTMirr, unused here: same LCN
	b[0x40] = 2                                // clusters per file record segment -> 2*512 = 1024 bytes
	b[0x44] = 8                                // clusters per index buffer -> 8*512 = 4096 bytes
	return b
}

// buildVolume assembles a complete in-memory NTFS image: one boot sector cluster followed by a ten-record $MFT
// whose own $DATA runlist covers every cluster the MFT occupies.
func buildVolume(t *testing.T) *volume.Volume {
	t.Helper()

	root := mft.FileReference{RecordNumber: 5, SequenceNumber: 1}
	docs := mft.FileReference{RecordNumber: 6, SequenceNumber: 1}

	rootIndex := indexRootData(
		indexEntry(docs, 0, "docs", root),
		indexEntry(mft.FileReference{RecordNumber: 7, SequenceNumber: 1}, 0, "hello.txt", root),
		indexEntry(mft.FileReference{RecordNumber: 9, SequenceNumber: 1}, 0, "reparse.txt", root),
		indexEntry(mft.FileReference{}, 0x02, "", mft.FileReference{}),
	)
	docsIndex := indexRootData(
		indexEntry(mft.FileReference{RecordNumber: 8, SequenceNumber: 1}, 0, "notes.txt", docs),
		indexEntry(mft.FileReference{}, 0x02, "", mft.FileReference{}),
	)

	const dirFlags = 0x0003 // in use + directory
	const fileFlags = 0x0001

	records := map[int][]byte{
		5: buildMftRecord(t, 5, dirFlags, join(
			residentAttribute(mft.AttributeTypeStandardInformation, standardInformation()),
			residentAttribute(mft.AttributeTypeIndexRoot, rootIndex),
		)),
		6: buildMftRecord(t, 6, dirFlags, join(
			residentAttribute(mft.AttributeTypeStandardInformation, standardInformation()),
			residentAttribute(mft.AttributeTypeFileName, fileNameData(root, "docs")),
			residentAttribute(mft.AttributeTypeIndexRoot, docsIndex),
		)),
		7: buildMftRecord(t, 7, fileFlags, join(
			residentAttribute(mft.AttributeTypeStandardInformation, standardInformation()),
			residentAttribute(mft.AttributeTypeFileName, fileNameData(root, "hello.txt")),
			residentAttribute(mft.AttributeTypeData, []byte(helloContent)),
		)),
		8: buildMftRecord(t, 8, fileFlags, join(
			residentAttribute(mft.AttributeTypeStandardInformation, standardInformation()),
			residentAttribute(mft.AttributeTypeFileName, fileNameData(docs, "notes.txt")),
			residentAttribute(mft.AttributeTypeData, []byte(notesContent)),
		)),
		9: buildMftRecord(t, 9, fileFlags, join(
			residentAttribute(mft.AttributeTypeStandardInformation, standardInformation()),
			residentAttribute(mft.AttributeTypeFileName, fileNameDataWithRealSize(root, "reparse.txt", reparseRealSize)),
		)),
	}

	mftBuf := make([]byte, recordCount*recordSize)
	for n, data := range records {
		copy(mftBuf[n*recordSize:], data)
	}

	// record 0's unnamed $DATA describes, via its runlist, exactly the clusters the $MFT occupies on the synthetic
	// volume: a single run starting at LCN 1 spanning recordCount*2 clusters.
	mftDataClusters := recordCount * (recordSize / clusterSize)
	runlistBytes := []byte{0x11, byte(mftDataClusters), 0x01, 0x00} // 1-byte count, 1-byte LCN delta (+1), terminator
	record0 := buildMftRecord(t, 0, dirFlags, nonResidentAttribute(mft.AttributeTypeData, runlistBytes, uint64(len(mftBuf))))
	copy(mftBuf[0:], record0)

	vbr := buildBootSector(t)
	buf := append(append([]byte{}, vbr...), mftBuf...)
	return volume.New(buf, 0)
}

func join(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func openTestVolume(t *testing.T) *ntfsfs.Filesystem {
	t.Helper()
	fs, err := ntfsfs.Open(buildVolume(t))
	require.NoError(t, err)
	return fs
}

func TestOpenAndListRootChildren(t *testing.T) {
	fs := openTestVolume(t)
	root, err := fs.RootDirectory()
	require.NoError(t, err)

	children, err := root.Children()
	require.NoError(t, err)
	require.Len(t, children, 3)

	names := map[string]bool{}
	for _, c := range children {
		names[c.Name()] = true
	}
	assert.True(t, names["docs"])
	assert.True(t, names["hello.txt"])
	assert.True(t, names["reparse.txt"])
}

func TestDirectoryFilesAndDirectories(t *testing.T) {
	fs := openTestVolume(t)
	root, err := fs.RootDirectory()
	require.NoError(t, err)

	files, err := root.Files()
	require.NoError(t, err)
	require.Len(t, files, 2)
	names := map[string]bool{}
	for _, f := range files {
		names[f.Name()] = true
	}
	assert.True(t, names["hello.txt"])
	assert.True(t, names["reparse.txt"])

	dirs, err := root.Directories()
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	assert.Equal(t, "docs", dirs[0].Name())
}

func TestChildCaseInsensitive(t *testing.T) {
	fs := openTestVolume(t)
	root, err := fs.RootDirectory()
	require.NoError(t, err)

	node, err := root.Child("HELLO.TXT")
	require.NoError(t, err)
	assert.Equal(t, "hello.txt", node.Name())

	_, err = root.Child("missing.txt")
	require.Error(t, err)
	assert.True(t, ntfserr.Is(err, ntfserr.ChildNotFound))
}

func TestFileReadAndSize(t *testing.T) {
	fs := openTestVolume(t)
	root, err := fs.RootDirectory()
	require.NoError(t, err)

	node, err := root.Child("hello.txt")
	require.NoError(t, err)
	file := node.(*ntfsfs.File)

	assert.Equal(t, uint64(len(helloContent)), file.Size())

	data, err := file.Read(0, 100)
	require.NoError(t, err)
	assert.Equal(t, helloContent, string(data))

	data, err = file.Read(7, 4)
	require.NoError(t, err)
	assert.Equal(t, helloContent[7:11], string(data))
}

func TestFileSizeFallsBackToFileNameRealSizeWithoutData(t *testing.T) {
	fs := openTestVolume(t)
	root, err := fs.RootDirectory()
	require.NoError(t, err)

	node, err := root.Child("reparse.txt")
	require.NoError(t, err)
	file := node.(*ntfsfs.File)

	assert.Equal(t, reparseRealSize, file.Size())
}

func TestPathEntryResolvesNestedFile(t *testing.T) {
	fs := openTestVolume(t)
	root, err := fs.RootDirectory()
	require.NoError(t, err)

	node, err := root.PathEntry(`docs\notes.txt`)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", node.Name())
	assert.Equal(t, `\docs\notes.txt`, node.FullPath())

	file := node.(*ntfsfs.File)
	data, err := file.Read(0, len(notesContent))
	require.NoError(t, err)
	assert.Equal(t, notesContent, string(data))
}

func TestPathEntryMixedSeparatorsFails(t *testing.T) {
	fs := openTestVolume(t)
	root, err := fs.RootDirectory()
	require.NoError(t, err)

	_, err = root.PathEntry(`docs/notes.txt\more`)
	require.Error(t, err)
	assert.True(t, ntfserr.Is(err, ntfserr.UnsupportedPath))
}

func TestPathEntryUnknownComponentFails(t *testing.T) {
	fs := openTestVolume(t)
	root, err := fs.RootDirectory()
	require.NoError(t, err)

	_, err = root.PathEntry(`docs\missing.txt`)
	require.Error(t, err)
	assert.True(t, ntfserr.Is(err, ntfserr.ChildNotFound))
}

func TestEntryParentDirectory(t *testing.T) {
	fs := openTestVolume(t)
	root, err := fs.RootDirectory()
	require.NoError(t, err)

	node, err := root.Child("hello.txt")
	require.NoError(t, err)
	file := node.(*ntfsfs.File)

	parent, err := file.ParentDirectory()
	require.NoError(t, err)
	assert.Equal(t, `\`, parent.FullPath())
}

func TestFileOpenStreamResident(t *testing.T) {
	fs := openTestVolume(t)
	root, err := fs.RootDirectory()
	require.NoError(t, err)
	node, err := root.Child("hello.txt")
	require.NoError(t, err)
	file := node.(*ntfsfs.File)

	stream, err := file.OpenStream(nil) // resident data needs no seeking into the volume
	require.NoError(t, err)
	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, helloContent, string(data))
}

func TestFilesystemGetAttributeDataDirectly(t *testing.T) {
	fs := openTestVolume(t)
	record, err := fs.Record(7)
	require.NoError(t, err)

	attr, err := record.FindAttribute(mft.AttributeTypeData)
	require.NoError(t, err)

	source, err := fs.GetAttributeData(attr)
	require.NoError(t, err)
	data, err := source.Slice(0, source.Len())
	require.NoError(t, err)
	assert.Equal(t, helloContent, string(data))
}
