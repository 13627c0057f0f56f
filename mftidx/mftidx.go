/*
	Package mftidx decodes NTFS directory indices: the inline B+tree node carried by an $INDEX_ROOT attribute, and the
	out-of-line INDX blocks carried by an $INDEX_ALLOCATION attribute's non-resident data. Both share the same node
	header and entry layout; INDX blocks additionally carry their own "INDX"-signed fixup array, applied the same way
	mft.ApplyFixup applies one to an MFT record.

	Beyond the entries a directory is actively using, a node's allocated space commonly exceeds what's in use — the
	leftover bytes are residue from previously deleted entries ("slack"). enumerateSlackEntries surfaces that residue,
	as the SlackEntries of an IndexRoot or Block, through a plausibility filter, since slack bytes are not a well-formed record and must never be trusted blindly.
*/
package mftidx

import (
	"bytes"
	"fmt"

	"github.com/t9t/ntfsfs/binutil"
	"github.com/t9t/ntfsfs/mft"
	"github.com/t9t/ntfsfs/ntfserr"
	"github.com/t9t/ntfsfs/stringcodec"
)

var indxSignature = []byte{'I', 'N', 'D', 'X'}

// CollationType identifies the sort order a directory index's entries are ordered by.
type CollationType uint32

// Known CollationType values. $FILE_NAME indices (ordinary directories) always use CollationTypeFileName.
const (
	CollationTypeBinary            CollationType = 0x00000000
	CollationTypeFileName          CollationType = 0x00000001
	CollationTypeUnicodeString     CollationType = 0x00000002
	CollationTypeNtofsULong        CollationType = 0x00000010
	CollationTypeNtofsSid          CollationType = 0x00000011
	CollationTypeNtofsSecurityHash CollationType = 0x00000012
	CollationTypeNtofsUlongs       CollationType = 0x00000013
)

// Entry is one directory index entry: a reference to the child MFT record plus its $FILE_NAME, as recorded in the
// index (which can differ in namespace from the one a caller might find by decoding the child record directly).
// IsEnd entries carry no FileName and mark a node's final, reference-less placeholder.
type Entry struct {
	FileReference mft.FileReference
	Flags         uint32
	FileName      mft.FileName
	SubNodeVCN    uint64
}

const (
	entryFlagHasSubNode uint32 = 0x01
	entryFlagIsEnd      uint32 = 0x02
)

// HasSubNode reports whether this entry points further down the B+tree.
func (e Entry) HasSubNode() bool {
	return e.Flags&entryFlagHasSubNode != 0
}

// IsEnd reports whether this is a node's terminal placeholder entry, carrying no FileName.
func (e Entry) IsEnd() bool {
	return e.Flags&entryFlagIsEnd != 0
}

// nodeHeader is the 16-byte header shared by $INDEX_ROOT's inline node and every INDX block's node.
type nodeHeader struct {
	entriesOffset int
	indexLength   int
	allocatedSize int
	flags         uint32
}

func parseNodeHeader(b []byte) (nodeHeader, error) {
	if len(b) < 16 {
		return nodeHeader{}, fmt.Errorf("expected at least 16 bytes for index node header but got %d", len(b))
	}
	r := binutil.NewLittleEndianReader(b)
	return nodeHeader{
		entriesOffset: int(r.Uint32(0x00)),
		indexLength:   int(r.Uint32(0x04)),
		allocatedSize: int(r.Uint32(0x08)),
		flags:         r.Uint32(0x0C),
	}, nil
}

// IndexRoot holds the decoded $INDEX_ROOT attribute: the node header fields describing the layout and ActiveEntries,
// the entries a directory actually uses today. Small directories keep their whole index here and never allocate an
// $INDEX_ALLOCATION at all.
type IndexRoot struct {
	AttributeType     mft.AttributeType
	CollationType     CollationType
	BytesPerRecord    uint32
	ClustersPerRecord uint32
	Flags             uint32
	ActiveEntries     []Entry
	SlackEntries      []Entry
}

// ParseIndexRoot decodes b as an $INDEX_ROOT attribute value.
func ParseIndexRoot(b []byte) (IndexRoot, error) {
	const op = "mftidx.ParseIndexRoot"
	const nodeHeaderStart = 0x10
	if len(b) < nodeHeaderStart+16 {
		return IndexRoot{}, ntfserr.Wrap(op, ntfserr.InvalidRecord, fmt.Errorf("expected at least %d bytes but got %d", nodeHeaderStart+16, len(b)))
	}
	r := binutil.NewLittleEndianReader(b)

	header, err := parseNodeHeader(b[nodeHeaderStart:])
	if err != nil {
		return IndexRoot{}, ntfserr.Wrap(op, ntfserr.InvalidRecord, err)
	}

	active, slack, err := parseNode(b[nodeHeaderStart:], header)
	if err != nil {
		return IndexRoot{}, ntfserr.Wrap(op, ntfserr.InvalidRecord, fmt.Errorf("error parsing index entries: %w", err))
	}

	return IndexRoot{
		AttributeType:     mft.AttributeType(r.Uint32(0x00)),
		CollationType:     CollationType(r.Uint32(0x04)),
		BytesPerRecord:    r.Uint32(0x08),
		ClustersPerRecord: r.Uint32(0x0C),
		Flags:             header.flags,
		ActiveEntries:     active,
		SlackEntries:      slack,
	}, nil
}

// Block holds the decoded contents of a single INDX block carried by an $INDEX_ALLOCATION attribute's data.
type Block struct {
	VCN           uint64
	Flags         uint32
	ActiveEntries []Entry
	SlackEntries  []Entry
}

// ParseBlock decodes b as one whole INDX block: it validates the "INDX" signature, applies the
// block's own fixup array, and walks its node the same way ParseIndexRoot does.
func ParseBlock(b []byte) (Block, error) {
	const op = "mftidx.ParseBlock"
	const nodeHeaderStart = 0x18
	if len(b) < nodeHeaderStart+16 {
		return Block{}, ntfserr.Wrap(op, ntfserr.InvalidRecord, fmt.Errorf("expected at least %d bytes but got %d", nodeHeaderStart+16, len(b)))
	}
	sig := b[:4]
	if !bytes.Equal(sig, indxSignature) {
		return Block{}, ntfserr.Wrap(op, ntfserr.InvalidRecord, fmt.Errorf("unknown INDX block signature: %# x", sig))
	}

	b = binutil.Duplicate(b)
	r := binutil.NewLittleEndianReader(b)

	updateSequenceOffset := int(r.Uint16(0x04))
	updateSequenceSize := int(r.Uint16(0x06))
	b, err := mft.ApplyFixup(b, updateSequenceOffset, updateSequenceSize)
	if err != nil {
		return Block{}, ntfserr.Wrap(op, ntfserr.Fixup, err)
	}
	r = binutil.NewLittleEndianReader(b)

	header, err := parseNodeHeader(b[nodeHeaderStart:])
	if err != nil {
		return Block{}, ntfserr.Wrap(op, ntfserr.InvalidRecord, err)
	}

	active, slack, err := parseNode(b[nodeHeaderStart:], header)
	if err != nil {
		return Block{}, ntfserr.Wrap(op, ntfserr.InvalidRecord, fmt.Errorf("error parsing index entries: %w", err))
	}

	return Block{
		VCN:           r.Uint64(0x10),
		Flags:         header.flags,
		ActiveEntries: active,
		SlackEntries:  slack,
	}, nil
}

// parseNode walks the active entry region of a node (from header.entriesOffset to header.indexLength, both relative
// to the start of node) and then, separately and tolerantly, the slack region beyond it (from header.indexLength to
// header.allocatedSize). node must start at the node header itself, i.e. relative offsets in header are relative to
// node[0].
func parseNode(node []byte, header nodeHeader) (active []Entry, slack []Entry, err error) {
	if header.entriesOffset < 0 || header.entriesOffset > len(node) {
		return nil, nil, fmt.Errorf("entries offset %d out of bounds (node length %d)", header.entriesOffset, len(node))
	}
	if header.indexLength < header.entriesOffset || header.indexLength > len(node) {
		return nil, nil, fmt.Errorf("index length %d out of bounds (entries offset %d, node length %d)", header.indexLength, header.entriesOffset, len(node))
	}

	active, err = parseActiveEntries(node[header.entriesOffset:header.indexLength])
	if err != nil {
		return nil, nil, err
	}

	if header.allocatedSize > header.indexLength && header.allocatedSize <= len(node) {
		slack = enumerateSlackEntries(node[header.indexLength:header.allocatedSize])
	}

	return active, slack, nil
}

// parseActiveEntries decodes b, which holds exactly the in-use entries of one node, in order. It stops as soon as it
// decodes the end entry (IsEnd()), which has no content and is always the last active entry.
func parseActiveEntries(b []byte) ([]Entry, error) {
	entries := make([]Entry, 0)
	for len(b) > 0 {
		entry, consumed, err := parseEntry(b)
		if err != nil {
			return entries, fmt.Errorf("error parsing index entry: %w", err)
		}
		entries = append(entries, entry)
		if entry.IsEnd() {
			break
		}
		b = b[consumed:]
	}
	return entries, nil
}

// enumerateSlackEntries scans b, the unused tail of a node's allocated space, for index entries that survived a
// deletion. Unlike parseActiveEntries it never fails: slack bytes are not guaranteed to form valid entries at all, so
// a plausibility check gates every candidate and a failure at any byte simply advances one byte and keeps scanning.
func enumerateSlackEntries(b []byte) []Entry {
	entries := make([]Entry, 0)
	for len(b) >= 0x10 {
		entry, consumed, ok := tryParseEntry(b)
		if !ok {
			b = b[1:]
			continue
		}
		entries = append(entries, entry)
		if consumed <= 0 {
			consumed = 1
		}
		b = b[consumed:]
	}
	return entries
}

// parseEntry decodes exactly one well-formed entry from the start of b, returning the entry and how many bytes it
// consumed. Used for active entries, where a failure is a genuine decoding error.
func parseEntry(b []byte) (Entry, int, error) {
	if len(b) < 0x10 {
		return Entry{}, 0, fmt.Errorf("expected at least 16 bytes but got %d", len(b))
	}
	r := binutil.NewLittleEndianReader(b)
	entryLength := int(r.Uint16(0x08))
	if entryLength < 0x10 || entryLength > len(b) {
		return Entry{}, 0, fmt.Errorf("entry length %d out of bounds (data length %d)", entryLength, len(b))
	}

	flags := r.Uint32(0x0C)
	isEnd := flags&entryFlagIsEnd != 0
	hasSubNode := flags&entryFlagHasSubNode != 0
	contentLength := int(r.Uint16(0x0A))

	fileReference, err := mft.ParseFileReference(r.Read(0x00, 8))
	if err != nil {
		return Entry{}, 0, fmt.Errorf("unable to parse file reference: %w", err)
	}

	fileName := mft.FileName{}
	if !isEnd && contentLength != 0 {
		if 0x10+contentLength > entryLength {
			return Entry{}, 0, fmt.Errorf("content length %d overruns entry length %d", contentLength, entryLength)
		}
		fileName, err = mft.ParseFileName(r.Read(0x10, contentLength))
		if err != nil {
			return Entry{}, 0, fmt.Errorf("unable to parse $FILE_NAME in index entry: %w", err)
		}
	}

	subNodeVCN := uint64(0)
	if hasSubNode {
		if entryLength < 8 {
			return Entry{}, 0, fmt.Errorf("entry too short to hold a sub-node VCN")
		}
		subNodeVCN = r.Uint64(entryLength - 8)
	}

	return Entry{
		FileReference: fileReference,
		Flags:         flags,
		FileName:      fileName,
		SubNodeVCN:    subNodeVCN,
	}, entryLength, nil
}

// tryParseEntry attempts to decode one entry from the start of b without trusting any of its length fields: it
// applies the plausibility filter from the slack-enumeration design (entry length within bounds, filename length at
// most 255 characters, filename bytes that actually decode as UTF-16LE) before accepting the result.
func tryParseEntry(b []byte) (Entry, int, bool) {
	if len(b) < 0x10 {
		return Entry{}, 0, false
	}
	r := binutil.NewLittleEndianReader(b)
	entryLength := int(r.Uint16(0x08))
	if entryLength < 0x10 || entryLength > len(b) {
		return Entry{}, 0, false
	}

	flags := r.Uint32(0x0C)
	if flags&entryFlagIsEnd != 0 {
		return Entry{}, 0, false
	}
	contentLength := int(r.Uint16(0x0A))
	if contentLength == 0 || 0x10+contentLength > entryLength {
		return Entry{}, 0, false
	}
	content := r.Read(0x10, contentLength)
	if len(content) < 0x42 {
		return Entry{}, 0, false
	}
	nameLength := int(content[0x40])
	if nameLength == 0 || nameLength > 255 {
		return Entry{}, 0, false
	}
	nameBytes := content[0x42:]
	if len(nameBytes) < nameLength*2 {
		return Entry{}, 0, false
	}
	if !stringcodec.Valid(nameBytes[:nameLength*2]) {
		return Entry{}, 0, false
	}

	fileReference, err := mft.ParseFileReference(r.Read(0x00, 8))
	if err != nil {
		return Entry{}, 0, false
	}
	fileName, err := mft.ParseFileName(content)
	if err != nil {
		return Entry{}, 0, false
	}

	subNodeVCN := uint64(0)
	if flags&entryFlagHasSubNode != 0 && entryLength >= 8 {
		subNodeVCN = r.Uint64(entryLength - 8)
	}

	return Entry{
		FileReference: fileReference,
		Flags:         flags,
		FileName:      fileName,
		SubNodeVCN:    subNodeVCN,
	}, entryLength, true
}
