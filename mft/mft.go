/*
	Package mft decodes records and attributes from an NTFS Master File Table. ParseRecord decodes one 1024-byte (by
	default) MFT record: it validates the "FILE" signature, applies update-sequence ("fixup") correction, and walks the
	attribute headers that follow. Each attribute's typed payload — STANDARD_INFORMATION, FILE_NAME, the raw bytes or
	runlist of DATA, and so on — is decoded separately by the functions in attributes.go, since a caller usually only
	wants one or two attribute types out of a record and parsing all of them eagerly would be wasted work.

	Basic usage

		record, err := mft.ParseRecord(recordBytes)
		attrs := record.FindAttributes(mft.AttributeTypeFileName)
		fileName, err := mft.ParseFileName(attrs[0].Data)
*/
package mft

import (
	"bytes"
	"fmt"

	"github.com/t9t/ntfsfs/binutil"
	"github.com/t9t/ntfsfs/ntfserr"
	"github.com/t9t/ntfsfs/stringcodec"
)

var fileSignature = []byte{'F', 'I', 'L', 'E'}

const maxInt = int64(^uint(0) >> 1)

// Record represents an MFT entry, excluding technical fields such as "offset to first attribute" that have no use
// past decoding. The Attributes list only contains the attribute headers and raw data; use the Parse* functions in
// attributes.go to interpret a given attribute's Data. When this is a base record, BaseRecordReference is zero; when
// it is an extension record, BaseRecordReference points to the record's base record.
type Record struct {
	Signature             []byte
	RecordNumber          uint64
	SequenceNumber        uint16
	BaseRecordReference   FileReference
	LogFileSequenceNumber uint64
	HardLinkCount         int
	Flags                 RecordFlag
	ActualSize            uint32
	AllocatedSize         uint32
	NextAttributeId       int
	Attributes            []Attribute
}

// IsInUse reports whether the in-use flag bit is set on the record.
func (r *Record) IsInUse() bool {
	return r.Flags.Is(RecordFlagInUse)
}

// IsDirectory reports whether the directory flag bit is set on the record.
func (r *Record) IsDirectory() bool {
	return r.Flags.Is(RecordFlagIsDirectory)
}

// ParseRecord parses b into a Record after applying fixup correction. The data is assumed to be little-endian. Only
// attribute headers are parsed, not the attribute data each one carries. Fails with an *ntfserr.Error of Kind
// InvalidRecord on a bad signature or an inconsistent header, or Kind Fixup if update-sequence validation fails.
// Callers must pass the record exactly as read from the volume; fixups must not be pre-applied, since ParseRecord
// always applies them itself and a second application is rejected as a fixup mismatch.
func ParseRecord(b []byte) (Record, error) {
	const op = "mft.ParseRecord"
	if len(b) < 42 {
		return Record{}, ntfserr.Wrap(op, ntfserr.InvalidRecord,
			fmt.Errorf("record data length should be at least 42 but is %d", len(b)))
	}
	sig := b[:4]
	if !bytes.Equal(sig, fileSignature) {
		return Record{}, ntfserr.Wrap(op, ntfserr.InvalidRecord, fmt.Errorf("unknown record signature: %# x", sig))
	}

	b = binutil.Duplicate(b)
	r := binutil.NewLittleEndianReader(b)

	baseRecordRef, err := ParseFileReference(r.Read(0x20, 8))
	if err != nil {
		return Record{}, ntfserr.Wrap(op, ntfserr.InvalidRecord, fmt.Errorf("unable to parse base record reference: %w", err))
	}

	firstAttributeOffset := int(r.Uint16(0x14))
	if firstAttributeOffset < 0 || firstAttributeOffset >= len(b) {
		return Record{}, ntfserr.Wrap(op, ntfserr.InvalidRecord,
			fmt.Errorf("invalid first attribute offset %d (data length: %d)", firstAttributeOffset, len(b)))
	}

	updateSequenceOffset := int(r.Uint16(0x04))
	updateSequenceSize := int(r.Uint16(0x06))
	b, err = applyFixUp(b, updateSequenceOffset, updateSequenceSize)
	if err != nil {
		return Record{}, ntfserr.Wrap(op, ntfserr.Fixup, err)
	}

	attributes, err := ParseAttributes(b[firstAttributeOffset:])
	if err != nil {
		return Record{}, err
	}
	return Record{
		Signature:             binutil.Duplicate(sig),
		RecordNumber:          uint64(r.Uint32(0x2C)),
		SequenceNumber:        r.Uint16(0x10),
		BaseRecordReference:   baseRecordRef,
		LogFileSequenceNumber: r.Uint64(0x08),
		HardLinkCount:         int(r.Uint16(0x12)),
		Flags:                 RecordFlag(r.Uint16(0x16)),
		ActualSize:            r.Uint32(0x18),
		AllocatedSize:         r.Uint32(0x1C),
		NextAttributeId:       int(r.Uint16(0x28)),
		Attributes:            attributes,
	}, nil
}

// FileReference refers to an MFT record: a 48-bit record number and a 16-bit sequence number. A reference is only
// valid if its SequenceNumber matches the current sequence number of the record at RecordNumber; a mismatch means the
// slot has since been reused by an unrelated file.
type FileReference struct {
	RecordNumber   uint64
	SequenceNumber uint16
}

// ParseFileReference parses a little-endian 8-byte slice into a FileReference: the low 48 bits (first 6 bytes) are the
// record number, the high 16 bits (last 2 bytes) are the sequence number.
func ParseFileReference(b []byte) (FileReference, error) {
	const op = "mft.ParseFileReference"
	if len(b) != 8 {
		return FileReference{}, ntfserr.Wrap(op, ntfserr.InvalidRecord, fmt.Errorf("expected 8 bytes but got %d", len(b)))
	}
	recordNumber := uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 | uint64(b[4])<<32 | uint64(b[5])<<40
	sequenceNumber := uint16(b[6]) | uint16(b[7])<<8
	return FileReference{RecordNumber: recordNumber, SequenceNumber: sequenceNumber}, nil
}

// RecordFlag is a bit mask indicating the status of an MFT record.
type RecordFlag uint16

// Bit values for RecordFlag. For example, an in-use directory has value 0x0003.
const (
	RecordFlagInUse       RecordFlag = 0x0001
	RecordFlagIsDirectory RecordFlag = 0x0002
	RecordFlagInExtend    RecordFlag = 0x0004
	RecordFlagIsIndex     RecordFlag = 0x0008
)

// Is reports whether this RecordFlag's bit mask contains c.
func (f RecordFlag) Is(c RecordFlag) bool {
	return f&c == c
}

// ApplyFixup validates and applies an update-sequence array against every 512-byte sector of b. It is exported
// because INDX index blocks use the exact same fixup mechanism as MFT records (see package mftidx); everything else
// in this package uses it only through ParseRecord.
func ApplyFixup(b []byte, offset int, length int) ([]byte, error) {
	return applyFixUp(b, offset, length)
}

// applyFixUp validates and applies the update-sequence array starting at offset, of length pairs of bytes (so
// length*2 total bytes including the USN itself), against every 512-byte sector of b. It mutates and returns b.
// Applying fixups a second time to an already-fixed-up record fails here: the tail bytes no longer match the stored
// USN once the first application has overwritten them.
func applyFixUp(b []byte, offset int, length int) ([]byte, error) {
	r := binutil.NewLittleEndianReader(b)

	updateSequence := r.Read(offset, length*2)
	updateSequenceNumber := updateSequence[:2]
	updateSequenceArray := updateSequence[2:]

	sectorCount := len(updateSequenceArray) / 2
	if sectorCount == 0 {
		return nil, fmt.Errorf("update sequence array is empty")
	}
	sectorSize := len(b) / sectorCount

	for i := 1; i <= sectorCount; i++ {
		tailOffset := sectorSize*i - 2
		if !bytes.Equal(updateSequenceNumber, b[tailOffset:tailOffset+2]) {
			return nil, fmt.Errorf("update sequence mismatch at pos %d", tailOffset)
		}
	}

	for i := 0; i < sectorCount; i++ {
		tailOffset := sectorSize*(i+1) - 2
		pos := i * 2
		copy(b[tailOffset:tailOffset+2], updateSequenceArray[pos:pos+2])
	}

	return b, nil
}

// FindAttributes returns all attributes of the given type contained in this record, in the order they appear. When no
// matches are found an empty slice is returned.
func (r *Record) FindAttributes(attrType AttributeType) []Attribute {
	ret := make([]Attribute, 0)
	for _, a := range r.Attributes {
		if a.Type == attrType {
			ret = append(ret, a)
		}
	}
	return ret
}

// FindAttribute returns the first attribute of the given type, or fails with an *ntfserr.Error of Kind
// AttributeNotFound.
func (r *Record) FindAttribute(attrType AttributeType) (Attribute, error) {
	for _, a := range r.Attributes {
		if a.Type == attrType {
			return a, nil
		}
	}
	return Attribute{}, ntfserr.New("mft.Record.FindAttribute", ntfserr.AttributeNotFound)
}

// Attribute represents an MFT record attribute header together with its raw data (excluding header bytes). When the
// attribute is resident, Data holds the actual attribute value. When it is non-resident, Data holds the encoded
// runlist, decodable with the runlist package.
type Attribute struct {
	Type          AttributeType
	Resident      bool
	Name          string
	Flags         AttributeFlags
	AttributeId   int
	AllocatedSize uint64
	ActualSize    uint64
	Data          []byte
}

// AttributeType identifies the type of an Attribute. Use Name() for a human-readable form.
type AttributeType uint32

// Known AttributeType values. Other values may occur on-disk but are not assigned names here.
const (
	AttributeTypeStandardInformation AttributeType = 0x10       // $STANDARD_INFORMATION; always resident
	AttributeTypeAttributeList       AttributeType = 0x20       // $ATTRIBUTE_LIST; mixed residency
	AttributeTypeFileName            AttributeType = 0x30       // $FILE_NAME; always resident
	AttributeTypeObjectId            AttributeType = 0x40       // $OBJECT_ID; always resident
	AttributeTypeSecurityDescriptor  AttributeType = 0x50       // $SECURITY_DESCRIPTOR
	AttributeTypeVolumeName          AttributeType = 0x60       // $VOLUME_NAME
	AttributeTypeVolumeInformation   AttributeType = 0x70       // $VOLUME_INFORMATION
	AttributeTypeData                AttributeType = 0x80       // $DATA; mixed residency
	AttributeTypeIndexRoot           AttributeType = 0x90       // $INDEX_ROOT; always resident
	AttributeTypeIndexAllocation     AttributeType = 0xa0       // $INDEX_ALLOCATION; never resident
	AttributeTypeBitmap              AttributeType = 0xb0       // $BITMAP
	AttributeTypeReparsePoint        AttributeType = 0xc0       // $REPARSE_POINT
	AttributeTypeEAInformation       AttributeType = 0xd0       // $EA_INFORMATION
	AttributeTypeEA                  AttributeType = 0xe0       // $EA
	AttributeTypePropertySet         AttributeType = 0xf0       // $PROPERTY_SET
	AttributeTypeLoggedUtilityStream AttributeType = 0x100      // $LOGGED_UTILITY_STREAM
	AttributeTypeTerminator          AttributeType = 0xFFFFFFFF // marks the end of an attribute list; never returned by ParseAttributes
)

// Name returns a human-readable name for the attribute type, such as "$STANDARD_INFORMATION" or "$FILE_NAME", or
// "unknown" for a type this module does not recognize.
func (at AttributeType) Name() string {
	switch at {
	case AttributeTypeStandardInformation:
		return "$STANDARD_INFORMATION"
	case AttributeTypeAttributeList:
		return "$ATTRIBUTE_LIST"
	case AttributeTypeFileName:
		return "$FILE_NAME"
	case AttributeTypeObjectId:
		return "$OBJECT_ID"
	case AttributeTypeSecurityDescriptor:
		return "$SECURITY_DESCRIPTOR"
	case AttributeTypeVolumeName:
		return "$VOLUME_NAME"
	case AttributeTypeVolumeInformation:
		return "$VOLUME_INFORMATION"
	case AttributeTypeData:
		return "$DATA"
	case AttributeTypeIndexRoot:
		return "$INDEX_ROOT"
	case AttributeTypeIndexAllocation:
		return "$INDEX_ALLOCATION"
	case AttributeTypeBitmap:
		return "$BITMAP"
	case AttributeTypeReparsePoint:
		return "$REPARSE_POINT"
	case AttributeTypeEAInformation:
		return "$EA_INFORMATION"
	case AttributeTypeEA:
		return "$EA"
	case AttributeTypePropertySet:
		return "$PROPERTY_SET"
	case AttributeTypeLoggedUtilityStream:
		return "$LOGGED_UTILITY_STREAM"
	}
	return "unknown"
}

// AttributeFlags is a bit mask indicating properties of an attribute's data.
type AttributeFlags uint16

// Bit values for AttributeFlags.
const (
	AttributeFlagsCompressed AttributeFlags = 0x0001
	AttributeFlagsEncrypted  AttributeFlags = 0x4000
	AttributeFlagsSparse     AttributeFlags = 0x8000
)

// Is reports whether this AttributeFlags's bit mask contains c.
func (f AttributeFlags) Is(c AttributeFlags) bool {
	return f&c == c
}

// ParseAttributes parses b into a sequence of Attributes. Only attribute headers are parsed; each attribute's typed
// payload must be decoded separately. Stops at a zero-length record, a terminator type, or the end of b.
func ParseAttributes(b []byte) ([]Attribute, error) {
	const op = "mft.ParseAttributes"
	if len(b) == 0 {
		return []Attribute{}, nil
	}
	attributes := make([]Attribute, 0)
	for len(b) > 0 {
		if len(b) < 4 {
			return nil, ntfserr.Wrap(op, ntfserr.InvalidRecord,
				fmt.Errorf("attribute header data should be at least 4 bytes but is %d", len(b)))
		}

		r := binutil.NewLittleEndianReader(b)
		attrType := r.Uint32(0)
		if attrType == uint32(AttributeTypeTerminator) {
			break
		}

		if len(b) < 8 {
			return nil, ntfserr.Wrap(op, ntfserr.InvalidRecord,
				fmt.Errorf("cannot read attribute record length, data should be at least 8 bytes but is %d", len(b)))
		}

		uRecordLength := r.Uint32(0x04)
		if int64(uRecordLength) > maxInt {
			return nil, ntfserr.Wrap(op, ntfserr.InvalidRecord,
				fmt.Errorf("record length %d overflows maximum int value %d", uRecordLength, maxInt))
		}
		recordLength := int(uRecordLength)
		if recordLength == 0 {
			break
		}
		if recordLength < 0 {
			return nil, ntfserr.Wrap(op, ntfserr.InvalidRecord,
				fmt.Errorf("cannot handle attribute with negative record length %d", recordLength))
		}
		if recordLength > len(b) {
			return nil, ntfserr.Wrap(op, ntfserr.InvalidRecord,
				fmt.Errorf("attribute record length %d exceeds data length %d", recordLength, len(b)))
		}

		attribute, err := ParseAttribute(r.Read(0, recordLength))
		if err != nil {
			return nil, err
		}
		attributes = append(attributes, attribute)
		b = r.ReadFrom(recordLength)
	}
	return attributes, nil
}

// ParseAttribute parses b into a single Attribute. b must hold exactly one attribute's header and data.
func ParseAttribute(b []byte) (Attribute, error) {
	const op = "mft.ParseAttribute"
	if len(b) < 22 {
		return Attribute{}, ntfserr.Wrap(op, ntfserr.InvalidRecord, fmt.Errorf("attribute data should be at least 22 bytes but is %d", len(b)))
	}

	r := binutil.NewLittleEndianReader(b)

	nameLength := r.Byte(0x09)
	nameOffset := r.Uint16(0x0A)

	name := ""
	if nameLength != 0 {
		nameBytes := r.Read(int(nameOffset), int(nameLength)*2)
		decoded, err := stringcodec.DecodeString(nameBytes)
		if err != nil {
			return Attribute{}, ntfserr.Wrap(op, ntfserr.InvalidRecord, err)
		}
		name = decoded
	}

	resident := r.Byte(0x08) == 0x00
	var attributeData []byte
	actualSize := uint64(0)
	allocatedSize := uint64(0)
	if resident {
		dataOffset := int(r.Uint16(0x14))
		uDataLength := r.Uint32(0x10)
		if int64(uDataLength) > maxInt {
			return Attribute{}, ntfserr.Wrap(op, ntfserr.InvalidRecord, fmt.Errorf("attribute data length %d overflows maximum int value %d", uDataLength, maxInt))
		}
		dataLength := int(uDataLength)
		expectedDataLength := dataOffset + dataLength
		if len(b) < expectedDataLength {
			return Attribute{}, ntfserr.Wrap(op, ntfserr.InvalidRecord, fmt.Errorf("expected attribute data length to be at least %d but is %d", expectedDataLength, len(b)))
		}
		attributeData = r.Read(dataOffset, dataLength)
	} else {
		dataOffset := int(r.Uint16(0x20))
		if len(b) < dataOffset {
			return Attribute{}, ntfserr.Wrap(op, ntfserr.InvalidRecord, fmt.Errorf("expected attribute data length to be at least %d but is %d", dataOffset, len(b)))
		}
		allocatedSize = r.Uint64(0x28)
		actualSize = r.Uint64(0x30)
		attributeData = r.ReadFrom(dataOffset)
	}

	return Attribute{
		Type:          AttributeType(r.Uint32(0)),
		Resident:      resident,
		Name:          name,
		Flags:         AttributeFlags(r.Uint16(0x0C)),
		AttributeId:   int(r.Uint16(0x0E)),
		AllocatedSize: allocatedSize,
		ActualSize:    actualSize,
		Data:          binutil.Duplicate(attributeData),
	}, nil
}
