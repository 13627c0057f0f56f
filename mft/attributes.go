package mft

import (
	"fmt"
	"time"

	"github.com/t9t/ntfsfs/binutil"
	"github.com/t9t/ntfsfs/ntfserr"
	"github.com/t9t/ntfsfs/stringcodec"
)

// FileAttribute is a bit mask of the Windows file attributes (read-only, hidden, and so on) recorded in
// STANDARD_INFORMATION and FILE_NAME attributes.
type FileAttribute uint32

// Bit values for FileAttribute.
const (
	FileAttributeReadOnly          FileAttribute = 0x0001
	FileAttributeHidden            FileAttribute = 0x0002
	FileAttributeSystem            FileAttribute = 0x0004
	FileAttributeArchive           FileAttribute = 0x0020
	FileAttributeDevice            FileAttribute = 0x0040
	FileAttributeNormal            FileAttribute = 0x0080
	FileAttributeTemporary         FileAttribute = 0x0100
	FileAttributeSparseFile        FileAttribute = 0x0200
	FileAttributeReparsePoint      FileAttribute = 0x0400
	FileAttributeCompressed        FileAttribute = 0x0800
	FileAttributeOffline           FileAttribute = 0x1000
	FileAttributeNotContentIndexed FileAttribute = 0x2000
	FileAttributeEncrypted         FileAttribute = 0x4000
)

// StandardInformation holds the decoded $STANDARD_INFORMATION attribute: the four core timestamps plus security and
// quota metadata. Every in-use MFT record has exactly one.
type StandardInformation struct {
	Creation                time.Time
	FileLastModified        time.Time
	MftLastModified         time.Time
	LastAccess              time.Time
	FileAttributes          FileAttribute
	MaximumNumberOfVersions uint32
	VersionNumber           uint32
	ClassId                 uint32
	OwnerId                 uint32
	SecurityId              uint32
	QuotaCharged            uint64
	UpdateSequenceNumber    uint64
}

// ParseStandardInformation decodes b as a $STANDARD_INFORMATION attribute value. Older volumes may carry a shorter,
// pre-NTFS-3.0 form without the owner/security/quota/USN fields; those are left zero when b is too short to hold
// them, rather than failing outright.
func ParseStandardInformation(b []byte) (StandardInformation, error) {
	const op = "mft.ParseStandardInformation"
	if len(b) < 48 {
		return StandardInformation{}, ntfserr.Wrap(op, ntfserr.InvalidRecord, fmt.Errorf("expected at least 48 bytes but got %d", len(b)))
	}

	r := binutil.NewLittleEndianReader(b)
	ownerId, securityId := uint32(0), uint32(0)
	quotaCharged, updateSequenceNumber := uint64(0), uint64(0)
	if len(b) >= 0x30+4 {
		ownerId = r.Uint32(0x30)
	}
	if len(b) >= 0x34+4 {
		securityId = r.Uint32(0x34)
	}
	if len(b) >= 0x38+8 {
		quotaCharged = r.Uint64(0x38)
	}
	if len(b) >= 0x40+8 {
		updateSequenceNumber = r.Uint64(0x40)
	}

	creation, err := convertFileTimeOrSentinel(r.Uint64(0x00))
	if err != nil {
		return StandardInformation{}, ntfserr.Wrap(op, ntfserr.Value, err)
	}
	fileModified, err := convertFileTimeOrSentinel(r.Uint64(0x08))
	if err != nil {
		return StandardInformation{}, ntfserr.Wrap(op, ntfserr.Value, err)
	}
	mftModified, err := convertFileTimeOrSentinel(r.Uint64(0x10))
	if err != nil {
		return StandardInformation{}, ntfserr.Wrap(op, ntfserr.Value, err)
	}
	lastAccess, err := convertFileTimeOrSentinel(r.Uint64(0x18))
	if err != nil {
		return StandardInformation{}, ntfserr.Wrap(op, ntfserr.Value, err)
	}

	return StandardInformation{
		Creation:                creation,
		FileLastModified:        fileModified,
		MftLastModified:         mftModified,
		LastAccess:              lastAccess,
		FileAttributes:          FileAttribute(r.Uint32(0x20)),
		MaximumNumberOfVersions: r.Uint32(0x24),
		VersionNumber:           r.Uint32(0x28),
		ClassId:                 r.Uint32(0x2C),
		OwnerId:                 ownerId,
		SecurityId:              securityId,
		QuotaCharged:            quotaCharged,
		UpdateSequenceNumber:    updateSequenceNumber,
	}, nil
}

// convertFileTimeOrSentinel never actually returns an error today: binutil.ConvertFileTime only rejects tick counts
// above the representable range, and leaves substituting the Unix epoch sentinel to callers that want one.
// Here we follow the filesystem facade's documented behavior and substitute the sentinel directly, since a timestamp
// field in a decoded attribute has no other reasonable value to carry forward.
func convertFileTimeOrSentinel(ticks uint64) (time.Time, error) {
	t, err := binutil.ConvertFileTime(ticks)
	if err != nil {
		return binutil.UnixEpochSentinel(), nil
	}
	return t, nil
}

// FileNameNamespace identifies which of NTFS's parallel filename namespaces a FILE_NAME attribute belongs to.
type FileNameNamespace byte

// Known FileNameNamespace values.
const (
	FileNameNamespacePosix   FileNameNamespace = 0
	FileNameNamespaceWin32   FileNameNamespace = 1
	FileNameNamespaceDos     FileNameNamespace = 2
	FileNameNamespaceWin32Dos FileNameNamespace = 3
)

// FileName holds the decoded $FILE_NAME attribute: the parent directory reference, the four timestamps as recorded at
// link-creation time (which can lag behind STANDARD_INFORMATION's), size fields, and the name itself. A record can
// carry more than one FileName, one per hard link and per namespace it is known by.
type FileName struct {
	ParentFileReference FileReference
	Creation            time.Time
	FileLastModified    time.Time
	MftLastModified     time.Time
	LastAccess          time.Time
	AllocatedSize       uint64
	RealSize            uint64
	Flags               FileAttribute
	ExtendedData        uint32
	Namespace           FileNameNamespace
	Name                string
}

// ParseFileName decodes b as a $FILE_NAME attribute value.
func ParseFileName(b []byte) (FileName, error) {
	const op = "mft.ParseFileName"
	if len(b) < 66 {
		return FileName{}, ntfserr.Wrap(op, ntfserr.InvalidRecord, fmt.Errorf("expected at least 66 bytes but got %d", len(b)))
	}

	fileNameLength := int(b[0x40]) * 2
	minExpectedSize := 66 + fileNameLength
	if len(b) < minExpectedSize {
		return FileName{}, ntfserr.Wrap(op, ntfserr.InvalidRecord, fmt.Errorf("expected at least %d bytes but got %d", minExpectedSize, len(b)))
	}

	r := binutil.NewLittleEndianReader(b)
	name, err := stringcodec.DecodeString(r.Read(0x42, fileNameLength))
	if err != nil {
		return FileName{}, ntfserr.Wrap(op, ntfserr.InvalidRecord, fmt.Errorf("unable to decode file name: %w", err))
	}
	parentRef, err := ParseFileReference(r.Read(0x00, 8))
	if err != nil {
		return FileName{}, ntfserr.Wrap(op, ntfserr.InvalidRecord, fmt.Errorf("unable to parse parent file reference: %w", err))
	}

	creation, _ := convertFileTimeOrSentinel(r.Uint64(0x08))
	fileModified, _ := convertFileTimeOrSentinel(r.Uint64(0x10))
	mftModified, _ := convertFileTimeOrSentinel(r.Uint64(0x18))
	lastAccess, _ := convertFileTimeOrSentinel(r.Uint64(0x20))

	return FileName{
		ParentFileReference: parentRef,
		Creation:            creation,
		FileLastModified:    fileModified,
		MftLastModified:     mftModified,
		LastAccess:          lastAccess,
		AllocatedSize:       r.Uint64(0x28),
		RealSize:            r.Uint64(0x30),
		Flags:               FileAttribute(r.Uint32(0x38)),
		ExtendedData:        r.Uint32(0x3c),
		Namespace:           FileNameNamespace(r.Byte(0x41)),
		Name:                name,
	}, nil
}

// AttributeListEntry is one entry of an $ATTRIBUTE_LIST attribute: a pointer to an attribute that may live in a
// different MFT record than the one the attribute list itself is stored in. This lets a record with more attributes
// than fit in one 1024-byte slot spill the overflow into "extension" records.
type AttributeListEntry struct {
	Type                AttributeType
	Name                string
	StartingVCN         uint64
	BaseRecordReference FileReference
	AttributeId         uint16
}

// ParseAttributeList decodes b as an $ATTRIBUTE_LIST attribute value into its entries.
func ParseAttributeList(b []byte) ([]AttributeListEntry, error) {
	const op = "mft.ParseAttributeList"
	if len(b) < 26 {
		return []AttributeListEntry{}, ntfserr.Wrap(op, ntfserr.InvalidRecord, fmt.Errorf("expected at least 26 bytes but got %d", len(b)))
	}

	entries := make([]AttributeListEntry, 0)
	for len(b) > 0 {
		r := binutil.NewLittleEndianReader(b)
		entryLength := int(r.Uint16(0x04))
		if len(b) < entryLength {
			return entries, ntfserr.Wrap(op, ntfserr.InvalidRecord, fmt.Errorf("expected at least %d bytes remaining for attribute list entry but is %d", entryLength, len(b)))
		}
		nameLength := int(r.Byte(0x06))
		name := ""
		if nameLength != 0 {
			nameOffset := int(r.Byte(0x07))
			decoded, err := stringcodec.DecodeString(r.Read(nameOffset, nameLength*2))
			if err != nil {
				return entries, ntfserr.Wrap(op, ntfserr.InvalidRecord, fmt.Errorf("unable to decode attribute name: %w", err))
			}
			name = decoded
		}
		baseRef, err := ParseFileReference(r.Read(0x10, 8))
		if err != nil {
			return entries, ntfserr.Wrap(op, ntfserr.InvalidRecord, fmt.Errorf("unable to parse base record reference: %w", err))
		}
		entries = append(entries, AttributeListEntry{
			Type:                AttributeType(r.Uint32(0)),
			Name:                name,
			StartingVCN:         r.Uint64(0x08),
			BaseRecordReference: baseRef,
			AttributeId:         r.Uint16(0x18),
		})
		b = r.ReadFrom(entryLength)
	}
	return entries, nil
}
