/*
	Package bootsect provides functions to parse the boot sector (also known as the Volume Boot Record, VBR, or $Boot
	file) of an NTFS volume.
*/
package bootsect

import (
	"fmt"

	"github.com/t9t/ntfsfs/binutil"
	"github.com/t9t/ntfsfs/ntfserr"
)

// BootSector represents the parsed data of an NTFS volume boot record. The OemId should typically be "NTFS    "
// ("NTFS" followed by 4 trailing spaces) for a valid NTFS boot sector.
type BootSector struct {
	OemId                           string
	BytesPerSector                  int
	SectorsPerCluster               int
	BytesPerCluster                 int
	MediaDescriptor                 byte
	SectorsPerTrack                 int
	NumberOfHeads                   int
	HiddenSectors                   int
	TotalSectors                    uint64
	MftLogicalClusterNumber         uint64
	MftMirrorLogicalClusterNumber   uint64
	ClustersPerFileRecordSegment    int
	FileRecordSegmentSizeInBytes    int
	ClustersPerIndexBuffer          int
	IndexBufferSizeInBytes          int
	VolumeSerialNumber              []byte
}

const minimumLength = 80

// Parse parses the data of an NTFS boot sector into a BootSector structure. It fails with an *ntfserr.Error of Kind
// Overrun if data is shorter than the fixed fields it reads.
func Parse(data []byte) (BootSector, error) {
	const op = "bootsect.Parse"
	if len(data) < minimumLength {
		return BootSector{}, ntfserr.Wrap(op, ntfserr.Overrun,
			fmt.Errorf("boot sector data should be at least %d bytes but is %d", minimumLength, len(data)))
	}
	r := binutil.NewLittleEndianReader(data)
	bytesPerSector := int(r.Uint16(0x0B))
	sectorsPerCluster := clustersOrPower(r.Int8(0x0D))
	bytesPerCluster := bytesPerSector * sectorsPerCluster

	clustersPerFileRecordSegment, fileRecordSegmentSizeInBytes := signedClusterSize(r.Int8(0x40), bytesPerCluster)
	clustersPerIndexBuffer, indexBufferSizeInBytes := signedClusterSize(r.Int8(0x44), bytesPerCluster)

	return BootSector{
		OemId:                         string(r.Read(0x03, 8)),
		BytesPerSector:                bytesPerSector,
		SectorsPerCluster:             sectorsPerCluster,
		BytesPerCluster:               bytesPerCluster,
		MediaDescriptor:               r.Byte(0x15),
		SectorsPerTrack:               int(r.Uint16(0x18)),
		NumberOfHeads:                 int(r.Uint16(0x1A)),
		HiddenSectors:                 int(r.Uint16(0x1C)),
		TotalSectors:                  r.Uint64(0x28),
		MftLogicalClusterNumber:       r.Uint64(0x30),
		MftMirrorLogicalClusterNumber: r.Uint64(0x38),
		ClustersPerFileRecordSegment:  clustersPerFileRecordSegment,
		FileRecordSegmentSizeInBytes:  fileRecordSegmentSizeInBytes,
		ClustersPerIndexBuffer:        clustersPerIndexBuffer,
		IndexBufferSizeInBytes:        indexBufferSizeInBytes,
		VolumeSerialNumber:            binutil.Duplicate(r.Read(0x48, 8)),
	}, nil
}

// clustersOrPower implements the sectors-per-cluster rule: a positive value is the literal sector count; a negative
// value n means the cluster holds 2^|n| sectors.
func clustersOrPower(n int8) int {
	if n < 0 {
		return 1 << -n
	}
	return int(n)
}

// signedClusterSize implements the shared rule used for both clusters_per_file_record_segment and
// clusters_per_index_buffer: a positive value is a cluster count (converted here to bytes using bytesPerCluster); a
// negative value n means the size is 2^|n| bytes directly, independent of cluster size. The cluster count returned
// for the negative case is 0, since the field stops meaning "a number of clusters" once interpreted this way.
func signedClusterSize(n int8, bytesPerCluster int) (clusters int, bytes int) {
	if n < 0 {
		return 0, 1 << -n
	}
	return int(n), int(n) * bytesPerCluster
}
