// Package ntfs implements the Backend interface by reading a volume's raw
// $MFT and USN change journal directly, the fast path described in spec
// §4.2-§4.4. Record decoding (this file, record.go, runlist.go) is pure and
// platform-independent; only the raw device handle and journal ioctls
// (volume_windows.go, usn_windows.go) are Windows-specific, matching NTFS's
// status as a Windows-native filesystem.
//
// Layout constants are grounded on the boot-sector and FILE-record fields
// of other_examples' shubham030-recovery ntfs.go parser.
package ntfs

import (
	"encoding/binary"

	"github.com/padiauj/glint/internal/glinterr"
)

// BootSector holds the fields needed to locate $MFT and compute cluster
// and FILE-record sizes. Only a handful of the boot sector's 512 bytes
// matter for this purpose.
type BootSector struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	MFTCluster        uint64
	MFTMirrCluster    uint64
	ClustersPerMFTRec int8
	ClusterSize       int
	MFTRecordSize     int
}

// ParseBootSector reads the fields of interest from the first 512 bytes of
// an NTFS volume.
func ParseBootSector(sector []byte) (*BootSector, error) {
	if len(sector) < 512 {
		return nil, glinterr.New(glinterr.Corrupt, "boot sector shorter than 512 bytes")
	}
	if string(sector[3:7]) != "NTFS" {
		return nil, glinterr.New(glinterr.Corrupt, "missing NTFS OEM signature")
	}

	bs := &BootSector{
		BytesPerSector:    binary.LittleEndian.Uint16(sector[11:13]),
		SectorsPerCluster: sector[13],
		MFTCluster:        binary.LittleEndian.Uint64(sector[48:56]),
		MFTMirrCluster:    binary.LittleEndian.Uint64(sector[56:64]),
		ClustersPerMFTRec: int8(sector[64]),
	}
	if bs.BytesPerSector == 0 || bs.SectorsPerCluster == 0 {
		return nil, glinterr.New(glinterr.Corrupt, "boot sector reports zero sector or cluster size")
	}

	bs.ClusterSize = int(bs.SectorsPerCluster) * int(bs.BytesPerSector)
	if bs.ClustersPerMFTRec < 0 {
		bs.MFTRecordSize = 1 << uint(-bs.ClustersPerMFTRec)
	} else {
		bs.MFTRecordSize = int(bs.ClustersPerMFTRec) * bs.ClusterSize
	}
	if bs.MFTRecordSize <= 0 {
		return nil, glinterr.New(glinterr.Corrupt, "computed non-positive MFT record size")
	}

	return bs, nil
}

// MFTStartByte is the byte offset of $MFT's first cluster.
func (bs *BootSector) MFTStartByte() int64 {
	return int64(bs.MFTCluster) * int64(bs.ClusterSize)
}
