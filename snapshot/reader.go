package snapshot

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/padiauj/glint/internal/glinterr"
)

// Read parses a snapshot produced by Write. A magic mismatch, version
// mismatch, or CRC failure all surface as glinterr.SnapshotIncompatible;
// orchestrator.LoadSnapshot deletes such a file and falls back to Scanning.
func Read(r io.Reader) ([]Volume, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, glinterr.Wrap(glinterr.Io, err, "read snapshot")
	}
	if len(raw) < len(Magic)+4+4+4 {
		return nil, glinterr.New(glinterr.SnapshotIncompatible, "snapshot truncated")
	}

	body, footer := raw[:len(raw)-4], raw[len(raw)-4:]
	wantSum := binary.LittleEndian.Uint32(footer)
	gotSum := crc32.Checksum(body, castagnoliTable)
	if wantSum != gotSum {
		return nil, glinterr.New(glinterr.SnapshotIncompatible, "snapshot checksum mismatch")
	}

	if !bytes.Equal(body[:8], Magic[:]) {
		return nil, glinterr.New(glinterr.SnapshotIncompatible, "bad snapshot magic")
	}
	version := binary.LittleEndian.Uint32(body[8:12])
	if version != FormatVersion {
		return nil, glinterr.Newf(glinterr.SnapshotIncompatible, "unsupported snapshot version %d", version)
	}
	flags := binary.LittleEndian.Uint32(body[12:16])

	payload := body[16:]
	if flags&FlagCompressed != 0 {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		payload, err = dec.DecodeAll(payload, nil)
		dec.Close()
		if err != nil {
			return nil, glinterr.Wrap(glinterr.SnapshotIncompatible, err, "decompress snapshot payload")
		}
	}

	return readPayload(bytes.NewReader(payload))
}

func readPayload(r *bytes.Reader) ([]Volume, error) {
	var volumeCount uint32
	if err := binary.Read(r, binary.LittleEndian, &volumeCount); err != nil {
		return nil, corrupt(err)
	}

	volumes := make([]Volume, 0, volumeCount)
	for vi := uint32(0); vi < volumeCount; vi++ {
		var v Volume
		letter, err := r.ReadByte()
		if err != nil {
			return nil, corrupt(err)
		}
		v.Letter = letter

		var labelLen uint16
		if err := binary.Read(r, binary.LittleEndian, &labelLen); err != nil {
			return nil, corrupt(err)
		}
		label := make([]byte, labelLen)
		if _, err := io.ReadFull(r, label); err != nil {
			return nil, corrupt(err)
		}
		v.Label = string(label)

		if err := binary.Read(r, binary.LittleEndian, &v.Serial); err != nil {
			return nil, corrupt(err)
		}
		if err := binary.Read(r, binary.LittleEndian, &v.LastUSN); err != nil {
			return nil, corrupt(err)
		}
		var shardCount uint32
		if err := binary.Read(r, binary.LittleEndian, &shardCount); err != nil {
			return nil, corrupt(err)
		}

		var recordCount uint32
		if err := binary.Read(r, binary.LittleEndian, &recordCount); err != nil {
			return nil, corrupt(err)
		}

		ids := make([]uint64, recordCount)
		parents := make([]uint64, recordCount)
		flagsCol := make([]uint32, recordCount)
		sizes := make([]uint64, recordCount)
		mtimes := make([]uint64, recordCount)
		extHashes := make([]uint64, recordCount)
		for i := range ids {
			if err := binary.Read(r, binary.LittleEndian, &ids[i]); err != nil {
				return nil, corrupt(err)
			}
		}
		for i := range parents {
			if err := binary.Read(r, binary.LittleEndian, &parents[i]); err != nil {
				return nil, corrupt(err)
			}
		}
		for i := range flagsCol {
			if err := binary.Read(r, binary.LittleEndian, &flagsCol[i]); err != nil {
				return nil, corrupt(err)
			}
		}
		for i := range sizes {
			if err := binary.Read(r, binary.LittleEndian, &sizes[i]); err != nil {
				return nil, corrupt(err)
			}
		}
		for i := range mtimes {
			if err := binary.Read(r, binary.LittleEndian, &mtimes[i]); err != nil {
				return nil, corrupt(err)
			}
		}
		for i := range extHashes {
			if err := binary.Read(r, binary.LittleEndian, &extHashes[i]); err != nil {
				return nil, corrupt(err)
			}
		}

		nameOffsets := make([]uint32, recordCount)
		for i := range nameOffsets {
			if err := binary.Read(r, binary.LittleEndian, &nameOffsets[i]); err != nil {
				return nil, corrupt(err)
			}
		}
		var namesLen uint32
		if err := binary.Read(r, binary.LittleEndian, &namesLen); err != nil {
			return nil, corrupt(err)
		}
		names := make([]byte, namesLen)
		if _, err := io.ReadFull(r, names); err != nil {
			return nil, corrupt(err)
		}

		v.Records = make([]Record, recordCount)
		for i := range v.Records {
			off := nameOffsets[i]
			var end uint32
			if i+1 < int(recordCount) {
				end = nameOffsets[i+1]
			} else {
				end = namesLen
			}
			v.Records[i] = Record{
				ID:       ids[i],
				ParentID: parents[i],
				Flags:    flagsCol[i],
				Size:     sizes[i],
				MTime:    mtimes[i],
				ExtHash:  extHashes[i],
				Name:     string(names[off:end]),
			}
		}

		volumes = append(volumes, v)
	}

	return volumes, nil
}

func corrupt(err error) error {
	return glinterr.Wrap(glinterr.SnapshotIncompatible, err, "parse snapshot payload")
}
