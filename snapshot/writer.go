package snapshot

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Write serializes volumes to w in the format described in spec §6.3. When
// compress is true the payload is wrapped in a single zstd frame and
// FlagCompressed is set in the header.
func Write(w io.Writer, volumes []Volume, compress bool) error {
	var payload bytes.Buffer
	if err := writePayload(&payload, volumes); err != nil {
		return err
	}

	flags := uint32(0)
	body := payload.Bytes()
	if compress {
		flags |= FlagCompressed
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return err
		}
		body = enc.EncodeAll(body, nil)
		_ = enc.Close()
	}

	var out bytes.Buffer
	out.Write(Magic[:])
	_ = binary.Write(&out, binary.LittleEndian, FormatVersion)
	_ = binary.Write(&out, binary.LittleEndian, flags)
	out.Write(body)

	sum := crc32.Checksum(out.Bytes(), castagnoliTable)

	if _, err := w.Write(out.Bytes()); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, sum)
}

func writePayload(buf *bytes.Buffer, volumes []Volume) error {
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(volumes)))

	var total uint64
	for _, v := range volumes {
		buf.WriteByte(v.Letter)

		label := []byte(v.Label)
		_ = binary.Write(buf, binary.LittleEndian, uint16(len(label)))
		buf.Write(label)

		_ = binary.Write(buf, binary.LittleEndian, v.Serial)
		_ = binary.Write(buf, binary.LittleEndian, v.LastUSN)
		_ = binary.Write(buf, binary.LittleEndian, uint32(1)) // shard_count: always 1; a volume's records are written as one block

		_ = binary.Write(buf, binary.LittleEndian, uint32(len(v.Records)))

		nameOffsets := make([]uint32, len(v.Records))
		var names bytes.Buffer
		for i, r := range v.Records {
			nameOffsets[i] = uint32(names.Len())
			names.WriteString(r.Name)
		}

		for _, r := range v.Records {
			_ = binary.Write(buf, binary.LittleEndian, r.ID)
		}
		for _, r := range v.Records {
			_ = binary.Write(buf, binary.LittleEndian, r.ParentID)
		}
		for _, r := range v.Records {
			_ = binary.Write(buf, binary.LittleEndian, r.Flags)
		}
		for _, r := range v.Records {
			_ = binary.Write(buf, binary.LittleEndian, r.Size)
		}
		for _, r := range v.Records {
			_ = binary.Write(buf, binary.LittleEndian, r.MTime)
		}
		for _, r := range v.Records {
			_ = binary.Write(buf, binary.LittleEndian, r.ExtHash)
		}

		_ = binary.Write(buf, binary.LittleEndian, nameOffsets)
		_ = binary.Write(buf, binary.LittleEndian, uint32(names.Len()))
		buf.Write(names.Bytes())

		total += uint64(len(v.Records))
	}

	_ = binary.Write(buf, binary.LittleEndian, total)
	return nil
}
