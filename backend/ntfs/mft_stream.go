package ntfs

import (
	"context"

	"github.com/padiauj/glint/backend"
	"github.com/padiauj/glint/internal/glinterr"
)

// recordCheckInterval mirrors the search path's coarse cancellation
// granularity (spec §5: "workers check it between records in coarse
// batches"), applied here to full-scan decoding too.
const recordCheckInterval = 4096

// Stream implements backend.RecordStream by walking $MFT sequentially,
// mapping each record's logical offset through the run list resolved at
// open time (spec §4.2 "walking its data-attribute run list").
type Stream struct {
	vol            rawVolume
	volumeName     string
	runs           []Run
	recordSize     int
	bytesPerSector int
	clusterSize    int
	totalClusters  uint64

	index    uint64
	total    uint64
	warnings uint64
	progress backend.ProgressSink

	// pendingNames holds any Win32 names of the record at pendingID beyond
	// the first, buffered here because Next returns one RawRecord per call
	// but a hardlinked MFT entry decodes to several at once.
	pendingNames   []NameAttr
	pendingID      uint64
	pendingFlags   backend.RecordFlags
	pendingSize    uint64
	pendingNameIdx int
}

// openStream resolves $MFT's own data runs from its bootstrap record
// (MFT record 0 describes itself) and prepares a Stream ready to decode
// records sequentially.
func openStream(vol rawVolume, bs *BootSector, volumeName string, progress backend.ProgressSink) (*Stream, error) {
	recordSize := bs.MFTRecordSize
	buf := make([]byte, recordSize)
	if _, err := vol.ReadAt(buf, bs.MFTStartByte()); err != nil {
		return nil, glinterr.Wrap(glinterr.Io, err, "read $MFT bootstrap record")
	}

	runs, totalClusters, err := mftDataRuns(buf, int(bs.BytesPerSector))
	if err != nil {
		return nil, err
	}

	totalBytes := totalClusters * uint64(bs.ClusterSize)
	total := totalBytes / uint64(recordSize)

	return &Stream{
		vol:            vol,
		volumeName:     volumeName,
		runs:           runs,
		recordSize:     recordSize,
		bytesPerSector: int(bs.BytesPerSector),
		clusterSize:    bs.ClusterSize,
		totalClusters:  totalClusters,
		total:          total,
		progress:       progress,
	}, nil
}

// mftDataRuns decodes $MFT's own non-resident $DATA attribute from its
// bootstrap FILE record to learn where the rest of the table lives on disk.
func mftDataRuns(record []byte, bytesPerSector int) ([]Run, uint64, error) {
	rec := make([]byte, len(record))
	copy(rec, record)
	if err := ApplyFixup(rec, bytesPerSector); err != nil {
		return nil, 0, err
	}

	attrsOffset := int(leUint16(rec, 20))
	offset := attrsOffset
	for offset+16 <= len(rec) {
		attrType := leUint32(rec, offset)
		if attrType == attrEnd {
			break
		}
		attrLen := leUint32(rec, offset+4)
		if attrLen == 0 || offset+int(attrLen) > len(rec) {
			break
		}
		nonResident := rec[offset+8]
		if attrType == attrData && nonResident == 1 {
			runListOffset := leUint16(rec, offset+32)
			body := rec[offset : offset+int(attrLen)]
			runs := DecodeRunList(body[runListOffset:])
			return runs, TotalClusters(runs), nil
		}
		offset += int(attrLen)
	}
	return nil, 0, glinterr.New(glinterr.Corrupt, "$MFT bootstrap record missing non-resident $DATA")
}

func leUint16(b []byte, off int) uint16 { return uint16(b[off]) | uint16(b[off+1])<<8 }
func leUint32(b []byte, off int) uint32 {
	return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
}

// resolvePhysicalOffset maps a logical byte offset within a virtual file
// described by runs to its physical byte offset on the volume, assuming (as
// NTFS guarantees for FILE records) that no single record straddles a run
// boundary.
func resolvePhysicalOffset(runs []Run, clusterSize int64, logical int64) (int64, bool) {
	vcn := logical / clusterSize
	within := logical % clusterSize

	var cursor int64
	for _, r := range runs {
		runLen := int64(r.Length)
		if vcn < cursor+runLen {
			if r.Sparse {
				return 0, false
			}
			lcnOffset := vcn - cursor
			return (r.LCN+lcnOffset)*clusterSize + within, true
		}
		cursor += runLen
	}
	return 0, false
}

func (s *Stream) physicalOffset(logical int64) (int64, bool) {
	return resolvePhysicalOffset(s.runs, int64(s.clusterSize), logical)
}

// readRecordAt reads the raw bytes of the MFT record at idx, without
// decoding it. Used both for the main scan and for following
// $ATTRIBUTE_LIST references to extension records elsewhere in $MFT.
func (s *Stream) readRecordAt(idx uint64) ([]byte, bool, error) {
	logical := int64(idx) * int64(s.recordSize)
	phys, ok := s.physicalOffset(logical)
	if !ok {
		return nil, false, nil // sparse/unallocated region of $MFT: no record here
	}
	buf := make([]byte, s.recordSize)
	if _, err := s.vol.ReadAt(buf, phys); err != nil {
		return nil, false, glinterr.Wrap(glinterr.Io, err, "read MFT record")
	}
	return buf, true, nil
}

// readNonResidentAttributeList reads a $ATTRIBUTE_LIST too large to be
// resident, following its run list cluster by cluster, then parses the
// entries it contains.
func (s *Stream) readNonResidentAttributeList(l *nonResidentAttrList) ([]uint64, error) {
	if l == nil || l.realSize == 0 {
		return nil, nil
	}
	buf := make([]byte, l.realSize)
	clusterSize := int64(s.clusterSize)
	var read uint64
	for read < l.realSize {
		phys, ok := resolvePhysicalOffset(l.runs, clusterSize, int64(read))
		if !ok {
			break
		}
		chunk := clusterSize
		if remaining := int64(l.realSize - read); chunk > remaining {
			chunk = remaining
		}
		if _, err := s.vol.ReadAt(buf[read:read+uint64(chunk)], phys); err != nil {
			return nil, glinterr.Wrap(glinterr.Io, err, "read non-resident $ATTRIBUTE_LIST")
		}
		read += uint64(chunk)
	}
	return decodeAttributeListEntries(buf), nil
}

// mergeAttributeListExtensions follows d's $ATTRIBUTE_LIST references once
// (resident and non-resident), reading each named extension record and
// merging in the $FILE_NAME/$DATA attributes that overflowed from the base
// record at idx (spec §4.2: "follow once; cycles terminate"). Corrupt or
// unreadable extension records are counted as warnings, not fatal: the
// base record's own attributes are still usable.
func (s *Stream) mergeAttributeListExtensions(idx uint64, d *Decoded) {
	refs := append([]uint64(nil), d.AttributeListRefs...)
	if d.extAttrList != nil {
		more, err := s.readNonResidentAttributeList(d.extAttrList)
		if err != nil {
			s.warnings++
		} else {
			refs = append(refs, more...)
		}
	}

	seen := map[uint64]bool{idx: true}
	for _, ref := range refs {
		if seen[ref] {
			continue
		}
		seen[ref] = true

		buf, ok, err := s.readRecordAt(ref)
		if err != nil {
			s.warnings++
			continue
		}
		if !ok {
			continue
		}
		if err := mergeExtensionAttributes(buf, s.bytesPerSector, d); err != nil {
			s.warnings++
		}
	}
}

// Next decodes the next live record, skipping torn records (counted as a
// warning per spec §4.2), not-in-use / BAAD records, and extension records
// (base reference points elsewhere — spec §4.2: "not an extension record
// (its base reference is self)") silently. A base record with more than
// one Win32 $FILE_NAME (a hardlink) is returned across multiple calls, one
// RawRecord per name with increasing NameIndex (spec §4.2, §9 Open
// Question (b)).
func (s *Stream) Next(ctx context.Context) (backend.RawRecord, bool, error) {
	if len(s.pendingNames) > 0 {
		n := s.pendingNames[0]
		s.pendingNames = s.pendingNames[1:]
		s.pendingNameIdx++
		return backend.RawRecord{
			ID:        s.pendingID,
			ParentID:  n.ParentID,
			Name:      n.Name,
			NameIndex: s.pendingNameIdx,
			Flags:     s.pendingFlags,
			Size:      s.pendingSize,
			MTime:     n.MTime,
		}, true, nil
	}

	for s.index < s.total {
		if s.index%recordCheckInterval == 0 {
			select {
			case <-ctx.Done():
				return backend.RawRecord{}, false, glinterr.New(glinterr.Cancelled, "full scan cancelled")
			default:
			}
			if s.progress != nil {
				s.progress("scanning", s.volumeName, s.index, s.total)
			}
		}

		idx := s.index
		s.index++

		buf, ok, err := s.readRecordAt(idx)
		if err != nil {
			return backend.RawRecord{}, false, err
		}
		if !ok {
			continue
		}

		d, ok, err := DecodeRecord(buf, s.bytesPerSector)
		if err != nil {
			s.warnings++
			continue
		}
		if !ok || !d.InUse {
			continue
		}
		if d.BaseRecordID != 0 {
			// extension record: its attributes are picked up through the
			// base record's $ATTRIBUTE_LIST instead of emitted standalone.
			continue
		}

		if len(d.AttributeListRefs) > 0 || d.extAttrList != nil {
			s.mergeAttributeListExtensions(idx, &d)
		}

		if len(d.Names) == 0 {
			// in-use base record with no usable $FILE_NAME anywhere (base
			// record or its extensions): nothing to index, not an error.
			continue
		}

		first := d.Names[0]
		if len(d.Names) > 1 {
			s.pendingNames = d.Names[1:]
			s.pendingID = idx
			s.pendingFlags = d.Flags
			s.pendingSize = d.Size
			s.pendingNameIdx = 0
		}

		return backend.RawRecord{
			ID:        idx,
			ParentID:  first.ParentID,
			Name:      first.Name,
			NameIndex: 0,
			Flags:     d.Flags,
			Size:      d.Size,
			MTime:     first.MTime,
		}, true, nil
	}
	return backend.RawRecord{}, false, nil
}

func (s *Stream) Warnings() uint64 { return s.warnings }

func (s *Stream) Close() error { return nil }
