package ntfs

import (
	"encoding/binary"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"

	"github.com/padiauj/glint/backend"
	"github.com/padiauj/glint/internal/glinterr"
)

const (
	attrStandardInfo  = 0x10
	attrAttributeList = 0x20
	attrFileName      = 0x30
	attrData          = 0x80
	attrEnd           = 0xFFFFFFFF
)

// Win32/DOS name-type tags carried by $FILE_NAME (spec §4.2: "choose Win32
// namespace if both Win32 and DOS exist; skip DOS-only").
const (
	nameTypePosix       = 0
	nameTypeWin32       = 1
	nameTypeDOS         = 2
	nameTypeWin32AndDOS = 3
)

const (
	fileAttrReadOnly  = 0x0001
	fileAttrHidden    = 0x0002
	fileAttrSystem    = 0x0004
	fileAttrDirectory = 0x0010
	fileAttrReparse   = 0x0400
)

// recordHeaderFlags mirrors the MFT FILE record header's own Flags field.
const (
	recordFlagInUse     = 0x0001
	recordFlagDirectory = 0x0002
)

// baseRecordMask strips the sequence-number bits out of a FILE reference,
// leaving just the MFT index (spec §4.2 masking convention, same as parent
// references inside $FILE_NAME and USN_RECORD).
const baseRecordMask = 0x0000FFFFFFFFFFFF

// NameAttr is one $FILE_NAME attribute instance decoded from a record. A
// single MFT entry carries more than one of these when it is hardlinked:
// each hardlink has its own parent directory and possibly its own name
// (spec §4.2, §9 Open Question (b)).
type NameAttr struct {
	ParentID uint64
	Name     string
	MTime    uint64
}

// nonResidentAttrList is a $ATTRIBUTE_LIST too large to fit resident in its
// owning record; Decoded can't read it itself (it has no volume handle), so
// it hands the run list back to the Stream that can.
type nonResidentAttrList struct {
	runs     []Run
	realSize uint64
}

// Decoded is the result of decoding one 1024-byte FILE record, still
// missing its own MFT index (the caller knows that from the record's
// position, not its contents).
type Decoded struct {
	Names []NameAttr
	Flags backend.RecordFlags
	Size  uint64
	InUse bool

	// BaseRecordID is the masked base-record reference at header offset 32.
	// Zero means this record is itself a base record; non-zero means it is
	// an extension record holding attributes that overflowed from another
	// record and must not be emitted on its own (spec §4.2: "not an
	// extension record (its base reference is self)").
	BaseRecordID uint64

	// AttributeListRefs are MFT indices named by a resident $ATTRIBUTE_LIST,
	// to be followed once by the caller to pick up attributes that live in
	// extension records (spec §4.2: "follow once; cycles terminate").
	AttributeListRefs []uint64

	extAttrList *nonResidentAttrList
}

// ApplyFixup validates and repairs the per-sector fixup array every NTFS
// FILE and INDX record carries: the last two bytes of each 512-byte sector
// are saved in the update sequence array and replaced on disk with the
// update sequence number, so torn writes (a crash mid-write) are
// detectable. A mismatch means the record is torn (spec §4.2 step 2) and
// the caller should skip it as a counted warning, not a fatal error.
func ApplyFixup(record []byte, bytesPerSector int) error {
	if len(record) < 8 {
		return glinterr.New(glinterr.Corrupt, "record too short for fixup header")
	}
	usaOffset := binary.LittleEndian.Uint16(record[4:6])
	usaSize := binary.LittleEndian.Uint16(record[6:8])
	if usaSize < 1 {
		return nil
	}
	if int(usaOffset)+int(usaSize)*2 > len(record) {
		return glinterr.New(glinterr.Corrupt, "fixup array out of bounds")
	}

	signature := record[usaOffset : usaOffset+2]
	sectors := len(record) / bytesPerSector

	for i := 0; i < sectors && i+1 < int(usaSize); i++ {
		pos := (i+1)*bytesPerSector - 2
		if pos+2 > len(record) {
			break
		}
		if record[pos] != signature[0] || record[pos+1] != signature[1] {
			return glinterr.New(glinterr.Corrupt, "fixup signature mismatch: torn record")
		}
		fixupOff := int(usaOffset) + (i+1)*2
		record[pos] = record[fixupOff]
		record[pos+1] = record[fixupOff+1]
	}
	return nil
}

// DecodeRecord validates the FILE signature, applies the fixup array, and
// walks attributes to assemble a Decoded record. BAAD-signed records (NTFS
// marks a record BAAD when a prior fixup check already failed) and records
// whose in-use bit is clear are reported via ok=false rather than an error,
// since "deleted and never reused" is an expected steady state, not
// corruption.
//
// Extension records (BaseRecordID != 0) are decoded only far enough to
// report that fact; their attributes are picked up separately when the
// caller follows the base record's $ATTRIBUTE_LIST via
// mergeExtensionAttributes.
func DecodeRecord(raw []byte, bytesPerSector int) (Decoded, bool, error) {
	record := make([]byte, len(raw))
	copy(record, raw)

	if len(record) < 48 {
		return Decoded{}, false, glinterr.New(glinterr.Corrupt, "record shorter than header")
	}
	magic := string(record[0:4])
	if magic == "BAAD" {
		return Decoded{}, false, nil
	}
	if magic != "FILE" {
		return Decoded{}, false, glinterr.New(glinterr.Corrupt, "bad FILE record signature")
	}

	if err := ApplyFixup(record, bytesPerSector); err != nil {
		return Decoded{}, false, err
	}

	headerFlags := binary.LittleEndian.Uint16(record[22:24])
	inUse := headerFlags&recordFlagInUse != 0
	isDirByHeader := headerFlags&recordFlagDirectory != 0
	baseRef := binary.LittleEndian.Uint64(record[32:40]) & baseRecordMask

	attrsOffset := binary.LittleEndian.Uint16(record[20:22])

	var d Decoded
	d.InUse = inUse
	d.BaseRecordID = baseRef
	if isDirByHeader {
		d.Flags |= backend.FlagIsDirectory
	}
	if !inUse {
		d.Flags |= backend.FlagIsDeletedTombstone
	}

	if baseRef == 0 {
		walkAttributes(record, int(attrsOffset), &d, true)
	}

	return d, true, nil
}

// offsetNonResidentRealSize is the byte offset of RealSize within a
// non-resident attribute body (16-byte common header + 32 bytes of
// non-resident-specific fields: StartVCN, EndVCN, DataRunsOffset,
// CompressionUnit, padding, AllocSize, then RealSize).
const offsetNonResidentRealSize = 16 + 32

// walkAttributes scans record's attribute list starting at attrsOffset,
// decoding $FILE_NAME and $DATA into d. followLists controls whether
// $ATTRIBUTE_LIST entries are captured for the caller to chase down — set
// for a record's own attribute walk, cleared when merging in an extension
// record's attributes so a chain of extension records can't recurse
// (spec §4.2: "follow once; cycles terminate").
func walkAttributes(record []byte, attrsOffset int, d *Decoded, followLists bool) {
	offset := attrsOffset
	for offset+16 <= len(record) {
		attrType := binary.LittleEndian.Uint32(record[offset:])
		if attrType == attrEnd {
			break
		}
		attrLen := binary.LittleEndian.Uint32(record[offset+4:])
		if attrLen == 0 || offset+int(attrLen) > len(record) {
			break
		}
		nonResident := record[offset+8]
		body := record[offset : offset+int(attrLen)]

		switch attrType {
		case attrFileName:
			if nonResident == 0 {
				decodeFileName(body, d)
			}

		case attrData:
			if len(body) >= 16 && nonResident == 0 {
				// resident data: ValueLength is at offset 16 of the attribute.
				if len(body) >= 20 {
					d.Size = uint64(binary.LittleEndian.Uint32(body[16:20]))
				}
			} else if nonResident == 1 && len(body) >= offsetNonResidentRealSize+8 {
				// non-resident: RealSize sits 32 bytes into the non-resident
				// header that follows the common 16-byte attribute header.
				d.Size = binary.LittleEndian.Uint64(body[offsetNonResidentRealSize:])
			}

		case attrAttributeList:
			if followLists {
				decodeAttributeList(body, nonResident, d)
			}
		}

		offset += int(attrLen)
	}
}

// decodeAttributeList records which extension records a record's
// $ATTRIBUTE_LIST points to, so the caller can go read them. Resident lists
// are parsed immediately; non-resident ones (large lists, e.g. very heavily
// fragmented or hardlinked files) are handed back as a run list for the
// caller to read from the volume.
func decodeAttributeList(body []byte, nonResident byte, d *Decoded) {
	if nonResident == 0 {
		if len(body) < 24 {
			return
		}
		valueLength := binary.LittleEndian.Uint32(body[16:20])
		valueOffset := binary.LittleEndian.Uint16(body[20:22])
		end := int(valueOffset) + int(valueLength)
		if end > len(body) {
			return
		}
		d.AttributeListRefs = append(d.AttributeListRefs, decodeAttributeListEntries(body[valueOffset:end])...)
		return
	}

	if len(body) < 34 {
		return
	}
	runListOffset := binary.LittleEndian.Uint16(body[32:34])
	if int(runListOffset) >= len(body) {
		return
	}
	var realSize uint64
	if len(body) >= offsetNonResidentRealSize+8 {
		realSize = binary.LittleEndian.Uint64(body[offsetNonResidentRealSize:])
	}
	d.extAttrList = &nonResidentAttrList{
		runs:     DecodeRunList(body[runListOffset:]),
		realSize: realSize,
	}
}

// decodeAttributeListEntries parses the ATTRIBUTE_LIST_ENTRY records packed
// into list, returning the masked MFT index each entry's base file
// reference names.
func decodeAttributeListEntries(list []byte) []uint64 {
	var refs []uint64
	offset := 0
	for offset+26 <= len(list) {
		entryLen := int(binary.LittleEndian.Uint16(list[offset+4 : offset+6]))
		if entryLen < 26 || offset+entryLen > len(list) {
			break
		}
		baseRef := binary.LittleEndian.Uint64(list[offset+16:offset+24]) & baseRecordMask
		refs = append(refs, baseRef)
		offset += entryLen
	}
	return refs
}

// mergeExtensionAttributes reads one extension FILE record (located by the
// caller via a base record's $ATTRIBUTE_LIST) and merges any additional
// $FILE_NAME/$DATA attributes it holds into d. The extension record's own
// $ATTRIBUTE_LIST, if it has one, is not followed further.
func mergeExtensionAttributes(raw []byte, bytesPerSector int, d *Decoded) error {
	record := make([]byte, len(raw))
	copy(record, raw)
	if len(record) < 48 {
		return glinterr.New(glinterr.Corrupt, "extension record shorter than header")
	}
	if string(record[0:4]) != "FILE" {
		return nil // BAAD or an unallocated slot: nothing to merge
	}
	if err := ApplyFixup(record, bytesPerSector); err != nil {
		return err
	}
	attrsOffset := int(binary.LittleEndian.Uint16(record[20:22]))
	walkAttributes(record, attrsOffset, d, false)
	return nil
}

func decodeFileName(attr []byte, d *Decoded) {
	if len(attr) < 24 {
		return
	}
	valueOffset := binary.LittleEndian.Uint16(attr[20:22])
	if int(valueOffset)+66 > len(attr) {
		return
	}
	v := attr[valueOffset:]

	parentRef := binary.LittleEndian.Uint64(v[0:8]) & baseRecordMask
	fileAttrs := binary.LittleEndian.Uint32(v[56:60])
	nameLen := int(v[64])
	nameType := int(v[65])

	if nameType == nameTypeDOS {
		// skip DOS-only short names; spec §4.2 "skip DOS-only" — a hardlink's
		// short-name alias never becomes a name of its own.
		return
	}
	if int(66+nameLen*2) > len(v) {
		return
	}

	name := decodeUTF16(v[66 : 66+nameLen*2])

	// Every non-DOS $FILE_NAME is a distinct, real name: for a hardlinked
	// file this may be the same MFT entry appearing under several parents,
	// each emitted as its own NameAttr (spec §4.2, §9 Open Question (b)).
	d.Names = append(d.Names, NameAttr{
		ParentID: parentRef,
		Name:     name,
		MTime:    binary.LittleEndian.Uint64(v[16:24]),
	})

	if fileAttrs&fileAttrHidden != 0 {
		d.Flags |= backend.FlagIsHidden
	}
	if fileAttrs&fileAttrSystem != 0 {
		d.Flags |= backend.FlagIsSystem
	}
	if fileAttrs&fileAttrReparse != 0 {
		d.Flags |= backend.FlagIsReparsePoint
	}
}

// decodeUTF16 decodes a $FILE_NAME attribute's UTF-16LE name and normalizes
// it to NFC, the way backend/local.go normalizes names on read so that
// visually identical names in different Unicode decomposition forms compare
// and hash equal.
func decodeUTF16(b []byte) string {
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	u16 := make([]uint16, len(b)/2)
	for i := range u16 {
		u16[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return norm.NFC.String(string(utf16.Decode(u16)))
}
