//go:build windows

package ntfs

import (
	"context"
	"encoding/binary"
	"time"
	"unicode/utf16"
	"unsafe"

	"golang.org/x/sys/windows"
	"golang.org/x/text/unicode/norm"

	"github.com/padiauj/glint/backend"
	"github.com/padiauj/glint/internal/glinterr"
)

// FSCTL codes for the USN change journal. golang.org/x/sys/windows does not
// export these (only the newer FSCTL_READ_FILE_USN_DATA), so they are
// defined here from the documented ioctl numbering.
const (
	fsctlQueryUSNJournal = 0x000900f4
	fsctlReadUSNJournal  = 0x000900bb
)

// usnJournalData mirrors USN_JOURNAL_DATA_V0.
type usnJournalData struct {
	UsnJournalID uint64
	FirstUsn     int64
	NextUsn      int64
	LowestValid  int64
	MaxUsn       int64
	MaxSize      uint64
	AllocDelta   uint64
}

// readUSNJournalData mirrors READ_USN_JOURNAL_DATA_V0.
type readUSNJournalData struct {
	StartUSN          int64
	ReasonMask        uint32
	ReturnOnlyOnClose uint32
	Timeout           uint64
	BytesToWaitFor    uint64
	UsnJournalID      uint64
}

const usnReasonAll = 0xFFFFFFFF

const readBufferSize = 1 << 16 // byte size of each FSCTL_READ_USN_JOURNAL output buffer

type winWatch struct {
	events chan backend.RawChangeEvent
	errs   chan error
	cancel context.CancelFunc
	done   chan struct{}
}

func (w *winWatch) Events() <-chan backend.RawChangeEvent { return w.events }
func (w *winWatch) Errors() <-chan error                  { return w.errs }
func (w *winWatch) Close() error {
	w.cancel()
	<-w.done
	return nil
}

func openWatch(ctx context.Context, letter string, sinceUSN uint64) (backend.WatchHandle, error) {
	vol, err := openVolume(letter)
	if err != nil {
		return nil, err
	}

	var jd usnJournalData
	if err := deviceIoControl(vol.handle, fsctlQueryUSNJournal, nil, unsafe.Pointer(&jd), uint32(unsafe.Sizeof(jd))); err != nil {
		_ = vol.Close()
		return nil, err
	}

	startUSN := int64(sinceUSN)
	if sinceUSN == 0 {
		startUSN = jd.NextUsn
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w := &winWatch{
		events: make(chan backend.RawChangeEvent, 65536),
		errs:   make(chan error, 8),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go w.run(watchCtx, vol, jd.UsnJournalID, startUSN)
	return w, nil
}

func (w *winWatch) run(ctx context.Context, vol *winVolume, journalID uint64, startUSN int64) {
	defer close(w.done)
	defer vol.Close()

	buf := make([]byte, readBufferSize)
	usn := startUSN

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		req := readUSNJournalData{
			StartUSN:     usn,
			ReasonMask:   usnReasonAll,
			UsnJournalID: journalID,
		}

		var returned uint32
		err := windows.DeviceIoControl(
			vol.handle, fsctlReadUSNJournal,
			(*byte)(unsafe.Pointer(&req)), uint32(unsafe.Sizeof(req)),
			&buf[0], uint32(len(buf)),
			&returned, nil,
		)
		if err != nil {
			select {
			case w.errs <- err:
			case <-ctx.Done():
			}
			time.Sleep(time.Second)
			continue
		}
		if returned < 8 {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		nextUsn := int64(binary.LittleEndian.Uint64(buf[0:8]))
		records := buf[8:returned]

		for len(records) > 0 {
			ev, consumed, ok := parseUSNRecord(records)
			if !ok {
				break
			}
			select {
			case w.events <- ev:
			default:
				// channel full: backpressure per spec §4.4, caller should
				// treat this as JournalLost and rescan the volume.
				select {
				case w.errs <- glinterr.New(glinterr.JournalLost, "usn event channel full"):
				case <-ctx.Done():
				}
				return
			}
			records = records[consumed:]
		}

		usn = nextUsn
	}
}

// parseUSNRecord decodes one USN_RECORD_V2 from the front of buf, returning
// the translated event, the number of bytes consumed, and whether decoding
// succeeded.
func parseUSNRecord(buf []byte) (backend.RawChangeEvent, int, bool) {
	if len(buf) < 60 {
		return backend.RawChangeEvent{}, 0, false
	}
	recordLen := binary.LittleEndian.Uint32(buf[0:4])
	if recordLen == 0 || int(recordLen) > len(buf) {
		return backend.RawChangeEvent{}, 0, false
	}

	fileRef := binary.LittleEndian.Uint64(buf[8:16]) & 0x0000FFFFFFFFFFFF
	parentRef := binary.LittleEndian.Uint64(buf[16:24]) & 0x0000FFFFFFFFFFFF
	usn := binary.LittleEndian.Uint64(buf[24:32])
	reason := binary.LittleEndian.Uint32(buf[40:44])
	nameLen := binary.LittleEndian.Uint16(buf[56:58])
	nameOffset := binary.LittleEndian.Uint16(buf[58:60])

	var name string
	if int(nameOffset)+int(nameLen) <= int(recordLen) && int(nameOffset)+int(nameLen) <= len(buf) {
		raw := buf[nameOffset : int(nameOffset)+int(nameLen)]
		u16 := make([]uint16, len(raw)/2)
		for i := range u16 {
			u16[i] = binary.LittleEndian.Uint16(raw[i*2:])
		}
		name = norm.NFC.String(string(utf16.Decode(u16)))
	}

	ev := backend.RawChangeEvent{
		USN:       usn,
		FileID:    fileRef,
		ParentID:  parentRef,
		Name:      name,
		Reason:    translateReason(reason),
		Timestamp: time.Now(),
	}
	return ev, int(recordLen), true
}

// translateReason maps Win32 USN_REASON_* bits onto backend.ChangeReason.
func translateReason(r uint32) backend.ChangeReason {
	const (
		usnReasonFileCreate     = 0x00000100
		usnReasonRenameOldName  = 0x00001000
		usnReasonRenameNewName  = 0x00002000
		usnReasonDataExtend     = 0x00000002
		usnReasonDataOverwrite  = 0x00000001
		usnReasonDataTruncation = 0x00000004
		usnReasonClose          = 0x80000000
		usnReasonFileDelete     = 0x00000200
	)

	var out backend.ChangeReason
	if r&usnReasonFileCreate != 0 {
		out |= backend.ReasonCreate
	}
	if r&usnReasonRenameOldName != 0 {
		out |= backend.ReasonRenameOldName
	}
	if r&usnReasonRenameNewName != 0 {
		out |= backend.ReasonRenameNewName
	}
	if r&(usnReasonDataExtend|usnReasonDataOverwrite|usnReasonDataTruncation) != 0 {
		out |= backend.ReasonDataChange
	}
	if r&usnReasonClose != 0 {
		out |= backend.ReasonClose
	}
	if r&usnReasonFileDelete != 0 {
		out |= backend.ReasonDelete
	}
	return out
}

func deviceIoControl(h windows.Handle, code uint32, in unsafe.Pointer, out unsafe.Pointer, outSize uint32) error {
	var returned uint32
	var inPtr *byte
	if in != nil {
		inPtr = (*byte)(in)
	}
	return windows.DeviceIoControl(h, code, inPtr, 0, (*byte)(out), outSize, &returned, nil)
}
