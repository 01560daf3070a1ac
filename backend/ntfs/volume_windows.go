//go:build windows

package ntfs

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// winVolume wraps a raw `\\.\X:` device handle opened with backup-semantics
// access so unbuffered reads can cross the boot sector into $MFT without
// the filesystem driver interposing its own file-level view.
type winVolume struct {
	handle windows.Handle
}

func openVolume(letter string) (*winVolume, error) {
	path := fmt.Sprintf(`\\.\%s`, letter)
	u16, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, err
	}
	h, err := windows.CreateFile(
		u16,
		windows.GENERIC_READ,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS,
		0,
	)
	if err != nil {
		return nil, err
	}
	return &winVolume{handle: h}, nil
}

func (v *winVolume) ReadAt(buf []byte, offset int64) (int, error) {
	var overlapped windows.Overlapped
	overlapped.Offset = uint32(offset)
	overlapped.OffsetHigh = uint32(offset >> 32)

	var n uint32
	err := windows.ReadFile(v.handle, buf, &n, &overlapped)
	if err != nil {
		return int(n), err
	}
	return int(n), nil
}

func (v *winVolume) Close() error {
	return windows.CloseHandle(v.handle)
}

func listVolumeLetters() ([]string, error) {
	mask, err := windows.GetLogicalDrives()
	if err != nil {
		return nil, err
	}
	var letters []string
	for i := 0; i < 26; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		letters = append(letters, fmt.Sprintf("%c:", 'A'+i))
	}
	return letters, nil
}
