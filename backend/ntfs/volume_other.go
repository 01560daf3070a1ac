//go:build !windows

package ntfs

import "github.com/padiauj/glint/internal/glinterr"

type winVolume struct{}

func openVolume(letter string) (*winVolume, error) {
	return nil, glinterr.Newf(glinterr.Unsupported, "raw NTFS volume access unavailable on this platform for %s", letter)
}

func (v *winVolume) ReadAt(buf []byte, offset int64) (int, error) {
	return 0, glinterr.New(glinterr.Unsupported, "raw NTFS volume access unavailable on this platform")
}

func (v *winVolume) Close() error { return nil }

func listVolumeLetters() ([]string, error) {
	return nil, glinterr.New(glinterr.Unsupported, "NTFS volume enumeration unavailable on this platform")
}
