//go:build !windows

package ntfs

import (
	"context"

	"github.com/padiauj/glint/backend"
	"github.com/padiauj/glint/internal/glinterr"
)

func openWatch(ctx context.Context, letter string, sinceUSN uint64) (backend.WatchHandle, error) {
	return nil, glinterr.New(glinterr.Unsupported, "USN journal access unavailable on this platform")
}
