package ntfs

import (
	"context"

	"github.com/padiauj/glint/backend"
	"github.com/padiauj/glint/internal/glinterr"
)

func init() {
	backend.Register("ntfs", func() (backend.Backend, error) {
		return &Backend{}, nil
	})
}

// Backend is the fast-path NTFS implementation of backend.Backend: raw
// $MFT reads for full scans, the USN journal for live watching (spec
// §4.1-§4.4).
type Backend struct{}

func (b *Backend) Name() string { return "ntfs" }

func (b *Backend) ListVolumes(ctx context.Context) ([]backend.VolumeInfo, error) {
	letters, err := listVolumeLetters()
	if err != nil {
		return nil, err
	}

	var volumes []backend.VolumeInfo
	for _, letter := range letters {
		vol, err := openVolume(letter)
		if err != nil {
			continue // not NTFS, or inaccessible; skip rather than fail the whole enumeration
		}
		sector := make([]byte, 512)
		_, err = vol.ReadAt(sector, 0)
		_ = vol.Close()
		if err != nil {
			continue
		}
		bs, err := ParseBootSector(sector)
		if err != nil {
			continue // not NTFS
		}
		volumes = append(volumes, backend.VolumeInfo{
			Letter:      letter,
			ClusterSize: uint32(bs.ClusterSize),
		})
	}
	return volumes, nil
}

func (b *Backend) FullScan(ctx context.Context, volume backend.VolumeInfo, progress backend.ProgressSink) (backend.RecordStream, error) {
	vol, err := openVolume(volume.Letter)
	if err != nil {
		if glinterr.Is(err, glinterr.Unsupported) {
			return nil, err
		}
		return nil, glinterr.Wrapf(glinterr.Io, err, "open volume %s", volume.Letter)
	}

	sector := make([]byte, 512)
	if _, err := vol.ReadAt(sector, 0); err != nil {
		_ = vol.Close()
		return nil, glinterr.Wrap(glinterr.Io, err, "read boot sector")
	}
	bs, err := ParseBootSector(sector)
	if err != nil {
		_ = vol.Close()
		return nil, err
	}

	stream, err := openStream(vol, bs, volume.Letter, progress)
	if err != nil {
		_ = vol.Close()
		return nil, err
	}
	return stream, nil
}

func (b *Backend) OpenWatch(ctx context.Context, volume backend.VolumeInfo, sinceUSN uint64) (backend.WatchHandle, error) {
	return openWatch(ctx, volume.Letter, sinceUSN)
}

func (b *Backend) ResolveParent(ctx context.Context, volume backend.VolumeInfo, id uint64) (backend.RawRecord, bool, error) {
	vol, err := openVolume(volume.Letter)
	if err != nil {
		return backend.RawRecord{}, false, err
	}
	defer vol.Close()

	sector := make([]byte, 512)
	if _, err := vol.ReadAt(sector, 0); err != nil {
		return backend.RawRecord{}, false, glinterr.Wrap(glinterr.Io, err, "read boot sector")
	}
	bs, err := ParseBootSector(sector)
	if err != nil {
		return backend.RawRecord{}, false, err
	}

	stream, err := openStream(vol, bs, volume.Letter, nil)
	if err != nil {
		return backend.RawRecord{}, false, err
	}
	phys, ok := stream.physicalOffset(int64(id) * int64(stream.recordSize))
	if !ok {
		return backend.RawRecord{}, false, nil
	}

	buf := make([]byte, stream.recordSize)
	if _, err := vol.ReadAt(buf, phys); err != nil {
		return backend.RawRecord{}, false, glinterr.Wrap(glinterr.Io, err, "read MFT record")
	}
	d, ok, err := DecodeRecord(buf, stream.bytesPerSector)
	if err != nil || !ok || !d.InUse || d.BaseRecordID != 0 {
		return backend.RawRecord{}, false, nil
	}
	if len(d.AttributeListRefs) > 0 || d.extAttrList != nil {
		stream.mergeAttributeListExtensions(id, &d)
	}
	if len(d.Names) == 0 {
		return backend.RawRecord{}, false, nil
	}

	name := d.Names[0]
	return backend.RawRecord{
		ID:       id,
		ParentID: name.ParentID,
		Name:     name.Name,
		Flags:    d.Flags,
		Size:     d.Size,
		MTime:    name.MTime,
	}, true, nil
}
