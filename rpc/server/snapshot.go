package server

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/klauspost/compress/zstd"
)

// snapshotPath returns the file holding the snapshot of a local shard
func snapshotPath(dataDir string, shardID uint64) string {
	return filepath.Join(dataDir, fmt.Sprintf("shard-%d.snap.zst", shardID))
}

// loadSnapshot restores s from its snapshot file. A missing file is not an error.
func loadSnapshot(s store.ISnapshotter, path string) (bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return false, fmt.Errorf("failed to open zstd stream: %w", err)
	}
	defer dec.Close()

	if err := s.Restore(dec); err != nil {
		return false, fmt.Errorf("failed to restore %s: %w", path, err)
	}
	return true, nil
}

// saveSnapshot writes the snapshot of s next to path and renames it into place,
// so a crash while saving keeps the previous snapshot.
func saveSnapshot(s store.ISnapshotter, path string) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = writeCompressed(s, tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func writeCompressed(s store.ISnapshotter, w io.Writer) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if err := s.Snapshot(enc); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}
