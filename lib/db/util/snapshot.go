package util

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// --------------------------------------------------------------------------
// Snapshot format (shared by all engines)
// --------------------------------------------------------------------------

const (
	snapshotMagic   = "DDOCKV\x00\x00"
	snapshotVersion = 1
	bufferSize      = 1024 * 1024 // 1 MB
)

// SnapshotEntry is a single record of an engine snapshot
type SnapshotEntry struct {
	Key      string
	Value    []byte
	DeleteAt int64
	Index    uint64
}

// WriteSnapshot writes the header and all entries to w.
// Layout: magic, version (uint8), count (uint64), then per entry
// key length (uint32) + key, deleteAt (int64), index (uint64), value length (uint32) + value.
// All integers are little endian.
func WriteSnapshot(w io.Writer, entries []SnapshotEntry) error {
	bw := bufio.NewWriterSize(w, bufferSize)

	if _, err := bw.WriteString(snapshotMagic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(snapshotVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}

	for _, e := range entries {
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(e.Key))); err != nil {
			return err
		}
		if _, err := bw.WriteString(e.Key); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, e.DeleteAt); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, e.Index); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(e.Value))); err != nil {
			return err
		}
		if _, err := bw.Write(e.Value); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// ReadSnapshot reads a snapshot written by WriteSnapshot and calls fn for every entry.
// Reading stops at the first error returned by fn.
func ReadSnapshot(r io.Reader, fn func(e SnapshotEntry) error) error {
	br := bufio.NewReaderSize(r, bufferSize)

	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return fmt.Errorf("failed to read snapshot header: %w", err)
	}
	if string(magic) != snapshotMagic {
		return fmt.Errorf("invalid snapshot format: magic number mismatch")
	}

	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version: %d (expected %d)", version, snapshotVersion)
	}

	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return err
	}

	for i := uint64(0); i < count; i++ {
		var e SnapshotEntry

		var keyLen uint32
		if err := binary.Read(br, binary.LittleEndian, &keyLen); err != nil {
			return err
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(br, key); err != nil {
			return err
		}
		e.Key = string(key)

		if err := binary.Read(br, binary.LittleEndian, &e.DeleteAt); err != nil {
			return err
		}
		if err := binary.Read(br, binary.LittleEndian, &e.Index); err != nil {
			return err
		}

		var valueLen uint32
		if err := binary.Read(br, binary.LittleEndian, &valueLen); err != nil {
			return err
		}
		e.Value = make([]byte, valueLen)
		if _, err := io.ReadFull(br, e.Value); err != nil {
			return err
		}

		if err := fn(e); err != nil {
			return err
		}
	}

	return nil
}
