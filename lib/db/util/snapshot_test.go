package util

import (
	"bytes"
	"errors"
	"testing"
)

func TestSnapshotRoundTrip(t *testing.T) {
	entries := []SnapshotEntry{
		{Key: "a", Value: []byte("1"), Index: 1},
		{Key: "", Value: []byte{}, Index: 2},
		{Key: "users_$dbindex", Value: []byte(`[]`), DeleteAt: 123, Index: 3},
	}

	var buf bytes.Buffer
	if err := WriteSnapshot(&buf, entries); err != nil {
		t.Fatalf("WriteSnapshot failed: %v", err)
	}

	var got []SnapshotEntry
	err := ReadSnapshot(&buf, func(e SnapshotEntry) error {
		got = append(got, e)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadSnapshot failed: %v", err)
	}

	if len(got) != len(entries) {
		t.Fatalf("expected %d entries, got %d", len(entries), len(got))
	}
	for i := range entries {
		if got[i].Key != entries[i].Key || !bytes.Equal(got[i].Value, entries[i].Value) ||
			got[i].DeleteAt != entries[i].DeleteAt || got[i].Index != entries[i].Index {
			t.Errorf("entry %d: expected %+v, got %+v", i, entries[i], got[i])
		}
	}
}

func TestSnapshotErrors(t *testing.T) {
	t.Run("bad magic", func(t *testing.T) {
		err := ReadSnapshot(bytes.NewReader([]byte("NOTASNAPSHOT")), func(SnapshotEntry) error { return nil })
		if err == nil {
			t.Error("expected error for bad magic")
		}
	})

	t.Run("truncated", func(t *testing.T) {
		var buf bytes.Buffer
		_ = WriteSnapshot(&buf, []SnapshotEntry{{Key: "k", Value: []byte("value")}})
		data := buf.Bytes()[:buf.Len()-2]
		err := ReadSnapshot(bytes.NewReader(data), func(SnapshotEntry) error { return nil })
		if err == nil {
			t.Error("expected error for truncated snapshot")
		}
	})

	t.Run("callback error", func(t *testing.T) {
		var buf bytes.Buffer
		_ = WriteSnapshot(&buf, []SnapshotEntry{{Key: "k"}})
		stop := errors.New("stop")
		err := ReadSnapshot(&buf, func(SnapshotEntry) error { return stop })
		if !errors.Is(err, stop) {
			t.Errorf("expected callback error, got %v", err)
		}
	})
}
