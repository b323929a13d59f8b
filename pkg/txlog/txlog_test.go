package txlog

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"kvnode/pkg/kvstore"
)

func writeAll(t *testing.T, path string, recs []kvstore.LogRecord) {
	t.Helper()
	w, err := NewWriter(path, 8, nil, nil)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	for _, rec := range recs {
		if err := w.Record(rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	cancel()
	time.Sleep(10 * time.Millisecond)
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.current")

	recs := []kvstore.LogRecord{
		{Op: kvstore.RecordSet, Key: []byte("k1"), Value: kvstore.BlobValue([]byte("v1"))},
		{Op: kvstore.RecordSet, Key: []byte("k2"), Value: kvstore.IntValue(42)},
		{Op: kvstore.RecordIncr, Key: []byte("k2")},
		{Op: kvstore.RecordDecr, Key: []byte("k2")},
		{Op: kvstore.RecordSAdd, Key: []byte("s"), Member: []byte("m1")},
	}
	writeAll(t, path, recs)

	rd, err := OpenReader(path, PolicyFail, nil)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer rd.Close()

	var got []kvstore.LogRecord
	for {
		rec, err := rd.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, rec)
	}

	if len(got) != len(recs) {
		t.Fatalf("got %d records, want %d", len(got), len(recs))
	}
	for i, rec := range got {
		want := recs[i]
		if rec.Op != want.Op || string(rec.Key) != string(want.Key) {
			t.Fatalf("record %d: got %+v want %+v", i, rec, want)
		}
	}
}

func TestOpenReaderMissingFileIsCleanEOF(t *testing.T) {
	dir := t.TempDir()
	rd, err := OpenReader(filepath.Join(dir, "nope.current"), PolicyFail, nil)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	_, err = rd.Next()
	if err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestCorruptTailFailPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.current")
	writeAll(t, path, []kvstore.LogRecord{
		{Op: kvstore.RecordSet, Key: []byte("k"), Value: kvstore.BlobValue([]byte("v"))},
	})
	// Append a truncated record: a tag byte followed by only two of the
	// eight length bytes.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.Write([]byte{byte(kvstore.RecordIncr), 0x01, 0x02}); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()

	rd, err := OpenReader(path, PolicyFail, nil)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer rd.Close()

	if _, err := rd.Next(); err != nil {
		t.Fatalf("first record: unexpected error: %v", err)
	}
	_, err = rd.Next()
	var ce *ErrCorrupt
	if err == nil {
		t.Fatalf("expected corruption error")
	}
	if ce, _ = err.(*ErrCorrupt); ce == nil {
		t.Fatalf("expected *ErrCorrupt, got %T: %v", err, err)
	}
}

func TestCorruptTailSkipPolicyStopsCleanly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.current")
	writeAll(t, path, []kvstore.LogRecord{
		{Op: kvstore.RecordSet, Key: []byte("k"), Value: kvstore.BlobValue([]byte("v"))},
	})
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.Write([]byte{byte(kvstore.RecordIncr), 0x01}); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()

	rd, err := OpenReader(path, PolicySkip, nil)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer rd.Close()

	if _, err := rd.Next(); err != nil {
		t.Fatalf("first record: unexpected error: %v", err)
	}
	_, err = rd.Next()
	if err != io.EOF {
		t.Fatalf("expected clean stop (io.EOF), got %v", err)
	}
}

func TestReplayAppliesRecordsAndSkipsFailures(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.current")
	writeAll(t, path, []kvstore.LogRecord{
		{Op: kvstore.RecordSAdd, Key: []byte("s"), Member: []byte("m")},
		{Op: kvstore.RecordIncr, Key: []byte("s")}, // fails: s is a set, not an integer
		{Op: kvstore.RecordSet, Key: []byte("k"), Value: kvstore.IntValue(7)},
	})

	rd, err := OpenReader(path, PolicyFail, nil)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer rd.Close()

	engine := kvstore.New(8, kvstore.NoopWAL{}, false, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	applied, err := Replay(engine, rd, nil, nil)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if applied != 2 {
		t.Fatalf("applied %d records, want 2", applied)
	}

	reply := make(chan kvstore.Reply, 1)
	engine.Queue() <- kvstore.Request{Cmd: kvstore.StorageCommand{Op: kvstore.OpGet, Key: []byte("k")}, Reply: reply}
	r := <-reply
	if r.Value == nil || r.Value.Int != 7 {
		t.Fatalf("got %+v", r)
	}
}
