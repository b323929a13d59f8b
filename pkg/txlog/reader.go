package txlog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"kvnode/pkg/kvstore"
)

// CorruptionPolicy selects what happens when the reader encounters a
// short or malformed record instead of a clean end-of-file.
type CorruptionPolicy int

const (
	// PolicyFail propagates the corruption as a fatal error, matching
	// the specified surface's "panic" behavior for a short read.
	PolicyFail CorruptionPolicy = iota
	// PolicySkip logs the corruption and stops iteration at that point,
	// as if the file had cleanly ended there.
	PolicySkip
)

// ErrCorrupt wraps the underlying decode failure when PolicyFail is in
// effect.
type ErrCorrupt struct {
	Err error
}

func (e *ErrCorrupt) Error() string { return fmt.Sprintf("txlog: corrupt record: %v", e.Err) }
func (e *ErrCorrupt) Unwrap() error { return e.Err }

// Reader iterates the records of a log file from the start, in the
// order they were written.
type Reader struct {
	r      *bufio.Reader
	closer io.Closer
	policy CorruptionPolicy
	log    *slog.Logger
	done   bool
}

// OpenReader opens path read-only. A missing file is not an error: it
// yields a Reader whose first Next returns io.EOF immediately, matching
// a process's first-ever startup before any record has been written.
func OpenReader(path string, policy CorruptionPolicy, log *slog.Logger) (*Reader, error) {
	if log == nil {
		log = slog.Default()
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Reader{r: bufio.NewReader(strEOFReader{}), policy: policy, log: log, done: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &Reader{r: bufio.NewReader(f), closer: f, policy: policy, log: log}, nil
}

// Close releases the underlying file handle, if any.
func (rd *Reader) Close() error {
	if rd.closer != nil {
		return rd.closer.Close()
	}
	return nil
}

// Next decodes the next record. It returns io.EOF once the file is
// exhausted cleanly (or, under PolicySkip, once corruption is hit) and
// never returns a record alongside a non-nil error.
func (rd *Reader) Next() (kvstore.LogRecord, error) {
	if rd.done {
		return kvstore.LogRecord{}, io.EOF
	}
	rec, err := rd.decodeOne()
	if err == nil {
		return rec, nil
	}
	if err == io.EOF {
		rd.done = true
		return kvstore.LogRecord{}, io.EOF
	}
	// Anything else is corruption: a short or malformed record.
	switch rd.policy {
	case PolicySkip:
		rd.log.Warn("txlog: corrupt record, stopping replay here", "err", err)
		rd.done = true
		return kvstore.LogRecord{}, io.EOF
	default:
		rd.done = true
		return kvstore.LogRecord{}, &ErrCorrupt{Err: err}
	}
}

func (rd *Reader) decodeOne() (kvstore.LogRecord, error) {
	tagByte, err := rd.r.ReadByte()
	if err != nil {
		if err == io.EOF {
			return kvstore.LogRecord{}, io.EOF
		}
		return kvstore.LogRecord{}, err
	}
	op := kvstore.RecordOp(tagByte)

	key, err := rd.readLenPrefixed()
	if err != nil {
		return kvstore.LogRecord{}, unexpectedEOFAsShortRead(err)
	}

	switch op {
	case kvstore.RecordIncr, kvstore.RecordDecr:
		return kvstore.LogRecord{Op: op, Key: key}, nil
	case kvstore.RecordSet:
		val, err := rd.readValue()
		if err != nil {
			return kvstore.LogRecord{}, err
		}
		return kvstore.LogRecord{Op: op, Key: key, Value: val}, nil
	case kvstore.RecordSAdd:
		member, err := rd.readLenPrefixed()
		if err != nil {
			return kvstore.LogRecord{}, unexpectedEOFAsShortRead(err)
		}
		return kvstore.LogRecord{Op: op, Key: key, Member: member}, nil
	default:
		return kvstore.LogRecord{}, fmt.Errorf("unknown record tag %q", tagByte)
	}
}

func (rd *Reader) readValue() (kvstore.Value, error) {
	valTag, err := rd.r.ReadByte()
	if err != nil {
		return kvstore.Value{}, unexpectedEOFAsShortRead(err)
	}
	switch valTag {
	case valueTagInt:
		var ibuf [8]byte
		if _, err := io.ReadFull(rd.r, ibuf[:]); err != nil {
			return kvstore.Value{}, unexpectedEOFAsShortRead(err)
		}
		return kvstore.IntValue(int64(binary.LittleEndian.Uint64(ibuf[:]))), nil
	case valueTagBlob:
		b, err := rd.readLenPrefixed()
		if err != nil {
			return kvstore.Value{}, unexpectedEOFAsShortRead(err)
		}
		return kvstore.BlobValue(b), nil
	default:
		return kvstore.Value{}, fmt.Errorf("unknown value tag %q", valTag)
	}
}

func (rd *Reader) readLenPrefixed() ([]byte, error) {
	var lbuf [8]byte
	if _, err := io.ReadFull(rd.r, lbuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint64(lbuf[:])
	b := make([]byte, n)
	if _, err := io.ReadFull(rd.r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// unexpectedEOFAsShortRead normalizes io.ReadFull's io.EOF (meaning
// "zero bytes read, would otherwise be a clean boundary for a fresh
// record") into a corruption signal when it happens mid-record: at
// this point the caller has already committed to decoding one record
// tag, so any EOF here is a short read, not a clean end-of-file.
func unexpectedEOFAsShortRead(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// strEOFReader is an io.Reader that always reports a clean EOF, used to
// give a missing log file the same shape as an exhausted one.
type strEOFReader struct{}

func (strEOFReader) Read([]byte) (int, error) { return 0, io.EOF }
