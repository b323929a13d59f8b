// Package txlog implements the append-only, write-ahead command log:
// a writer goroutine owning the file handle, and a reader iterator used
// once at startup to replay a prior run's mutations into a fresh
// kvstore.Engine. The on-disk grammar is intentionally narrow — it logs
// only INCR, DECR, SET, and SADD, matching kvstore's write-ahead
// discipline; SREM/SINTER/SUNION/SMEMBERS never reach this package.
package txlog

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"kvnode/pkg/kvstore"
)

const (
	valueTagInt  = 'I'
	valueTagBlob = 'B'
)

// encodeRecord renders rec into its on-disk bytes: a one-byte op tag, an
// 8-byte little-endian key length, the key bytes, then an op-specific
// tail.
func encodeRecord(rec kvstore.LogRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(rec.Op))
	writeLenPrefixed(&buf, rec.Key)

	switch rec.Op {
	case kvstore.RecordIncr, kvstore.RecordDecr:
		// no tail
	case kvstore.RecordSet:
		switch rec.Value.Kind {
		case kvstore.KindInt:
			buf.WriteByte(valueTagInt)
			var ibuf [8]byte
			binary.LittleEndian.PutUint64(ibuf[:], uint64(rec.Value.Int))
			buf.Write(ibuf[:])
		case kvstore.KindBlob:
			buf.WriteByte(valueTagBlob)
			writeLenPrefixed(&buf, rec.Value.Blob)
		default:
			return nil, fmt.Errorf("txlog: SET record value must be Int or Blob, got kind %d", rec.Value.Kind)
		}
	case kvstore.RecordSAdd:
		writeLenPrefixed(&buf, rec.Member)
	default:
		return nil, fmt.Errorf("txlog: unknown record op %q", byte(rec.Op))
	}
	return buf.Bytes(), nil
}

func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	var lbuf [8]byte
	binary.LittleEndian.PutUint64(lbuf[:], uint64(len(b)))
	buf.Write(lbuf[:])
	buf.Write(b)
}

// encodeBatch concatenates the encoded bytes of every record in recs, so
// the writer can satisfy record_batch with a single write_all call.
func encodeBatch(recs []kvstore.LogRecord) ([]byte, error) {
	var buf bytes.Buffer
	for _, rec := range recs {
		b, err := encodeRecord(rec)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}
