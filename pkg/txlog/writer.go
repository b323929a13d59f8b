package txlog

import (
	"context"
	"log/slog"
	"os"

	"kvnode/pkg/kvstore"
	"kvnode/pkg/metrics"
)

// writeRequest is one pending append, handed from Record/RecordBatch to
// the Run goroutine and acknowledged once write_all returns.
type writeRequest struct {
	data []byte
	done chan error
}

// Writer is the sole writer of the transaction log file. It satisfies
// kvstore.WriteAheadLog: the storage engine calls Record synchronously
// and blocks until the write has been handed to the underlying file (no
// fsync is issued — see the durability note on kvstore.WriteAheadLog).
type Writer struct {
	file    *os.File
	reqs    chan writeRequest
	log     *slog.Logger
	metrics *metrics.Registry
}

// NewWriter opens (creating if absent) the log file at path for
// appending, and constructs a Writer whose intake queue holds
// queueSize pending writes before callers block. reg may be nil to
// skip counters.
func NewWriter(path string, queueSize int, log *slog.Logger, reg *metrics.Registry) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Writer{file: f, reqs: make(chan writeRequest, queueSize), log: log, metrics: reg}, nil
}

// Run drains the intake queue until ctx is canceled, performing one
// write_all per request (or per batch) under no lock beyond the single
// goroutine boundary — there is exactly one Run caller per Writer.
func (w *Writer) Run(ctx context.Context) {
	defer w.file.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-w.reqs:
			_, err := w.file.Write(req.data)
			if err != nil {
				w.log.Error("txlog: write failed", "err", err)
			}
			req.done <- err
		}
	}
}

// Pending reports the number of writes currently queued but not yet
// handed to the file, for metrics exposition.
func (w *Writer) Pending() int { return len(w.reqs) }

// Record encodes rec and enqueues it, blocking until the write returns.
// A full intake queue blocks the caller with no timeout, matching the
// engine's "full log queue pauses the storage task mid-request"
// backpressure policy.
func (w *Writer) Record(rec kvstore.LogRecord) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := w.submit(data); err != nil {
		return err
	}
	if w.metrics != nil {
		w.metrics.LogWritesTotal.Inc()
	}
	return nil
}

// RecordBatch encodes every record in recs and writes them with a
// single write_all call.
func (w *Writer) RecordBatch(recs []kvstore.LogRecord) error {
	data, err := encodeBatch(recs)
	if err != nil {
		return err
	}
	if err := w.submit(data); err != nil {
		return err
	}
	if w.metrics != nil {
		w.metrics.LogWritesTotal.Add(float64(len(recs)))
	}
	return nil
}

func (w *Writer) submit(data []byte) error {
	done := make(chan error, 1)
	w.reqs <- writeRequest{data: data, done: done}
	return <-done
}
