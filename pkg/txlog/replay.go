package txlog

import (
	"io"
	"log/slog"

	"kvnode/pkg/kvstore"
	"kvnode/pkg/metrics"
)

// Replay drains rd into engine via engine.Replay, logging and skipping
// any individual record that fails to apply (a type mismatch, an
// overflow) while continuing to the end of the log — distinct from
// rd's own corruption policy, which governs malformed bytes rather than
// well-formed-but-inapplicable commands. reg may be nil to skip
// counters. Replay returns the number of records successfully applied
// and the first decode-level error, if any (nil on a clean or
// skip-terminated end of log).
func Replay(engine *kvstore.Engine, rd *Reader, log *slog.Logger, reg *metrics.Registry) (int, error) {
	if log == nil {
		log = slog.Default()
	}
	applied := 0
	for {
		rec, err := rd.Next()
		if err == io.EOF {
			return applied, nil
		}
		if err != nil {
			return applied, err
		}
		cmd, err := recordToCommand(rec)
		if err != nil {
			log.Warn("txlog: replay: unrepresentable record, skipping", "err", err)
			continue
		}
		if err := engine.Replay(cmd); err != nil {
			log.Warn("txlog: replay: command failed to apply, skipping", "op", rec.Op, "err", err)
			continue
		}
		applied++
		if reg != nil {
			reg.ReplayedTotal.Inc()
		}
	}
}

func recordToCommand(rec kvstore.LogRecord) (kvstore.StorageCommand, error) {
	switch rec.Op {
	case kvstore.RecordIncr:
		return kvstore.StorageCommand{Op: kvstore.OpIncr, Key: rec.Key}, nil
	case kvstore.RecordDecr:
		return kvstore.StorageCommand{Op: kvstore.OpDecr, Key: rec.Key}, nil
	case kvstore.RecordSet:
		return kvstore.StorageCommand{Op: kvstore.OpSet, Key: rec.Key, Value: rec.Value}, nil
	case kvstore.RecordSAdd:
		return kvstore.StorageCommand{Op: kvstore.OpSetAdd, Key: rec.Key, Member: rec.Member}, nil
	default:
		return kvstore.StorageCommand{}, errUnrepresentable(rec.Op)
	}
}

type unrepresentableOpError kvstore.RecordOp

func (e unrepresentableOpError) Error() string {
	return "txlog: record op " + string(rune(e)) + " has no StorageCommand mapping"
}

func errUnrepresentable(op kvstore.RecordOp) error { return unrepresentableOpError(op) }
