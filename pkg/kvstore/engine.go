package kvstore

import (
	"context"
	"log/slog"
	"math"
	"strconv"
)

// Op enumerates the storage-level operations the engine accepts. Each
// storage-backed command.Name maps to exactly one Op; ECHO and COMMAND
// have no Op.
type Op int

const (
	OpSet Op = iota
	OpGet
	OpIncr
	OpDecr
	OpSetAdd
	OpSetRemove
	OpSetMembers
	OpSetIntersection
	OpSetUnion
)

// StorageCommand is one request to the engine.
type StorageCommand struct {
	Op     Op
	Key    []byte
	Value  Value    // Set
	Member []byte   // SetAdd / SetRemove
	Keys   [][]byte // SetIntersection / SetUnion
}

// Reply is what the engine hands back through a request's reply
// channel. Value is nil when the operation produced no value (e.g. a
// successful SET).
type Reply struct {
	Value *Value
	Err   error
}

// Request pairs a command with the channel its reply will arrive on.
// Reply must be buffered with capacity >= 1 so the engine never blocks
// delivering to a sender that has already given up.
type Request struct {
	Cmd   StorageCommand
	Reply chan Reply
}

// Engine is the mailbox actor owning the keyspace. The zero value is not
// usable; construct with New.
type Engine struct {
	keyspace map[string]Value
	queue    chan Request
	wal      WriteAheadLog
	durable  bool
	log      *slog.Logger
}

// New constructs an Engine with a bounded request queue of the given
// depth, writing ahead through wal whenever durable is true. Replay
// callers should pass durable=false (and typically NoopWAL{}, though any
// WriteAheadLog is accepted) so reapplying logged commands does not
// re-log them.
func New(queueSize int, wal WriteAheadLog, durable bool, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		keyspace: make(map[string]Value),
		queue:    make(chan Request, queueSize),
		wal:      wal,
		durable:  durable,
		log:      log,
	}
}

// Queue returns the send-only handle other tasks enqueue requests on.
func (e *Engine) Queue() chan<- Request { return e.queue }

// Run drives the engine until ctx is canceled. There is exactly one
// caller of Run per Engine: the storage task.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-e.queue:
			reply := e.apply(req.Cmd)
			if req.Reply != nil {
				select {
				case req.Reply <- reply:
				default:
					e.log.Warn("storage: dropped reply, receiver not ready", "op", req.Cmd.Op)
				}
			}
		}
	}
}

// Replay applies cmd directly, bypassing the write-ahead log and the
// request queue, used only during startup log replay. Any error is the
// caller's to log-and-skip.
func (e *Engine) Replay(cmd StorageCommand) error {
	reply := e.applyLocked(cmd, false)
	return reply.Err
}

func (e *Engine) apply(cmd StorageCommand) Reply {
	return e.applyLocked(cmd, e.durable)
}

// applyLocked performs the actual state transition. "Locked" reflects
// that it only ever runs on the single storage goroutine — there is no
// separate mutex, the goroutine boundary IS the lock.
func (e *Engine) applyLocked(cmd StorageCommand, writeAhead bool) Reply {
	switch cmd.Op {
	case OpSet:
		if writeAhead {
			if err := e.record(LogRecord{Op: RecordSet, Key: cmd.Key, Value: cmd.Value}); err != nil {
				return Reply{Err: errLog(err)}
			}
		}
		e.keyspace[string(cmd.Key)] = cloneValue(cmd.Value)
		return Reply{}

	case OpGet:
		v, ok := e.keyspace[string(cmd.Key)]
		if !ok {
			return Reply{}
		}
		cv := cloneValue(v)
		return Reply{Value: &cv}

	case OpIncr, OpDecr:
		delta := int64(1)
		op := RecordIncr
		if cmd.Op == OpDecr {
			delta = -1
			op = RecordDecr
		}
		cur, err := e.currentInt(cmd.Key)
		if err != nil {
			return Reply{Err: err}
		}
		next, ok := addOverflowCheck(cur, delta)
		if !ok {
			return Reply{Err: errOverflow()}
		}
		if writeAhead {
			if err := e.record(LogRecord{Op: op, Key: cmd.Key}); err != nil {
				return Reply{Err: errLog(err)}
			}
		}
		e.keyspace[string(cmd.Key)] = IntValue(next)
		v := IntValue(next)
		return Reply{Value: &v}

	case OpSetAdd:
		set, err := e.currentSet(cmd.Key, true)
		if err != nil {
			return Reply{Err: err}
		}
		memberKey := string(cmd.Member)
		_, existed := set[memberKey]
		if writeAhead {
			if err := e.record(LogRecord{Op: RecordSAdd, Key: cmd.Key, Member: cmd.Member}); err != nil {
				return Reply{Err: errLog(err)}
			}
		}
		if !existed {
			m := make([]byte, len(cmd.Member))
			copy(m, cmd.Member)
			set[memberKey] = m
			e.keyspace[string(cmd.Key)] = Value{Kind: KindSet, Set: set}
		}
		result := IntValue(0)
		if !existed {
			result = IntValue(1)
		}
		return Reply{Value: &result}

	case OpSetRemove:
		set, err := e.requireSet(cmd.Key)
		if err != nil {
			return Reply{Err: err}
		}
		memberKey := string(cmd.Member)
		_, existed := set[memberKey]
		// Note: SREM is not written to the log (spec §4.4 coverage gap),
		// so a replay of the log never reproduces this removal.
		if existed {
			delete(set, memberKey)
			e.keyspace[string(cmd.Key)] = Value{Kind: KindSet, Set: set}
		}
		result := IntValue(0)
		if existed {
			result = IntValue(1)
		}
		return Reply{Value: &result}

	case OpSetMembers:
		set, err := e.currentSet(cmd.Key, false)
		if err != nil {
			return Reply{Err: err}
		}
		cv := cloneValue(Value{Kind: KindSet, Set: set})
		return Reply{Value: &cv}

	case OpSetIntersection:
		result, err := e.setIntersection(cmd.Keys)
		if err != nil {
			return Reply{Err: err}
		}
		return Reply{Value: &result}

	case OpSetUnion:
		result, err := e.setUnion(cmd.Keys)
		if err != nil {
			return Reply{Err: err}
		}
		return Reply{Value: &result}

	default:
		return Reply{Err: &StorageError{Kind: Failed}}
	}
}

func (e *Engine) record(rec LogRecord) error {
	return e.wal.Record(rec)
}

// currentInt resolves key to an int64, treating an absent key as 0,
// coercing a Blob whose bytes parse as a signed decimal, and rejecting
// anything else.
func (e *Engine) currentInt(key []byte) (int64, error) {
	v, ok := e.keyspace[string(key)]
	if !ok {
		return 0, nil
	}
	switch v.Kind {
	case KindInt:
		return v.Int, nil
	case KindBlob:
		n, err := strconv.ParseInt(string(v.Blob), 10, 64)
		if err != nil {
			return 0, errNotAnInteger()
		}
		return n, nil
	default:
		return 0, errNotAnInteger()
	}
}

// currentSet resolves key to its member map. An absent key always
// yields an empty set rather than NotASet; installIfMissing additionally
// installs that empty set into the keyspace (SADD needs somewhere to
// insert into, SMEMBERS just reads it). SINTER and SUNION apply the same
// absent-is-empty rule inline; SREM uses requireSet instead.
func (e *Engine) currentSet(key []byte, installIfMissing bool) (map[string][]byte, error) {
	v, ok := e.keyspace[string(key)]
	if !ok {
		empty := make(map[string][]byte)
		if installIfMissing {
			e.keyspace[string(key)] = Value{Kind: KindSet, Set: empty}
		}
		return empty, nil
	}
	if v.Kind != KindSet {
		return nil, errNotASet()
	}
	return v.Set, nil
}

// requireSet resolves key to its member map, reporting NotASet for both
// an absent key and a key holding a non-Set value — the stricter
// variant SREM needs, unlike SMEMBERS/SADD's absent-is-empty treatment.
func (e *Engine) requireSet(key []byte) (map[string][]byte, error) {
	v, ok := e.keyspace[string(key)]
	if !ok {
		return nil, errNotASet()
	}
	if v.Kind != KindSet {
		return nil, errNotASet()
	}
	return v.Set, nil
}

func (e *Engine) setIntersection(keys [][]byte) (Value, error) {
	if len(keys) == 0 {
		return Value{}, errNotASet()
	}
	sets := make([]map[string][]byte, 0, len(keys))
	for _, k := range keys {
		v, ok := e.keyspace[string(k)]
		if !ok {
			sets = append(sets, map[string][]byte{})
			continue
		}
		if v.Kind != KindSet {
			return Value{}, errNotASet()
		}
		sets = append(sets, v.Set)
	}
	result := make(map[string][]byte)
	for memberKey, memberBytes := range sets[0] {
		inAll := true
		for _, s := range sets[1:] {
			if _, ok := s[memberKey]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			result[memberKey] = memberBytes
		}
	}
	return Value{Kind: KindSet, Set: result}, nil
}

func (e *Engine) setUnion(keys [][]byte) (Value, error) {
	if len(keys) == 0 {
		return Value{}, errNotASet()
	}
	result := make(map[string][]byte)
	for _, k := range keys {
		v, ok := e.keyspace[string(k)]
		if !ok {
			continue
		}
		if v.Kind != KindSet {
			return Value{}, errNotASet()
		}
		for memberKey, memberBytes := range v.Set {
			result[memberKey] = memberBytes
		}
	}
	return Value{Kind: KindSet, Set: result}, nil
}

// addOverflowCheck mirrors the original's checked_add: detect signed
// 64-bit overflow without relying on wraparound behavior.
func addOverflowCheck(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	if a == math.MinInt64 && b == math.MinInt64 {
		return 0, false
	}
	return sum, true
}
