// Package dispatch maps a parsed command.Command to a kvstore request
// and the request's reply back to the wire tokens a connection writes
// in response, implementing the command processor of the protocol.
package dispatch

import (
	"strconv"
	"time"

	"kvnode/pkg/command"
	"kvnode/pkg/kvstore"
	"kvnode/pkg/metrics"
	"kvnode/pkg/wire"
)

// queueSendTimeout bounds how long a dispatch waits to hand a request to
// the storage engine's queue before giving up.
const queueSendTimeout = time.Second

// Dispatch executes cmd against engine and returns the response tokens
// to write back to the connection, in order. reg may be nil, in which
// case no counters are incremented.
func Dispatch(engine *kvstore.Engine, cmd command.Command, reg *metrics.Registry) []wire.Token {
	opsLabel := string(cmd.Name)
	if opsLabel == "" {
		opsLabel = cmd.Unknown
	}
	if reg != nil {
		reg.OpsTotal.WithLabelValues(opsLabel).Inc()
	}

	switch cmd.Name {
	case command.Echo:
		return []wire.Token{wire.BulkString(cmd.Arg)}
	case command.CommandOp:
		return commandList()
	case "":
		return []wire.Token{wire.ErrorToken(cmd.Unknown + " is not implemented")}
	}

	storageCmd, ok := toStorageCommand(cmd)
	if !ok {
		return []wire.Token{wire.ErrorToken(cmd.Unknown + " is not implemented")}
	}

	reply := make(chan kvstore.Reply, 1)
	select {
	case engine.Queue() <- kvstore.Request{Cmd: storageCmd, Reply: reply}:
	case <-time.After(queueSendTimeout):
		return []wire.Token{wire.ErrorToken("timeout while sending to storage")}
	}

	r, ok := <-reply
	if !ok {
		return []wire.Token{wire.ErrorToken("no response from storage")}
	}
	return tokensForReply(cmd.Name, r)
}

func commandList() []wire.Token {
	toks := make([]wire.Token, 0, len(command.KnownCommands)+1)
	toks = append(toks, wire.Array(int64(len(command.KnownCommands))))
	for _, name := range command.KnownCommands {
		toks = append(toks, wire.BulkString([]byte(name)))
	}
	return toks
}

func toStorageCommand(cmd command.Command) (kvstore.StorageCommand, bool) {
	switch cmd.Name {
	case command.Get:
		return kvstore.StorageCommand{Op: kvstore.OpGet, Key: cmd.Arg}, true
	case command.Set:
		return kvstore.StorageCommand{Op: kvstore.OpSet, Key: cmd.Key, Value: kvstore.BlobValue(cmd.Value)}, true
	case command.Incr:
		return kvstore.StorageCommand{Op: kvstore.OpIncr, Key: cmd.Arg}, true
	case command.Decr:
		return kvstore.StorageCommand{Op: kvstore.OpDecr, Key: cmd.Arg}, true
	case command.SAdd:
		return kvstore.StorageCommand{Op: kvstore.OpSetAdd, Key: cmd.Key, Member: cmd.Member}, true
	case command.SRem:
		return kvstore.StorageCommand{Op: kvstore.OpSetRemove, Key: cmd.Key, Member: cmd.Member}, true
	case command.SMembers:
		return kvstore.StorageCommand{Op: kvstore.OpSetMembers, Key: cmd.Arg}, true
	case command.SInter:
		return kvstore.StorageCommand{Op: kvstore.OpSetIntersection, Keys: cmd.Keys}, true
	case command.SUnion:
		return kvstore.StorageCommand{Op: kvstore.OpSetUnion, Keys: cmd.Keys}, true
	default:
		return kvstore.StorageCommand{}, false
	}
}

func tokensForReply(name command.Name, r kvstore.Reply) []wire.Token {
	if r.Err != nil {
		return []wire.Token{wire.ErrorToken(errorMessage(r.Err))}
	}
	if r.Value == nil {
		switch name {
		case command.Set:
			return []wire.Token{wire.SimpleString("OK")}
		case command.Get:
			return []wire.Token{wire.NullBulk()}
		default:
			return []wire.Token{wire.ErrorToken("invalid response from storage")}
		}
	}
	switch r.Value.Kind {
	case kvstore.KindBlob:
		return []wire.Token{wire.BulkString(r.Value.Blob)}
	case kvstore.KindInt:
		return []wire.Token{wire.BulkString([]byte(strconv.FormatInt(r.Value.Int, 10)))}
	case kvstore.KindSet:
		toks := make([]wire.Token, 0, len(r.Value.Set)+1)
		toks = append(toks, wire.Array(int64(len(r.Value.Set))))
		for _, member := range r.Value.Set {
			toks = append(toks, wire.BulkString(member))
		}
		return toks
	default:
		return []wire.Token{wire.ErrorToken("invalid response from storage")}
	}
}

func errorMessage(err error) string {
	se, ok := err.(*kvstore.StorageError)
	if !ok {
		return "ERR unknown storage failure"
	}
	switch se.Kind {
	case kvstore.Overflow:
		return "ERR increment or decrement would overflow"
	case kvstore.NotAnInteger:
		return "WRONGTYPE Operation against a key holding the wrong kind of value"
	case kvstore.NotASet:
		return "WRONGTYPE Operation against a key holding the wrong kind of value"
	case kvstore.LogError:
		return "ERR unknown storage failure"
	default:
		return "ERR unknown storage failure"
	}
}
