package dispatch

import (
	"context"
	"testing"

	"kvnode/pkg/command"
	"kvnode/pkg/kvstore"
	"kvnode/pkg/wire"
)

func newEngine(t *testing.T) *kvstore.Engine {
	t.Helper()
	e := kvstore.New(8, kvstore.NoopWAL{}, false, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go e.Run(ctx)
	return e
}

func TestDispatchEcho(t *testing.T) {
	e := newEngine(t)
	toks := Dispatch(e, command.Command{Name: command.Echo, Arg: []byte("hi")}, nil)
	if len(toks) != 1 || toks[0].Kind != wire.KindBulkString || string(toks[0].Bulk) != "hi" {
		t.Fatalf("got %+v", toks)
	}
}

func TestDispatchCommandListsKnownCommands(t *testing.T) {
	e := newEngine(t)
	toks := Dispatch(e, command.Command{Name: command.CommandOp}, nil)
	if toks[0].Kind != wire.KindArray || toks[0].Length != int64(len(command.KnownCommands)) {
		t.Fatalf("got %+v", toks)
	}
	if len(toks) != len(command.KnownCommands)+1 {
		t.Fatalf("got %d tokens", len(toks))
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	e := newEngine(t)
	toks := Dispatch(e, command.Command{Unknown: "FROBNICATE"}, nil)
	if len(toks) != 1 || toks[0].Kind != wire.KindError || toks[0].Str != "FROBNICATE is not implemented" {
		t.Fatalf("got %+v", toks)
	}
}

func TestDispatchSetThenGet(t *testing.T) {
	e := newEngine(t)
	setToks := Dispatch(e, command.Command{Name: command.Set, Key: []byte("k"), Value: []byte("v")}, nil)
	if len(setToks) != 1 || setToks[0].Kind != wire.KindSimpleString || setToks[0].Str != "OK" {
		t.Fatalf("got %+v", setToks)
	}
	getToks := Dispatch(e, command.Command{Name: command.Get, Arg: []byte("k")}, nil)
	if len(getToks) != 1 || string(getToks[0].Bulk) != "v" {
		t.Fatalf("got %+v", getToks)
	}
}

func TestDispatchGetMissingReturnsNullBulk(t *testing.T) {
	e := newEngine(t)
	toks := Dispatch(e, command.Command{Name: command.Get, Arg: []byte("missing")}, nil)
	if len(toks) != 1 || !toks[0].Null {
		t.Fatalf("got %+v", toks)
	}
}

func TestDispatchIncrReturnsDecimalBulkString(t *testing.T) {
	e := newEngine(t)
	toks := Dispatch(e, command.Command{Name: command.Incr, Arg: []byte("n")}, nil)
	if len(toks) != 1 || string(toks[0].Bulk) != "1" {
		t.Fatalf("got %+v", toks)
	}
}

func TestDispatchIncrOnSetIsWrongType(t *testing.T) {
	e := newEngine(t)
	Dispatch(e, command.Command{Name: command.SAdd, Key: []byte("s"), Member: []byte("m")}, nil)
	toks := Dispatch(e, command.Command{Name: command.Incr, Arg: []byte("s")}, nil)
	if len(toks) != 1 || toks[0].Kind != wire.KindError {
		t.Fatalf("got %+v", toks)
	}
	want := "WRONGTYPE Operation against a key holding the wrong kind of value"
	if toks[0].Str != want {
		t.Fatalf("got %q want %q", toks[0].Str, want)
	}
}

func TestDispatchSMembersReturnsArray(t *testing.T) {
	e := newEngine(t)
	Dispatch(e, command.Command{Name: command.SAdd, Key: []byte("s"), Member: []byte("a")}, nil)
	Dispatch(e, command.Command{Name: command.SAdd, Key: []byte("s"), Member: []byte("b")}, nil)
	toks := Dispatch(e, command.Command{Name: command.SMembers, Arg: []byte("s")}, nil)
	if toks[0].Kind != wire.KindArray || toks[0].Length != 2 {
		t.Fatalf("got %+v", toks)
	}
	if len(toks) != 3 {
		t.Fatalf("got %d tokens", len(toks))
	}
}
