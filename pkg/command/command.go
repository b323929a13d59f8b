// Package command folds a slice of decoded wire tokens into a typed
// Command, the unit of work the connection handler hands to the
// dispatcher. Folding is table-driven: each recognized command name
// carries a fixed argument count (or, for SINTER/SUNION, a minimum),
// checked against the tokens actually present before any argument is
// extracted.
package command

import (
	"fmt"
	"strings"

	"kvnode/pkg/wire"
)

// Name enumerates the recognized command verbs, uppercase as compared
// during dispatch.
type Name string

const (
	Echo      Name = "ECHO"
	CommandOp Name = "COMMAND"
	Get       Name = "GET"
	Set       Name = "SET"
	Incr      Name = "INCR"
	Decr      Name = "DECR"
	SAdd      Name = "SADD"
	SRem      Name = "SREM"
	SMembers  Name = "SMEMBERS"
	SInter    Name = "SINTER"
	SUnion    Name = "SUNION"
)

// KnownCommands is the canonical, ordered list of recognized command
// names, used for answering a COMMAND request. Argument counts are
// validated against argSpecs.
var KnownCommands = []Name{
	Echo, CommandOp, Get, Set, Incr, Decr, SAdd, SRem, SMembers, SInter, SUnion,
}

// Command is a fully-parsed request, ready for the dispatcher.
type Command struct {
	Name Name
	// Arg is the single scalar argument (ECHO's payload, GET/INCR/DECR/
	// SMEMBERS's key). Unused by commands with a different shape.
	Arg []byte
	// Key and Value are set by SET.
	Key   []byte
	Value []byte
	// Member is set by SADD/SREM alongside Key.
	Member []byte
	// Keys is set by SINTER, SUNION (len >= 1).
	Keys [][]byte
	// Unknown carries the raw, unrecognized verb.
	Unknown string
}

// ErrorKind classifies a ParseError.
type ErrorKind int

const (
	InsufficientTokens ErrorKind = iota
	Malformed
)

type ParseError struct {
	Kind   ErrorKind
	Reason string
}

func (e *ParseError) Error() string {
	if e.Kind == InsufficientTokens {
		return "command: insufficient tokens"
	}
	return "command: malformed: " + e.Reason
}

func insufficientTokens() error { return &ParseError{Kind: InsufficientTokens} }
func malformed(reason string) error { return &ParseError{Kind: Malformed, Reason: reason} }

// IsInsufficientTokens reports whether err signals that the caller should
// hold its tokens and wait for more to arrive.
func IsInsufficientTokens(err error) bool {
	pe, ok := err.(*ParseError)
	return ok && pe.Kind == InsufficientTokens
}

// argSpec describes how many argument tokens (excluding the command
// name) a verb requires: exact counts set min and max to the same value;
// variadic commands (SINTER/SUNION) set Max to -1 to mean "unbounded".
type argSpec struct {
	min int
	max int // -1 means unbounded
}

var argSpecs = map[Name]argSpec{
	Echo:      {1, 1},
	CommandOp: {0, 0},
	Get:       {1, 1},
	Set:       {2, 2},
	Incr:      {1, 1},
	Decr:      {1, 1},
	SAdd:      {2, 2},
	SRem:      {2, 2},
	SMembers:  {1, 1},
	SInter:    {1, -1},
	SUnion:    {1, -1},
}

// FromTokens folds the leading tokens of toks into a Command, returning
// the number of tokens consumed. It never consumes a partial command: on
// InsufficientTokens the caller's token slice is untouched.
func FromTokens(toks []wire.Token) (Command, int, error) {
	if len(toks) == 0 {
		return Command{}, 0, insufficientTokens()
	}
	head := toks[0]
	if head.Kind != wire.KindArray || head.Length <= 0 {
		return Command{}, 0, malformed("expected a positive array header")
	}
	length := int(head.Length)
	if len(toks)-1 < length {
		return Command{}, 0, insufficientTokens()
	}

	name, err := tokenToString(toks[1])
	if err != nil {
		return Command{}, 0, err
	}
	upper := Name(strings.ToUpper(name))

	spec, known := argSpecs[upper]
	argc := length - 1
	if !known {
		for i := 0; i < argc; i++ {
			if _, err := tokenToBlob(toks[2+i]); err != nil {
				return Command{}, 0, err
			}
		}
		return Command{Name: "", Unknown: string(upper)}, length + 1, nil
	}
	if argc < spec.min || (spec.max >= 0 && argc > spec.max) {
		return Command{}, 0, malformed(fmt.Sprintf("%s takes %s arguments, got %d", upper, argCountDescription(spec), argc))
	}

	args := make([][]byte, argc)
	for i := 0; i < argc; i++ {
		b, err := tokenToBlob(toks[2+i])
		if err != nil {
			return Command{}, 0, err
		}
		args[i] = b
	}

	cmd, err := buildCommand(upper, args)
	if err != nil {
		return Command{}, 0, err
	}
	return cmd, length + 1, nil
}

func argCountDescription(s argSpec) string {
	if s.max < 0 {
		return fmt.Sprintf("at least %d", s.min)
	}
	if s.min == s.max {
		return fmt.Sprintf("exactly %d", s.min)
	}
	return fmt.Sprintf("between %d and %d", s.min, s.max)
}

func buildCommand(name Name, args [][]byte) (Command, error) {
	switch name {
	case Echo:
		return Command{Name: Echo, Arg: args[0]}, nil
	case CommandOp:
		return Command{Name: CommandOp}, nil
	case Get:
		return Command{Name: Get, Arg: args[0]}, nil
	case Set:
		return Command{Name: Set, Key: args[0], Value: args[1]}, nil
	case Incr:
		return Command{Name: Incr, Arg: args[0]}, nil
	case Decr:
		return Command{Name: Decr, Arg: args[0]}, nil
	case SAdd:
		return Command{Name: SAdd, Key: args[0], Member: args[1]}, nil
	case SRem:
		return Command{Name: SRem, Key: args[0], Member: args[1]}, nil
	case SMembers:
		return Command{Name: SMembers, Arg: args[0]}, nil
	case SInter:
		return Command{Name: SInter, Keys: args}, nil
	case SUnion:
		return Command{Name: SUnion, Keys: args}, nil
	default:
		return Command{}, malformed("unreachable command name " + string(name))
	}
}

// tokenToString extracts a command name from a header token: a
// SimpleString or a non-null BulkString. A bulk string's bytes are
// converted as-is; they are not checked for valid UTF-8.
func tokenToString(t wire.Token) (string, error) {
	switch t.Kind {
	case wire.KindSimpleString:
		return t.Str, nil
	case wire.KindBulkString:
		if t.Null {
			return "", malformed("command name may not be the null bulk string")
		}
		return string(t.Bulk), nil
	default:
		return "", malformed("expected a simple or bulk string for the command name")
	}
}

// tokenToBlob coerces an argument token to its byte payload: the UTF-8
// bytes of a SimpleString, or a non-null BulkString's bytes. Any other
// token shape is malformed.
func tokenToBlob(t wire.Token) ([]byte, error) {
	switch t.Kind {
	case wire.KindSimpleString:
		return []byte(t.Str), nil
	case wire.KindBulkString:
		if t.Null {
			return nil, malformed("argument may not be the null bulk string")
		}
		return t.Bulk, nil
	default:
		return nil, malformed("expected a simple or bulk string argument")
	}
}
