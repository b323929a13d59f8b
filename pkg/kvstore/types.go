// Package kvstore implements the single-writer keyspace: a mailbox
// actor that owns an in-memory Key -> Value map exclusively, fed by a
// bounded channel of requests. No caller ever touches the map directly;
// every read or write is a round trip through the engine's queue, except
// startup replay through Engine.Replay, which applies commands directly.
package kvstore

// Key is the canonical representation of a keyspace key: an opaque byte
// sequence compared and hashed over raw bytes.
type Key []byte

// ValueKind tags the shape stored under a Key.
type ValueKind int

const (
	KindInt ValueKind = iota
	KindBlob
	KindSet
	// KindHash is declared but not exercised by any recognized command.
	KindHash
)

// Value is the sum of shapes the engine supports. Only one of the
// fields is meaningful, selected by Kind.
type Value struct {
	Kind ValueKind
	Int  int64
	Blob []byte
	// Set holds members keyed by their raw bytes (as a string, since Go
	// map keys must be comparable); the byte content is in the key.
	Set map[string][]byte
	Hash map[string][]byte
}

// IntValue builds an Int-kinded Value.
func IntValue(i int64) Value { return Value{Kind: KindInt, Int: i} }

// BlobValue builds a Blob-kinded Value. The slice is not copied; callers
// must not mutate it afterward.
func BlobValue(b []byte) Value { return Value{Kind: KindBlob, Blob: b} }

// NewSet builds an empty Set-kinded Value.
func NewSet() Value { return Value{Kind: KindSet, Set: make(map[string][]byte)} }

// cloneValue returns a deep-enough copy for safe hand-off across the
// reply channel: slices and maps are copied so the caller cannot observe
// (or corrupt) the engine's live state.
func cloneValue(v Value) Value {
	switch v.Kind {
	case KindBlob:
		b := make([]byte, len(v.Blob))
		copy(b, v.Blob)
		return Value{Kind: KindBlob, Blob: b}
	case KindSet:
		s := make(map[string][]byte, len(v.Set))
		for k, member := range v.Set {
			m := make([]byte, len(member))
			copy(m, member)
			s[k] = m
		}
		return Value{Kind: KindSet, Set: s}
	case KindHash:
		h := make(map[string][]byte, len(v.Hash))
		for k, val := range v.Hash {
			cv := make([]byte, len(val))
			copy(cv, val)
			h[k] = cv
		}
		return Value{Kind: KindHash, Hash: h}
	default:
		return v
	}
}
