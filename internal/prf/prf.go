// Package prf implements the shared keyed pseudorandom function that lets the
// two parties address tree leaves identically without communication. Both
// sides hold the same 32-byte key. ElementHash depends only on the key and
// the element, so a shared element gets the same insertion and probe hash on
// both sides; Next is a keyed counter-mode stream whose counter each Stream
// advances on its own (see spec.md §9 "Randomness source").
package prf

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// KeySize is the shared symmetric key length.
const KeySize = 32

// HashSize is the output length of Next, matching the wire HashList entry size.
const HashSize = 32

// Stream is a keyed counter-mode PRF. It is not safe for concurrent use;
// callers that need the hash for a given day advance it from a single
// goroutine, matching the single-threaded cooperative core (spec.md §5).
type Stream struct {
	key     [KeySize]byte
	counter uint64
}

// NewStream constructs a Stream from a pre-shared key. The key must be
// identical on both parties or the two trees will desynchronize.
func NewStream(key [KeySize]byte) *Stream {
	return &Stream{key: key}
}

// Next advances the counter and returns the next deterministic hash in the
// shared sequence: blake2b-256(key || counter).
func (s *Stream) Next() [HashSize]byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], s.counter)
	s.counter++

	h, err := blake2b.New256(s.key[:])
	if err != nil {
		// blake2b.New256 only fails on an oversized key, which never happens
		// here since KeySize == 32 is within range.
		panic("prf: blake2b keyed hash init failed: " + err.Error())
	}
	h.Write(buf[:])
	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Counter returns the number of hashes drawn so far, for resynchronization
// bookkeeping (e.g. replaying a stream after loading a saved tree).
func (s *Stream) Counter() uint64 { return s.counter }

// Seek sets the counter directly, used when restoring a stream's position
// after importing a previously-serialized tree (spec.md §6 "Files").
func (s *Stream) Seek(counter uint64) { s.counter = counter }

// ElementHash derives a deterministic probe hash for an element, independent
// of the insertion counter: blake2b-256(key || "probe" || element bytes).
// tree.Insert uses it as the insertion hash of a plaintext element and
// path() lookups use it as the probe hash, so both are reproducible from the
// element alone.
func (s *Stream) ElementHash(element []byte) [HashSize]byte {
	h, err := blake2b.New256(s.key[:])
	if err != nil {
		panic("prf: blake2b keyed hash init failed: " + err.Error())
	}
	h.Write([]byte("probe"))
	h.Write(element)
	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}
