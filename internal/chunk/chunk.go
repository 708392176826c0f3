// Package chunk implements the reference-counted byte chunk pool and the
// zero-copy chunked stream (streambuf) used to hold message bytes as they
// arrive off the wire and as they are reassembled for delivery.
package chunk

// Size is the capacity of a freshly allocated mutable chunk.
const Size = 16 * 1024

// Chunk is an immutable-after-publication byte container. A mutable chunk
// (allocated by the pool) may be written to until it is committed into a
// View; after that point its bytes never change, matching the "once a byte
// is committed it is never mutated" invariant.
type Chunk interface {
	// Bytes returns the full backing array. Callers must only look at the
	// sub-range described by the View that references this chunk.
	Bytes() []byte
	// Mutable reports whether the chunk's backing array may still be
	// written to by its owner (the pool) before being committed.
	Mutable() bool
}

// stringChunk wraps an owned Go string (e.g. a synthesised header).
type stringChunk struct{ s string }

func NewStringChunk(s string) Chunk { return &stringChunk{s: s} }
func (c *stringChunk) Bytes() []byte { return []byte(c.s) }
func (c *stringChunk) Mutable() bool { return false }

// literalChunk wraps a static byte literal (e.g. "\r\n", ".\r\n").
type literalChunk struct{ b []byte }

func NewLiteralChunk(b []byte) Chunk { return &literalChunk{b: b} }
func (c *literalChunk) Bytes() []byte { return c.b }
func (c *literalChunk) Mutable() bool { return false }

// arrayChunk is a pool-owned fixed-size array accepting writes until the
// owning Streambuf commits past its tail.
type arrayChunk struct {
	buf [Size]byte
	len int
}

func newArrayChunk() *arrayChunk { return &arrayChunk{} }
func (c *arrayChunk) Bytes() []byte { return c.buf[:c.len] }
func (c *arrayChunk) Mutable() bool { return true }

// free returns the unwritten capacity at the tail of the array.
func (c *arrayChunk) free() []byte { return c.buf[c.len:] }

// grow marks n additional bytes (already written by the caller into the
// slice returned by free) as part of the chunk.
func (c *arrayChunk) grow(n int) { c.len += n }

// View is a narrowed (begin,end) sub-range over a shared Chunk. Narrowing
// the range never copies bytes; it only adjusts the two offsets.
type View struct {
	c     Chunk
	begin int
	end   int
}

// NewView constructs a view over [begin,end) of c.
func NewView(c Chunk, begin, end int) View { return View{c: c, begin: begin, end: end} }

// Len returns the number of visible bytes.
func (v View) Len() int { return v.end - v.begin }

// Bytes returns the visible sub-slice. For a mutable chunk whose tail is
// still being written, callers must re-fetch after growth.
func (v View) Bytes() []byte { return v.c.Bytes()[v.begin:v.end] }

// sameChunk reports whether two views reference the identical underlying
// chunk, the precondition for coalescing or a copy-free split.
func (v View) sameChunk(o View) bool { return v.c == o.c }

// split returns two views: [begin,at) and [at,end). at is absolute,
// relative to the chunk's own indexing (i.e. v.begin <= at <= v.end).
func (v View) split(at int) (View, View) {
	return View{v.c, v.begin, at}, View{v.c, at, v.end}
}
