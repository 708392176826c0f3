package chunk

import "io"

// Streambuf is a pair of view deques: out (the writable tail, filled by
// Prepare/Commit) and in (the readable head, drained by Consume). The
// transition of bytes from out to in is a pure index-splitting operation;
// no payload byte is ever copied to move it from one side to the other.
type Streambuf struct {
	out []View // writable, not yet visible to readers
	in  []View // committed, readable
}

// New returns an empty Streambuf.
func New() *Streambuf { return &Streambuf{} }

// Prepare ensures the out deque has at least n bytes of write capacity and
// returns the writable views covering (at least) that capacity. It may
// allocate one or more new chunks. Writers must write into the slices
// returned by View.Bytes() on the arrayChunk's free region; grow is
// applied on Commit by counting what was actually written, so writers
// pass the written length to Commit rather than marking the chunk
// themselves.
func (s *Streambuf) Prepare(n int) []View {
	have := s.outCapacity()
	for have < n {
		ac := newArrayChunk()
		v := View{c: ac, begin: 0, end: Size}
		s.out = append(s.out, v)
		have += Size
	}
	return s.out
}

func (s *Streambuf) outCapacity() int {
	total := 0
	for _, v := range s.out {
		total += v.Len()
	}
	return total
}

// WriteOut is a convenience used by callers (e.g. the SMTP DATA reader)
// that already have the bytes in hand: it prepares capacity, copies into
// the pool-owned arrays, and commits in one step, moving on to a fresh
// arrayChunk whenever the tail one fills up. Returns the number of bytes
// written, which is len(p).
func (s *Streambuf) WriteOut(p []byte) int {
	written := 0
	for written < len(p) {
		views := s.Prepare(1)
		v := views[len(views)-1]
		ac, ok := v.c.(*arrayChunk)
		if !ok {
			break
		}
		free := ac.free()
		n := copy(free, p[written:])
		ac.grow(n)
		s.commitBytesWritten(n)
		written += n
		if n == 0 {
			break
		}
	}
	return written
}

// commitBytesWritten is identical to Commit but assumes the bytes were
// already physically written into the tail arrayChunk(s) by WriteOut.
func (s *Streambuf) commitBytesWritten(k int) { s.Commit(k) }

// Commit moves the first k bytes of the out deque into the in deque. If
// the first out view and the last in view reference the same underlying
// chunk, the split happens by sliding view offsets; otherwise a new
// trailing view is appended to in.
func (s *Streambuf) Commit(k int) {
	for k > 0 && len(s.out) > 0 {
		v := s.out[0]
		if v.Len() <= k {
			s.appendIn(v)
			k -= v.Len()
			s.out = s.out[1:]
			continue
		}
		head, tail := v.split(v.begin + k)
		s.appendIn(head)
		s.out[0] = tail
		k = 0
	}
}

// appendIn coalesces v onto the last in view when they are adjacent
// sub-ranges of the same chunk, else appends a new view.
func (s *Streambuf) appendIn(v View) {
	if n := len(s.in); n > 0 {
		last := s.in[n-1]
		if last.sameChunk(v) && last.end == v.begin {
			s.in[n-1].end = v.end
			return
		}
	}
	s.in = append(s.in, v)
}

// Append adds an arbitrary view (owned string, literal, or a sub-range of
// an existing chunk) to the in deque directly, coalescing where possible.
// This is how added/retained header chunks and the final altered-message
// sequence are assembled.
func (s *Streambuf) Append(v View) { s.appendIn(v) }

// AppendLiteral appends a static byte literal.
func (s *Streambuf) AppendLiteral(b []byte) { s.Append(NewView(NewLiteralChunk(b), 0, len(b))) }

// AppendString appends an owned copy of a string.
func (s *Streambuf) AppendString(str string) {
	s.Append(NewView(NewStringChunk(str), 0, len(str)))
}

// Consume drops k bytes from the head of the in deque.
func (s *Streambuf) Consume(k int) {
	for k > 0 && len(s.in) > 0 {
		v := s.in[0]
		if v.Len() <= k {
			k -= v.Len()
			s.in = s.in[1:]
			continue
		}
		s.in[0].begin += k
		k = 0
	}
}

// Size returns the number of readable (committed, not yet consumed) bytes.
func (s *Streambuf) Size() int {
	total := 0
	for _, v := range s.in {
		total += v.Len()
	}
	return total
}

// Bytes materialises the full readable sequence as one slice. Used only
// by callers that need a contiguous view (e.g. handing a complete message
// to a library that wants []byte); the hot ingestion path uses Iterate
// instead to avoid the copy.
func (s *Streambuf) Bytes() []byte {
	out := make([]byte, 0, s.Size())
	for _, v := range s.in {
		out = append(out, v.Bytes()...)
	}
	return out
}

// Reader returns an io.Reader over the committed (in) bytes without
// materialising them, for callers that stream the body to a network
// client (internal/spamd, internal/avclient, internal/relay).
func (s *Streambuf) Reader() io.Reader {
	return &streambufReader{it: s.Iterate()}
}

type streambufReader struct {
	it  *Iterator
	pos int
}

func (r *streambufReader) Read(p []byte) (int, error) {
	for {
		block := r.it.Block()
		if block == nil {
			return 0, io.EOF
		}
		if r.pos >= len(block) {
			if !r.it.Next() {
				return 0, io.EOF
			}
			r.pos = 0
			continue
		}
		n := copy(p, block[r.pos:])
		r.pos += n
		return n, nil
	}
}

// Iterator walks the in deque block by block without copying.
type Iterator struct {
	views []View
	idx   int
}

// Iterate returns an Iterator positioned at the start of the in deque.
func (s *Streambuf) Iterate() *Iterator { return &Iterator{views: s.in} }

// Block returns the current contiguous block of bytes, or nil if
// exhausted.
func (it *Iterator) Block() []byte {
	if it.idx >= len(it.views) {
		return nil
	}
	return it.views[it.idx].Bytes()
}

// EndOfBlock reports whether pos (an offset into the current Block) is at
// the end of the current contiguous block — the query the EOM parser
// needs to scan without rebuilding a contiguous buffer.
func (it *Iterator) EndOfBlock(pos int) bool {
	b := it.Block()
	return b == nil || pos >= len(b)
}

// Next advances to the following contiguous block.
func (it *Iterator) Next() bool {
	it.idx++
	return it.idx < len(it.views)
}
