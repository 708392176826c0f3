// Package header implements extraction of header fields from a raw
// message buffer, including folded (continuation) lines, stopping at the
// blank line that separates headers from the body.
package header

import "bytes"

// Field is a single parsed header field's three sub-ranges, each given as
// byte offsets into the buffer ParseHeader was called with.
type Field struct {
	NameStart, NameEnd   int
	FieldStart, FieldEnd int // full "Name: value" span, folds included
	ValueStart, ValueEnd int // folded value, folds included
}

// ParseHeader scans buf for header fields up to the terminating blank
// line (either "\n\n" or "\r\n\r\n"), invoking cb for every field found.
// It returns the offset of the first byte of the body (just past the
// blank line), or len(buf) if no blank line was found.
func ParseHeader(buf []byte, cb func(f Field)) int {
	i := 0
	n := len(buf)

	for i < n {
		// Blank line terminates the header block.
		if buf[i] == '\n' {
			return i + 1
		}
		if i+1 < n && buf[i] == '\r' && buf[i+1] == '\n' {
			return i + 2
		}

		lineStart := i
		nameEnd := -1

		// Malformed-line fallback: scan to the next unfolded '\n'.
		j := i
		for j < n {
			if buf[j] == '\n' {
				// fold continues if the next line starts with space/tab
				if j+1 < n && isFoldStart(buf[j+1]) {
					j++
					continue
				}
				break
			}
			if nameEnd == -1 && buf[j] == ':' {
				nameEnd = j
			}
			j++
		}
		lineEnd := j
		if j < n && buf[j] == '\n' {
			lineEnd = j + 1
		}

		if nameEnd == -1 {
			// Not a valid "name:" line; skip it and move on.
			i = lineEnd
			continue
		}

		fieldEnd := trimTrailingNewline(buf, lineStart, lineEnd)
		valueStart := nameEnd + 1
		for valueStart < fieldEnd && (buf[valueStart] == ' ' || buf[valueStart] == '\t') {
			valueStart++
		}

		cb(Field{
			NameStart:  lineStart,
			NameEnd:    nameEnd,
			FieldStart: lineStart,
			FieldEnd:   fieldEnd,
			ValueStart: valueStart,
			ValueEnd:   fieldEnd,
		})

		i = lineEnd
	}

	return n
}

func isFoldStart(b byte) bool { return b == ' ' || b == '\t' }

// trimTrailingNewline strips a trailing "\r\n" or "\n" from [start,end).
func trimTrailingNewline(buf []byte, start, end int) int {
	if end > start && buf[end-1] == '\n' {
		end--
		if end > start && buf[end-1] == '\r' {
			end--
		}
	}
	return end
}

// Get returns the folded value of the first header field named name
// (case-insensitive), or "", false if absent.
func Get(buf []byte, name string) (string, bool) {
	var found string
	var ok bool
	ParseHeader(buf, func(f Field) {
		if ok {
			return
		}
		if bytes.EqualFold(buf[f.NameStart:f.NameEnd], []byte(name)) {
			found = string(buf[f.ValueStart:f.ValueEnd])
			ok = true
		}
	})
	return found, ok
}
