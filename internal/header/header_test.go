package header_test

import (
	"testing"

	"github.com/Goofygiraffe06/ingress/internal/header"
)

func TestParseHeader_Basic(t *testing.T) {
	msg := "Subject: hello\r\nFrom: a@b.com\r\n\r\nbody here"
	var names []string
	bodyOff := header.ParseHeader([]byte(msg), func(f header.Field) {
		names = append(names, msg[f.NameStart:f.NameEnd])
	})
	if len(names) != 2 || names[0] != "Subject" || names[1] != "From" {
		t.Fatalf("got names %v", names)
	}
	if msg[bodyOff:] != "body here" {
		t.Fatalf("body offset wrong, got %q", msg[bodyOff:])
	}
}

func TestParseHeader_FoldedContinuation(t *testing.T) {
	msg := "Subject: hello\r\n  world\r\n\r\nbody"
	var value string
	header.ParseHeader([]byte(msg), func(f header.Field) {
		value = msg[f.ValueStart:f.ValueEnd]
	})
	want := "hello\r\n  world"
	if value != want {
		t.Fatalf("value = %q, want %q", value, want)
	}
}

func TestParseHeader_LFOnlyBlankLine(t *testing.T) {
	msg := "X: 1\n\nbody"
	bodyOff := header.ParseHeader([]byte(msg), func(f header.Field) {})
	if msg[bodyOff:] != "body" {
		t.Fatalf("body offset wrong for LF-only terminator, got %q", msg[bodyOff:])
	}
}

func TestParseHeader_MalformedLineSkipped(t *testing.T) {
	msg := "not a header line\r\nSubject: ok\r\n\r\nbody"
	var names []string
	header.ParseHeader([]byte(msg), func(f header.Field) {
		names = append(names, msg[f.NameStart:f.NameEnd])
	})
	if len(names) != 1 || names[0] != "Subject" {
		t.Fatalf("expected only Subject, got %v", names)
	}
}

func TestGet(t *testing.T) {
	msg := "To: a@b.com\r\nSubject: hi\r\n\r\nbody"
	v, ok := header.Get([]byte(msg), "subject")
	if !ok || v != "hi" {
		t.Fatalf("Get(subject) = %q,%v", v, ok)
	}
	if _, ok := header.Get([]byte(msg), "missing"); ok {
		t.Fatalf("expected missing header to be absent")
	}
}

func TestParseHeader_NoBlankLine(t *testing.T) {
	msg := "X: 1\r\nY: 2\r\n"
	bodyOff := header.ParseHeader([]byte(msg), func(f header.Field) {})
	if bodyOff != len(msg) {
		t.Fatalf("expected body offset at end of buffer, got %d/%d", bodyOff, len(msg))
	}
}
