package avclient

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

// fakeAVServer accepts one connection, reads the 16-byte scan header and
// the declared body size, then replies with statusWord.
func fakeAVServer(t *testing.T, statusWord uint32) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		var header [16]byte
		if _, err := io.ReadFull(conn, header[:]); err != nil {
			return
		}
		size := binary.BigEndian.Uint32(header[12:16])

		body := make([]byte, size)
		if _, err := io.ReadFull(conn, body); err != nil {
			return
		}

		var reply [4]byte
		binary.BigEndian.PutUint32(reply[:], statusWord)
		conn.Write(reply[:])
	}()
	return ln
}

func TestClient_Scan_Clean(t *testing.T) {
	ln := fakeAVServer(t, IsClean)
	defer ln.Close()

	c := New(ln.Addr().String(), "", time.Second, time.Minute, time.Second, time.Second, 1)

	body := strings.NewReader("hello world")
	res, err := c.Scan(context.Background(), uint32(body.Len()), body)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !res.Clean() || res.Infected() || res.Abnormal() {
		t.Fatalf("Result = %+v, want clean", res)
	}
}

func TestClient_Scan_Infected(t *testing.T) {
	ln := fakeAVServer(t, KnownVirus)
	defer ln.Close()

	c := New(ln.Addr().String(), "", time.Second, time.Minute, time.Second, time.Second, 1)

	body := strings.NewReader("x")
	res, err := c.Scan(context.Background(), 1, body)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !res.Infected() || res.Clean() {
		t.Fatalf("Result = %+v, want infected", res)
	}
}

func TestClient_Scan_AbnormalBitTriggersTempfailSignal(t *testing.T) {
	ln := fakeAVServer(t, ReadErr)
	defer ln.Close()

	c := New(ln.Addr().String(), "", time.Second, time.Minute, time.Second, time.Second, 1)

	body := strings.NewReader("x")
	res, err := c.Scan(context.Background(), 1, body)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !res.Abnormal() {
		t.Fatalf("Result = %+v, want Abnormal", res)
	}
}

func TestClient_Scan_FailsOverAfterExhaustedRetries(t *testing.T) {
	blackhole, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer blackhole.Close()

	ln := fakeAVServer(t, IsClean)
	defer ln.Close()

	c := New(blackhole.Addr().String(), ln.Addr().String(), time.Millisecond, time.Minute, 50*time.Millisecond, 100*time.Millisecond, 1)

	body := strings.NewReader("x")
	if _, err := c.Scan(context.Background(), 1, body); err == nil {
		t.Fatalf("Scan() against a blackhole primary with no fault triggered yet should fail on the first attempt")
	}
}
