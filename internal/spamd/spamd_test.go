package spamd

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

// fakeSOServer accepts one connection, acknowledges every line-oriented
// step with "OK\x00", reads the DATA body, then replies with finalReply
// (which the caller NUL-terminates).
func fakeSOServer(t *testing.T, finalReply string) net.Listener {
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
		r := bufio.NewReader(conn)

		var line string
		for {
			l, err := r.ReadString('\n')
			if err != nil {
				return
			}
			if strings.HasPrefix(l, "DATA SIZE=") {
				line = l
				break
			}
			conn.Write([]byte("OK\x00"))
		}
		size := 0
		fields := strings.TrimPrefix(strings.TrimSpace(line), "DATA SIZE=")
		for _, c := range fields {
			if c < '0' || c > '9' {
				break
			}
			size = size*10 + int(c-'0')
		}
		body := make([]byte, size)
		if _, err := io.ReadFull(r, body); err != nil {
			return
		}

		conn.Write([]byte(finalReply + "\x00"))
	}()
	return ln
}

func TestClient_Scan_ParsesHamVerdict(t *testing.T) {
	ln := fakeSOServer(t, "SPAM 0")
	defer ln.Close()

	c := New(ln.Addr().String(), "", time.Second, time.Minute, time.Second, time.Second, 1)

	body := strings.NewReader("Subject: hi\r\n\r\nhello\r\n")
	res, err := c.Scan(context.Background(), "mail.example.com", "1.2.3.4", "helo.example.com", "a@example.com", int64(body.Len()), []Recipient{{Addr: "b@example.com", Suid: 42}}, body)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Verdict != Ham {
		t.Fatalf("Verdict = %v, want Ham", res.Verdict)
	}
}

func TestClient_Scan_ParsesMalicious(t *testing.T) {
	ln := fakeSOServer(t, "REJECT 1")
	defer ln.Close()

	c := New(ln.Addr().String(), "", time.Second, time.Minute, time.Second, time.Second, 1)

	body := strings.NewReader("x")
	res, err := c.Scan(context.Background(), "mail.example.com", "1.2.3.4", "helo.example.com", "a@example.com", 1, nil, body)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Verdict != Malicious {
		t.Fatalf("Verdict = %v, want Malicious", res.Verdict)
	}
}

func TestParseAnswer_SpamStrDeliverMarker(t *testing.T) {
	res := parseAnswer("SPAM 1\nSPAMSTR \nX-Spam-Flag: DLVR\n")
	if res.Verdict != Deliver {
		t.Fatalf("Verdict = %v, want Deliver", res.Verdict)
	}
}

func TestParseAnswer_SoDaemonZeroSkips(t *testing.T) {
	res := parseAnswer("SODAEMON 0\n")
	if res.Verdict != Skip {
		t.Fatalf("Verdict = %v, want Skip", res.Verdict)
	}
}

func TestParseAnswer_SpamWithPerRecipientStatus(t *testing.T) {
	res := parseAnswer("SPAM 1,42,0\n")
	if res.Verdict != Spam {
		t.Fatalf("Verdict = %v, want Spam", res.Verdict)
	}
	if res.PerRecipient[42] != Ham {
		t.Fatalf("PerRecipient[42] = %v, want Ham (inverse of overall Spam)", res.PerRecipient[42])
	}
}
