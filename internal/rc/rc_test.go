package rc

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestEncodeDecodeRequestRoundTrip(t *testing.T) {
	req := &Request{ID: 42, Cmd: Add, Namespace: "gr", Key: "k1", TTL: 30 * time.Second, Comment: "c", Params: []int32{1, 2, 3}}
	buf := encodeRequest(req)

	got, err := decodeRequest(buf)
	if err != nil {
		t.Fatalf("decodeRequest: %v", err)
	}
	if got.ID != 42 || got.Cmd != Add || got.Namespace != "gr" || got.Key != "k1" || got.TTL != 30*time.Second || got.Comment != "c" || len(got.Params) != 3 {
		t.Fatalf("decodeRequest = %+v, want round trip of %+v", got, req)
	}
}

func TestEncodeDecodeResponseRoundTrip(t *testing.T) {
	resp := &Response{ID: 42, AgeSeconds: 7, Counters: []int32{1, 2}}
	got, err := decodeResponse(encodeResponse(resp))
	if err != nil {
		t.Fatalf("decodeResponse: %v", err)
	}
	if got.ID != 42 || got.AgeSeconds != 7 || len(got.Counters) != 2 {
		t.Fatalf("decodeResponse = %+v, want id=42 age=7 counters=[1 2]", got)
	}
}

func TestDecodeResponse_Malformed(t *testing.T) {
	if _, err := decodeResponse([]byte{0xff}); err == nil {
		t.Fatalf("expected decode error on malformed buffer")
	}
}

func TestClient_StartRoundTripOverLoopback(t *testing.T) {
	server, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer server.Close()

	go func() {
		buf := make([]byte, maxDatagram)
		n, addr, err := server.ReadFromUDP(buf)
		if err != nil {
			return
		}
		req, err := decodeRequest(buf[:n])
		if err != nil {
			return
		}
		reply := encodeResponse(&Response{ID: req.ID, AgeSeconds: 3, Counters: []int32{1}})
		server.WriteToUDP(reply, addr)
	}()

	c, err := NewClient(server.LocalAddr().String(), "", time.Second, time.Second)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer c.Stop()

	resp, err := c.Start(context.Background(), &Request{Cmd: Get, Namespace: "gr", Key: "a@b"}, time.Second)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if resp.AgeSeconds != 3 || len(resp.Counters) != 1 || resp.Counters[0] != 1 {
		t.Fatalf("Start() = %+v, want age=3 counters=[1]", resp)
	}
}

func TestClient_StartTimesOutWithNoResponder(t *testing.T) {
	server, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer server.Close()

	c, err := NewClient(server.LocalAddr().String(), "", time.Minute, time.Minute)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer c.Stop()

	_, err = c.Start(context.Background(), &Request{Cmd: Get, Key: "a@b"}, 20*time.Millisecond)
	if err != ErrTimedOut {
		t.Fatalf("Start() err = %v, want ErrTimedOut", err)
	}
}
