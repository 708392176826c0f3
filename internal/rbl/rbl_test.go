package rbl

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/Goofygiraffe06/ingress/internal/dnsclient"
	"github.com/miekg/dns"
)

// fakeRBLServer lists every query under "listed.test." with a TXT reason,
// and NXDOMAINs everything else.
func fakeRBLServer(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	go func() {
		buf := make([]byte, 512)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			req := new(dns.Msg)
			if err := req.Unpack(buf[:n]); err != nil {
				continue
			}
			resp := new(dns.Msg)
			resp.SetReply(req)

			if len(req.Question) == 1 {
				q := req.Question[0]
				switch {
				case q.Qtype == dns.TypeA && q.Name == "4.3.2.1.listed.test.":
					rr, _ := dns.NewRR(q.Name + " 60 IN A 127.0.0.2")
					resp.Answer = append(resp.Answer, rr)
				case q.Qtype == dns.TypeTXT && q.Name == "4.3.2.1.listed.test.":
					rr, _ := dns.NewRR(q.Name + ` 60 IN TXT "blocked for testing"`)
					resp.Answer = append(resp.Answer, rr)
				default:
					resp.Rcode = dns.RcodeNameError
				}
			}

			packed, err := resp.Pack()
			if err != nil {
				continue
			}
			conn.WriteToUDP(packed, addr)
		}
	}()
	return conn
}

func TestChecker_CheckIP_ListedAndClean(t *testing.T) {
	server := fakeRBLServer(t)
	defer server.Close()

	dc, err := dnsclient.New(server.LocalAddr().String(), 200*time.Millisecond, 0)
	if err != nil {
		t.Fatalf("dnsclient.New: %v", err)
	}
	defer dc.Stop()

	checker := New(dc, []List{{Zone: "listed.test"}, {Zone: "clean.test"}})

	listings, err := checker.CheckIP(context.Background(), net.IPv4(1, 2, 3, 4))
	if err != nil {
		t.Fatalf("CheckIP: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("CheckIP() = %v, want exactly one listing", listings)
	}
	if listings[0].Zone != "listed.test" || listings[0].Reason != "blocked for testing" {
		t.Fatalf("Listing = %+v, want zone=listed.test reason='blocked for testing'", listings[0])
	}
}

func TestReverseOctets(t *testing.T) {
	if got := reverseOctets(net.IPv4(1, 2, 3, 4)); got != "4.3.2.1" {
		t.Fatalf("reverseOctets() = %q, want 4.3.2.1", got)
	}
}
