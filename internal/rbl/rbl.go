// Package rbl implements the reverse-DNS blocklist check: querying
// every configured zone concurrently, built on internal/dnsclient and
// fanned out with golang.org/x/sync/errgroup, following the same shape
// as foxcpp-maddy's internal/check/dnsbl (dnsbl.go's errgroup.Group
// fan-out, common.go's checkIP/checkDomain octet-reversal and
// TXT-reason lookup).
package rbl

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/Goofygiraffe06/ingress/internal/dnsclient"
	"golang.org/x/sync/errgroup"
)

// List is one configured RBL zone, e.g. "zen.spamhaus.org".
type List struct {
	Zone string
}

// Listing records one positive hit: which zone, for which identity
// (reversed-IP query name), and why (the zone's TXT explanation, or the
// raw A-record addresses when no TXT explanation is published).
type Listing struct {
	Zone     string
	Identity string
	Reason   string
}

// Checker fans a client IP out across every configured List concurrently.
type Checker struct {
	dns   *dnsclient.Client
	lists []List
}

func New(dnsClient *dnsclient.Client, lists []List) *Checker {
	return &Checker{dns: dnsClient, lists: lists}
}

// CheckIP queries every configured zone for ip and returns every
// positive hit. A DNS lookup error on any zone (other than "not
// listed") aborts the whole check and is returned as err, per maddy's
// "lookup error, hard-fail" policy.
func (c *Checker) CheckIP(ctx context.Context, ip net.IP) ([]Listing, error) {
	query := reverseOctets(ip)

	var (
		mu       sync.Mutex
		listings []Listing
	)

	eg, ctx := errgroup.WithContext(ctx)
	for _, list := range c.lists {
		list := list
		eg.Go(func() error {
			name := query + "." + list.Zone
			addrs, err := c.dns.LookupA(ctx, name)
			if err != nil {
				if err == dnsclient.ErrTimedOut {
					// No reply within the retry budget: treated as not
					// listed on this zone.
					return nil
				}
				return fmt.Errorf("rbl: %s: %w", list.Zone, err)
			}
			if len(addrs) == 0 {
				return nil
			}

			reason := joinAddrs(addrs)
			if txts, err := c.dns.LookupTXT(ctx, name); err == nil && len(txts) > 0 {
				reason = strings.Join(txts, "; ")
			}

			mu.Lock()
			listings = append(listings, Listing{Zone: list.Zone, Identity: name, Reason: reason})
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return listings, nil
}

// reverseOctets renders ip as the reversed-octet query label RBL zones
// expect (e.g. 1.2.3.4 -> "4.3.2.1"). An IPv6 address is not reversed:
// it is returned in its plain string form.
func reverseOctets(ip net.IP) string {
	v4 := ip.To4()
	if v4 == nil {
		return ip.String()
	}
	return fmt.Sprintf("%d.%d.%d.%d", v4[3], v4[2], v4[1], v4[0])
}

func joinAddrs(addrs []net.IP) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.String()
	}
	return strings.Join(parts, "; ")
}
