// Package smtpserver implements the SMTP server session state machine,
// built on github.com/emersion/go-smtp's Backend/Session interfaces,
// driving the full HELO/EHLO/STARTTLS/AUTH/MAIL/RCPT/DATA/RSET/NOOP/QUIT
// state machine.
package smtpserver

import (
	"context"
	"fmt"
	"net"

	"github.com/Goofygiraffe06/ingress/internal/aliases"
	"github.com/Goofygiraffe06/ingress/internal/authbackend"
	"github.com/Goofygiraffe06/ingress/internal/config"
	"github.com/Goofygiraffe06/ingress/internal/connmgr"
	"github.com/Goofygiraffe06/ingress/internal/dnsclient"
	"github.com/Goofygiraffe06/ingress/internal/ipconfig"
	"github.com/Goofygiraffe06/ingress/internal/logging"
	"github.com/Goofygiraffe06/ingress/internal/manager"
	"github.com/Goofygiraffe06/ingress/internal/orchestrator"
	"github.com/Goofygiraffe06/ingress/internal/rbl"
	"github.com/Goofygiraffe06/ingress/internal/rc"
	"github.com/Goofygiraffe06/ingress/internal/recipientbackend"
	"github.com/Goofygiraffe06/ingress/internal/spfcheck"
	"github.com/emersion/go-smtp"
)

// Backend wires every per-session collaborator the server needs. One
// Backend is shared by every accepted connection; everything it holds is
// either immutable after construction or already safe for concurrent use
// (internal/connmgr, internal/rc.Client, internal/orchestrator.Orchestrator).
type Backend struct {
	Orchestrator *orchestrator.Orchestrator
	Auth         authbackend.Backend // nil disables AUTH regardless of config.UseAuth
	Recipients   recipientbackend.Backend
	Aliases      aliases.Source
	IPConfig     ipconfig.Source
	ConnMgr      *connmgr.Manager
	RC           *rc.Client
	SPF          *spfcheck.Checker
	RBL          *rbl.Checker
	DNS          *dnsclient.Client // reverse lookup for the CONNECT line; nil degrades to net.LookupAddr
	Work         *manager.WorkManager
	LocalHost    string
}

// NewSession admits the connection through the connection manager (spec
// §4.15) before handing out a Session; a rejection here maps to the 421
// "too many errors/connections" reply go-smtp sends for a NewSession
// error.
func (b *Backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	ip := remoteIP(c.Conn().RemoteAddr())

	admission, err := b.ConnMgr.Start(ip)
	if err != nil {
		logging.WarnLog("smtpserver: rejecting connection from %s: %v", ip, err)
		return nil, &smtp.SMTPError{
			Code:         421,
			EnhancedCode: smtp.EnhancedCode{4, 7, 0},
			Message:      "too many connections",
		}
	}

	if b.RBL != nil && config.RBLCheckEnabled() {
		if parsed := net.ParseIP(ip); parsed != nil {
			ctx, cancel := context.WithTimeout(context.Background(), config.SMTPDCommandTimeout())
			var listings []rbl.Listing
			var err error
			lookup := func(ctx context.Context) error {
				listings, err = b.RBL.CheckIP(ctx, parsed)
				return err
			}
			if b.Work != nil {
				_ = b.Work.RunDNS(ctx, lookup)
			} else {
				_ = lookup(ctx)
			}
			cancel()
			if err != nil {
				logging.WarnLog("smtpserver: rbl check failed for %s: %v", ip, err)
			} else if hit := firstByConfigOrder(listings); hit != nil {
				admission.Stop()
				return nil, &smtp.SMTPError{
					Code:         554,
					EnhancedCode: smtp.EnhancedCode{5, 7, 1},
					Message:      fmt.Sprintf("Service unavailable; Client host [%s] blocked using %s; %s", ip, hit.Zone, hit.Reason),
				}
			}
		}
	}

	limit := config.SMTPDRecipientLimit()
	if b.IPConfig != nil {
		if override, ok := b.IPConfig.RecipientLimit(ip); ok {
			limit = override
		}
	}

	return &Session{
		backend:      b,
		gsmtpConn:    c,
		admission:    admission,
		remoteIP:     ip,
		remoteHost:   b.rdnsHost(c.Conn().RemoteAddr()),
		rcptLimit:    limit,
		hardErrLimit: config.SMTPDHardErrorLimit(),
	}, nil
}

// firstByConfigOrder picks the listing whose zone appears earliest in
// config.RBLHosts(), so the rejection message always names the same
// zone for a given configuration regardless of which query happens to
// return first, even though internal/rbl itself queries every
// configured zone concurrently.
func firstByConfigOrder(listings []rbl.Listing) *rbl.Listing {
	if len(listings) == 0 {
		return nil
	}
	byZone := make(map[string]*rbl.Listing, len(listings))
	for i := range listings {
		byZone[listings[i].Zone] = &listings[i]
	}
	for _, zone := range config.RBLHosts() {
		if hit, ok := byZone[zone]; ok {
			return hit
		}
	}
	return &listings[0]
}

func remoteIP(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// rdnsHost is a best-effort reverse lookup for the CONNECT line the spam
// scorer and the Received header want; a lookup failure degrades to the
// bare IP rather than blocking the connection. When b.DNS is wired, the
// lookup goes through the async DNS client's PTR query, bounded by
// b.Work's dns pool, rather than the stdlib resolver.
func (b *Backend) rdnsHost(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}

	if b.DNS != nil {
		ctx, cancel := context.WithTimeout(context.Background(), config.SMTPDCommandTimeout())
		defer cancel()
		var names []string
		lookup := func(ctx context.Context) error {
			var err error
			names, err = b.DNS.LookupPTR(ctx, host)
			return err
		}
		var lookupErr error
		if b.Work != nil {
			lookupErr = b.Work.RunDNS(ctx, lookup)
		} else {
			lookupErr = lookup(ctx)
		}
		if lookupErr == nil && len(names) > 0 {
			return names[0]
		}
		return host
	}

	names, err := net.LookupAddr(host)
	if err != nil || len(names) == 0 {
		return host
	}
	return names[0]
}
