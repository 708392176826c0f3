package smtpserver

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/Goofygiraffe06/ingress/internal/authbackend"
	"github.com/Goofygiraffe06/ingress/internal/config"
	"github.com/Goofygiraffe06/ingress/internal/connmgr"
	"github.com/Goofygiraffe06/ingress/internal/eom"
	"github.com/Goofygiraffe06/ingress/internal/envelope"
	"github.com/Goofygiraffe06/ingress/internal/logging"
	"github.com/Goofygiraffe06/ingress/internal/orchestrator"
	"github.com/Goofygiraffe06/ingress/internal/rc"
	"github.com/Goofygiraffe06/ingress/internal/recipientbackend"

	"blitiri.com.ar/go/spf"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// newUserTempbanWindow is how recently a recipient must have registered
// for the new-user-tempban policy outcome to apply; the policy's window
// value isn't externally configured, so this core fixes it at 24h (see
// DESIGN.md's Open Question decision).
const newUserTempbanWindow = 24 * time.Hour

// karmaWhitelistThreshold is the karma value the policy-reject outcome
// treats as "whitelisted" regardless of karma_status (see DESIGN.md's
// Open Question decision).
const karmaWhitelistThreshold = 100

// okKarmaStatuses is the set of karma_status values that do not trigger
// a policy-reject on their own.
var okKarmaStatuses = map[string]bool{"": true, "normal": true, "good": true}

// Session implements go-smtp's Session (and, when AUTH is enabled, its
// AuthSession extension via AuthMechanisms/Auth) for one connection,
// driving the full HELO/EHLO/MAIL/RCPT/DATA state machine. Exactly one
// goroutine — go-smtp's own per-connection reader loop — ever calls
// these methods, so session fields need no locking.
type Session struct {
	backend   *Backend
	gsmtpConn *smtp.Conn
	admission *connmgr.Conn

	remoteIP   string
	remoteHost string
	rcptLimit  int

	authenticated bool
	identity      *authbackend.Identity

	spfResult spf.Result
	spfDone   bool

	env          *envelope.Envelope
	errCount     int
	hardErrLimit int
}

// AuthMechanisms advertises LOGIN/PLAIN only when both an auth backend
// is wired and config allows it at the connection's current TLS state.
func (s *Session) AuthMechanisms() []string {
	if s.backend.Auth == nil || !config.UseAuth() {
		return nil
	}
	if config.UseAuthAfterTLS() {
		state, ok := s.gsmtpConn.TLSConnectionState()
		if !ok || !state.HandshakeComplete {
			return nil
		}
	}
	return []string{sasl.Login, sasl.Plain}
}

// Auth drives the SASL state machine for the AUTH verb's LOGIN/PLAIN
// mechanisms: on successful credential verification the session is
// marked authenticated and captures the identity; go-sasl's Server
// state machines own the wire-level challenge/response exchange
// (334 VXNlcm5hbWU6 / 334 UGFzc3dvcmQ6 for LOGIN).
func (s *Session) Auth(mech string) (sasl.Server, error) {
	verify := func(username, password string) error {
		ctx, cancel := context.WithTimeout(context.Background(), config.SMTPDCommandTimeout())
		defer cancel()
		id, err := s.backend.Auth.Authenticate(ctx, username, password)
		if err != nil {
			return err
		}
		s.authenticated = true
		s.identity = id
		return nil
	}

	switch mech {
	case sasl.Login:
		return sasl.NewLoginServer(verify), nil
	case sasl.Plain:
		return sasl.NewPlainServer(func(_, username, password string) error {
			return verify(username, password)
		}), nil
	default:
		return nil, smtp.ErrAuthUnsupportedMechanism
	}
}

// Mail implements the MAIL FROM verb: enforces AUTH requirement and
// SIZE limit, verifies sender ownership when authenticated, else runs
// the SPF check synchronously (this session's single goroutine
// suspends here until it completes) and carries its result to the
// orchestrator at DATA time.
func (s *Session) Mail(from string, opts *smtp.MailOptions) error {
	if config.UseAuth() && s.backend.Auth != nil && !s.authenticated {
		return s.countErr(&smtp.SMTPError{Code: 503, EnhancedCode: smtp.EnhancedCode{5, 5, 1}, Message: "Authentication required"})
	}
	if opts != nil && opts.Size > 0 {
		if limit := config.MessageSizeLimit(); limit > 0 && int64(opts.Size) > limit {
			return s.countErr(&smtp.SMTPError{Code: 552, EnhancedCode: smtp.EnhancedCode{5, 3, 4}, Message: "Message size exceeds fixed maximum message size"})
		}
	}

	s.spfDone = false
	if s.authenticated {
		ctx, cancel := context.WithTimeout(context.Background(), config.SMTPDCommandTimeout())
		err := s.backend.Auth.VerifyMailFrom(ctx, s.identity, from)
		cancel()
		if err != nil {
			return s.countErr(&smtp.SMTPError{Code: 553, EnhancedCode: smtp.EnhancedCode{5, 7, 1}, Message: "Sender address does not match authenticated identity"})
		}
	} else if s.backend.SPF != nil {
		ctx, cancel := context.WithTimeout(context.Background(), config.SPFTimeout())
		var res spf.Result
		check := func(ctx context.Context) error {
			var err error
			res, err = s.backend.SPF.Check(ctx, net.ParseIP(s.remoteIP), s.gsmtpConn.Hostname(), from)
			return err
		}
		var err error
		if s.backend.Work != nil {
			err = s.backend.Work.RunDNS(ctx, check)
		} else {
			err = check(ctx)
		}
		cancel()
		if err == nil {
			s.spfResult = res
			s.spfDone = true
		}
	}

	s.env = envelope.New(from)
	if s.identity != nil {
		s.env.Authenticated = true
		s.env.Karma = s.identity.Karma
		s.env.KarmaStatus = s.identity.KarmaStatus
		s.env.BornDate = s.identity.BornDate
	}
	return nil
}

// Rcpt implements the RCPT TO verb: syntax validation, max_rcpt_count,
// recipient backend policy lookup, a rate-control probe for existing
// recipients, and alias expansion, with reject/tempfail recipients
// never entering the envelope.
func (s *Session) Rcpt(to string, opts *smtp.RcptOptions) error {
	if s.env == nil {
		return s.countErr(&smtp.SMTPError{Code: 503, EnhancedCode: smtp.EnhancedCode{5, 5, 1}, Message: "MAIL FROM required before RCPT TO"})
	}

	addr := to
	if config.AllowPercentHack() {
		addr = percentHack(addr)
	}
	if !validRcptSyntax(addr) {
		return s.countErr(&smtp.SMTPError{Code: 501, EnhancedCode: smtp.EnhancedCode{5, 1, 3}, Message: "Bad recipient address syntax"})
	}

	limit := s.rcptLimit
	if cfgLimit := config.MaxRcptCount(); cfgLimit > 0 && (limit <= 0 || cfgLimit < limit) {
		limit = cfgLimit
	}
	if limit > 0 && len(s.env.Recipients) >= limit {
		return s.countErr(&smtp.SMTPError{Code: 452, EnhancedCode: smtp.EnhancedCode{4, 5, 3}, Message: "Too many recipients"})
	}

	var info *recipientbackend.Info
	if s.backend.Recipients != nil {
		ctx, cancel := context.WithTimeout(context.Background(), config.SMTPDCommandTimeout())
		looked, err := s.backend.Recipients.Lookup(ctx, addr)
		cancel()
		switch {
		case err == nil:
			info = looked
			if !info.Ena || !info.LoginRule {
				return s.countErr(&smtp.SMTPError{Code: 550, EnhancedCode: smtp.EnhancedCode{5, 7, 1}, Message: "User blocked"})
			}
			if !okKarmaStatuses[info.KarmaStatus] && !info.Whitelisted(karmaWhitelistThreshold) {
				return s.countErr(&smtp.SMTPError{Code: 550, EnhancedCode: smtp.EnhancedCode{5, 7, 1}, Message: "bad karma"})
			}
			if !info.RegTime.IsZero() && time.Now().Before(info.RegTime.Add(newUserTempbanWindow)) {
				return s.countErr(&smtp.SMTPError{Code: 451, EnhancedCode: smtp.EnhancedCode{4, 7, 1}, Message: "New account temporarily restricted"})
			}
		case errors.Is(err, recipientbackend.ErrNotFound):
			info = nil
		default:
			return s.countErr(&smtp.SMTPError{Code: 451, EnhancedCode: smtp.EnhancedCode{4, 3, 0}, Message: "Temporary recipient lookup failure"})
		}
	}

	if info != nil && s.backend.RC != nil {
		ctx, cancel := context.WithTimeout(context.Background(), config.RCTimeout())
		resp, err := s.backend.RC.Start(ctx, &rc.Request{
			Cmd:       rc.Get,
			Namespace: "rl",
			Key:       addr,
			TTL:       time.Hour,
		}, config.RCTimeout())
		cancel()
		if err == nil && len(resp.Counters) > 0 && config.MaxRcptCount() > 0 && int(resp.Counters[0]) > config.MaxRcptCount() {
			return s.countErr(&smtp.SMTPError{Code: 451, EnhancedCode: smtp.EnhancedCode{4, 7, 1}, Message: "Rate limit exceeded"})
		}
	}

	suid, uid := int64(0), ""
	if info != nil {
		suid, uid = info.Suid, info.UID
	}

	if s.backend.Aliases != nil {
		if dests, ok := s.backend.Aliases.Lookup(addr); ok && len(dests) > 0 {
			s.env.NoLocalRelay = true
			for _, dest := range dests {
				s.env.AddRecipient(&envelope.Recipient{Addr: dest, Suid: suid, UID: uid, Status: envelope.StatusAccept, Aliased: true})
			}
			return nil
		}
	}

	s.env.AddRecipient(&envelope.Recipient{Addr: addr, Suid: suid, UID: uid, Status: envelope.StatusAccept})
	return nil
}

// Data implements the DATA verb: stamps the Received/X-Yandex-Front/
// X-Yandex-TimeMark headers, streams r into the envelope's body in
// ≤512-byte views through the CRLF collapser and EOM scanner, then
// hands off to the orchestrator.
func (s *Session) Data(r io.Reader) error {
	if s.env == nil || len(s.env.Recipients) == 0 {
		return s.countErr(&smtp.SMTPError{Code: 503, EnhancedCode: smtp.EnhancedCode{5, 5, 1}, Message: "No valid recipients"})
	}

	s.stampHeaders()

	limit := config.MessageSizeLimit()
	collapse := config.RemoveExtraCR()
	collapser := eom.NewCRLFCollapser()
	parser := eom.NewParser()

	buf := make([]byte, 512)
	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			total += int64(n)
			if limit > 0 && total > limit {
				_, _ = io.Copy(io.Discard, r)
				return &smtp.SMTPError{Code: 552, EnhancedCode: smtp.EnhancedCode{5, 3, 4}, Message: "Message size exceeds fixed maximum message size"}
			}
			block := buf[:n]
			if collapse {
				block = collapser.Feed(block)
			}
			_, _, _ = parser.Parse(block)
			s.env.Body.WriteOut(block)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	if collapse {
		s.env.Body.WriteOut(collapser.Flush())
	}
	s.env.OriginalSize = total

	info := &orchestrator.SessionInfo{
		RemoteIP:   net.ParseIP(s.remoteIP),
		RemoteHost: s.remoteHost,
		HeloName:   s.gsmtpConn.Hostname(),
		LocalHost:  s.backend.LocalHost,
		SessionID:  s.env.ID,
		SPFResult:  s.spfResult,
		SPFDone:    s.spfDone,
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.SMTPDDataTimeout())
	defer cancel()

	if err := s.backend.Orchestrator.Process(ctx, info, s.env); err != nil {
		var rej *orchestrator.Rejection
		if errors.As(err, &rej) {
			return s.countErr(&smtp.SMTPError{Code: rej.Code, Message: rej.Message})
		}
		return s.countErr(&smtp.SMTPError{Code: 451, EnhancedCode: smtp.EnhancedCode{4, 3, 0}, Message: "Internal processing error"})
	}

	env := s.env
	s.env = nil
	logging.InfoLog("smtpserver: %s", envelope.FinalReply(s.backend.LocalHost, env.ID, env.ID))
	return nil
}

// stampHeaders writes the DATA-entry header stamps into AddedHeaders
// ahead of whatever internal/orchestrator later prepends.
func (s *Session) stampHeaders() {
	now := time.Now()
	s.env.AddedHeaders.AppendString(
		"Received: from " + s.gsmtpConn.Hostname() + " (" + s.remoteHost + " [" + s.remoteIP + "])\r\n" +
			"\tby " + s.backend.LocalHost + " with SMTP id " + s.env.ID +
			"; " + now.Format(time.RFC1123Z) + "\r\n")
	s.env.AddedHeaders.AppendString("X-Yandex-Front: " + s.backend.LocalHost + "\r\n")
	s.env.AddedHeaders.AppendString("X-Yandex-TimeMark: " + strconv.FormatInt(now.Unix(), 10) + "\r\n")
}

// Reset implements RSET: clears the envelope but preserves TLS/Hello
// state and any authenticated identity.
func (s *Session) Reset() {
	s.env = nil
	s.spfDone = false
}

// Logout releases this session's connection-manager admission slot.
func (s *Session) Logout() error {
	s.admission.Stop()
	return nil
}

// countErr increments the per-session hard-error counter and, once it
// reaches the configured limit, upgrades the reply to a 421 that also
// terminates the connection.
func (s *Session) countErr(err *smtp.SMTPError) error {
	if err.Code < 400 {
		return err
	}
	s.errCount++
	if s.hardErrLimit > 0 && s.errCount >= s.hardErrLimit {
		return &smtp.SMTPError{
			Code:         421,
			EnhancedCode: smtp.EnhancedCode{4, 7, 0},
			Message:      "too many errors",
		}
	}
	return err
}
