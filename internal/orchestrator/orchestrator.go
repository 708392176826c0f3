// Package orchestrator implements the session orchestrator: the
// checks-and-delivery pipeline invoked once a message's EOM token is
// reached. It drives header parsing, greylisting, the spam scorer, the
// anti-virus scanner, rate-control marking, DKIM verification, final
// message composition and downstream relay dispatch over a single
// internal/envelope.Envelope, propagating cancellation into every
// in-flight child via context.Context (no extra goroutines beyond the
// fan-out stages that genuinely run concurrently).
package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/Goofygiraffe06/ingress/internal/aliases"
	"github.com/Goofygiraffe06/ingress/internal/avclient"
	"github.com/Goofygiraffe06/ingress/internal/chunk"
	"github.com/Goofygiraffe06/ingress/internal/config"
	"github.com/Goofygiraffe06/ingress/internal/dkimcheck"
	"github.com/Goofygiraffe06/ingress/internal/envelope"
	"github.com/Goofygiraffe06/ingress/internal/greylist"
	"github.com/Goofygiraffe06/ingress/internal/header"
	"github.com/Goofygiraffe06/ingress/internal/logging"
	"github.com/Goofygiraffe06/ingress/internal/manager"
	"github.com/Goofygiraffe06/ingress/internal/rc"
	"github.com/Goofygiraffe06/ingress/internal/recipientbackend"
	"github.com/Goofygiraffe06/ingress/internal/relay"
	"github.com/Goofygiraffe06/ingress/internal/spamd"

	"blitiri.com.ar/go/spf"
	"golang.org/x/sync/errgroup"
)

// Rejection is a pipeline stage's terminal SMTP-facing outcome — reject,
// tempfail or an oversize rejection — mapped to a reply code by the
// caller (internal/smtpserver). A nil error from Process means "deliver
// the surviving recipients", a *Rejection aborts the whole message.
type Rejection struct {
	Code    int
	Message string
}

func (r *Rejection) Error() string { return fmt.Sprintf("%d %s", r.Code, r.Message) }

func reject(code int, msg string) error { return &Rejection{Code: code, Message: msg} }

// SessionInfo is the connection/session-level context the orchestrator
// needs but does not own: it belongs to internal/smtpserver.Session and
// is read-only from here on.
type SessionInfo struct {
	RemoteIP   net.IP
	RemoteHost string
	HeloName   string
	LocalHost  string
	SessionID  string

	// SPFResult/SPFDone carry the result of the async SPF check kicked
	// off at MAIL FROM into the Authentication-Results header composed
	// at stage 9.
	SPFResult spf.Result
	SPFDone   bool
}

// Orchestrator holds every collaborator the pipeline's ten stages call
// into. Every client field may be nil, meaning that stage is configured
// off; Process checks config.*CheckEnabled()/Use*() alongside nil-ness
// so a Backend wired without, say, an AV daemon simply skips that stage
// rather than panicking.
type Orchestrator struct {
	DKIM *dkimcheck.Checker

	Recipients recipientbackend.Backend
	AliasesSrc aliases.Source

	Greylist *greylist.Client
	RC       *rc.Client
	SO       *spamd.Client
	AV       *avclient.Client

	LocalRelay    *relay.Client
	FallbackRelay *relay.Client

	GreylistFields greylist.Fields

	// Work bounds total concurrent outbound DNS lookups and relay
	// deliveries across every session sharing this Orchestrator; nil
	// runs every stage inline on the calling goroutine instead.
	Work *manager.WorkManager
}

// Process runs the pipeline's ten stages over env, whose Body currently
// holds the complete raw ingested message (header block included,
// exactly as read off the wire, CRLF-normalised, dot-unstuffed by the
// SMTP layer). On return, env.Altered holds the composed delivered
// message and env.Recipients carry their final Status/Reply, unless a
// *Rejection aborts the whole message first.
func (o *Orchestrator) Process(ctx context.Context, info *SessionInfo, env *envelope.Envelope) error {
	// Stage 1: size limit.
	if limit := config.MessageSizeLimit(); limit > 0 && env.OriginalSize > limit {
		return reject(552, "5.3.4 Message size exceeds fixed maximum message size")
	}

	// Stage 2: header parse, header-ordering list, synthesized headers.
	fields := o.splitHeaders(env, info)

	// Stage 3: trust an existing X-Yandex-Spam header, skipping SO/AV.
	trustExisting := config.SOTrustXYandexSpam() && fields.hasXYandexSpam

	// Stage 4: greylisting, serial per recipient.
	if config.UseGreylisting() && o.Greylist != nil {
		if err := o.runGreylisting(ctx, info, env, fields); err != nil {
			return err
		}
	}

	// Stages 5, 6 and 8 (spam scorer, anti-virus, DKIM) fan out
	// concurrently: each only reads the header/body bytes frozen by
	// stage 2 and reports its outcome through a private result value, so
	// env itself is untouched until this fan-out joins below and the
	// results are applied on the calling goroutine alone.
	eg, gctx := errgroup.WithContext(ctx)

	var dkimResults []dkimcheck.Result
	if fields.hasDKIMSignature && o.DKIM != nil {
		msg := env.HeaderAndBodyBytes()
		eg.Go(func() error {
			dctx, cancel := context.WithTimeout(gctx, config.DKIMTimeout())
			defer cancel()
			verify := func(ctx context.Context) error {
				res, err := o.DKIM.Verify(ctx, bytes.NewReader(msg))
				if err != nil {
					return err
				}
				dkimResults = res
				return nil
			}
			var err error
			if o.Work != nil {
				err = o.Work.RunDNS(dctx, verify)
			} else {
				err = verify(dctx)
			}
			if err != nil {
				logging.DebugLog("orchestrator: dkim verify: %v", err)
			}
			return nil
		})
	}

	var soOut spamOutcome
	if !trustExisting && config.SOCheckEnabled() && o.SO != nil && (!env.Spam || config.EnableSOAfterGreylisting()) {
		eg.Go(func() error {
			soOut = o.runSpamScorer(gctx, info, env)
			return nil
		})
	}

	var avOut avOutcome
	if !trustExisting && config.AVCheckEnabled() && o.AV != nil {
		eg.Go(func() error {
			avOut = o.runAntivirus(gctx, env)
			return nil
		})
	}

	_ = eg.Wait()

	// Anti-virus takes priority: an infected/malicious verdict from
	// either check aborts the message, but a virus reject always wins
	// over a spam reject since it is the more severe classification.
	if avOut.err != nil {
		return avOut.err
	}
	if avOut.discard {
		env.Recipients = nil // silently drop: stage 10 has nothing left to deliver
	}
	if soOut.err != nil {
		return soOut.err
	}
	if soOut.spamChanged {
		env.Spam = soOut.spam
		if soOut.spam {
			env.AddedHeaders.AppendString("X-Yandex-Spam: 4\r\n")
		}
	}
	for _, r := range env.Recipients {
		if v, ok := soOut.perRecipient[r.Suid]; ok {
			r.SpamStatus = spamVerdictName(v)
		}
	}

	// Stage 7: rate-control mark for every surviving recipient.
	if config.RCCheckEnabled() && o.RC != nil {
		if err := o.markRateControl(ctx, env); err != nil {
			return err
		}
	}

	// Stage 9: compose the final message.
	o.composeAuthResults(env, info, dkimResults)
	env.ComposeAltered()

	// Stage 10: local-then-fallback relay dispatch.
	return o.deliver(ctx, env)
}

type headerFields struct {
	hasXYandexSpam   bool
	hasDKIMSignature bool
}

// splitHeaders implements stage 2: it parses env.Body (currently the
// complete raw message) into env.RetainedHeaders (minus any
// configured remove_headers_list entries) and env.Body (the bytes
// after the header/body blank line), synthesises Message-Id,
// Date, From and To when absent, and reports which of stage 3/8's
// gating headers are present.
func (o *Orchestrator) splitHeaders(env *envelope.Envelope, info *SessionInfo) headerFields {
	raw := env.Body.Bytes()

	var fields []header.Field
	bodyOffset := header.ParseHeader(raw, func(f header.Field) {
		fields = append(fields, f)
	})
	env.BodyOffset = bodyOffset

	remove := make(map[string]bool)
	if config.RemoveHeaders() {
		for _, name := range config.RemoveHeadersList() {
			remove[strings.ToLower(name)] = true
		}
	}

	var haveMessageID, haveDate, haveFrom, haveTo bool
	var hf headerFields

	env.RetainedHeaders = chunk.New()
	for _, f := range fields {
		name := strings.ToLower(string(raw[f.NameStart:f.NameEnd]))
		switch name {
		case "message-id":
			haveMessageID = true
		case "date":
			haveDate = true
		case "from":
			haveFrom = true
		case "to":
			haveTo = true
		case "x-yandex-spam":
			hf.hasXYandexSpam = true
		case "dkim-signature":
			hf.hasDKIMSignature = true
		}
		if remove[name] {
			continue
		}
		env.RetainedHeaders.AppendLiteral(raw[f.FieldStart:f.FieldEnd])
		env.RetainedHeaders.AppendString("\r\n")
	}

	if !haveMessageID {
		msgID := fmt.Sprintf("<%s.%s@%s>", time.Now().UTC().Format("20060102150405"), env.ID, info.LocalHost)
		env.AddedHeaders.AppendString("Message-Id: " + msgID + "\r\n")
	}
	if !haveDate {
		env.AddedHeaders.AppendString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	}
	if !haveFrom {
		env.AddedHeaders.AppendString("From: " + env.Sender + "\r\n")
	}
	if !haveTo && len(env.Recipients) > 0 {
		env.AddedHeaders.AppendString("To: " + env.Recipients[0].Addr + "\r\n")
	}

	body := chunk.New()
	body.AppendLiteral(raw[bodyOffset:])
	env.Body = body

	return hf
}

// runGreylisting implements stage 4: a serial probe over every
// recipient (each probe itself a single async RC round trip), using a
// key built from the fields enabled in o.GreylistFields.
func (o *Orchestrator) runGreylisting(ctx context.Context, info *SessionInfo, env *envelope.Envelope, _ headerFields) error {
	bodyBytes := env.Body.Bytes()

	for _, r := range env.Recipients {
		if r.Aliased {
			// Open Question decision (see DESIGN.md): aliased recipients
			// bypass greylisting, since the key would be keyed to an
			// address the remote peer never actually addressed.
			continue
		}

		key := greylist.Key{
			ClientIP:     info.RemoteIP.String(),
			EnvelopeFrom: env.Sender,
			EnvelopeTo:   r.Addr,
			Body:         bodyBytes,
		}

		var verdict greylist.Verdict
		var hits int32
		probe := func(ctx context.Context) error {
			var err error
			verdict, hits, err = o.Greylist.Probe(ctx, key, o.GreylistFields)
			return err
		}
		if err := o.runCheck(ctx, probe); err != nil {
			// No usable RC reply: per the Open Question decision, a
			// greylisting probe failure is a tempfail, not a discard —
			// the remote will retry and likely succeed once RC recovers.
			return reject(451, "4.7.1 Greylisting temporarily unavailable")
		}

		switch verdict {
		case greylist.TooEarly, greylist.TooLate:
			return reject(451, "4.7.1 Greylisted, please try again later")
		case greylist.OK:
			if hits > 0 {
				env.Spam = true
				if config.AddXYGAfterGreylisting() {
					env.AddedHeaders.AppendString("X-Yandex-Greylisting: yes\r\n")
				}
			}
			mark := func(ctx context.Context) error { return o.Greylist.Mark(ctx, key, o.GreylistFields, true) }
			_ = o.runCheck(ctx, mark)
		}
	}
	return nil
}

// spamOutcome is runSpamScorer's pure result: stage 5 runs concurrently
// with stage 6 (anti-virus), so it cannot safely mutate env directly
// while that fan-out is in flight — the two goroutines each produce one
// of these structs and Process applies it after the join.
type spamOutcome struct {
	err          error
	spam         bool
	spamChanged  bool // whether the scorer reached a verdict that should set env.Spam
	perRecipient map[int64]spamd.Verdict
}

// runSpamScorer implements stage 5.
func (o *Orchestrator) runSpamScorer(ctx context.Context, info *SessionInfo, env *envelope.Envelope) spamOutcome {
	rcpts := make([]spamd.Recipient, 0, len(env.Recipients))
	for _, r := range env.Recipients {
		rcpts = append(rcpts, spamd.Recipient{Addr: r.Addr, Suid: r.Suid})
	}

	var res *spamd.Result
	scan := func(ctx context.Context) error {
		var err error
		res, err = o.SO.Scan(ctx, info.RemoteHost, info.RemoteIP.String(), info.HeloName, env.Sender, env.OriginalSize, rcpts, env.Body.Reader())
		return err
	}
	if err := o.runCheck(ctx, scan); err != nil {
		return spamOutcome{err: reject(451, "4.7.1 Spam scorer unavailable")}
	}

	out := spamOutcome{perRecipient: res.PerRecipient}
	switch res.Verdict {
	case spamd.Malicious:
		out.err = reject(554, "5.7.1 Message rejected as malicious")
	case spamd.Spam:
		out.spam, out.spamChanged = true, true
	case spamd.Deliver:
		out.spam, out.spamChanged = false, true
	}
	return out
}

func spamVerdictName(v spamd.Verdict) string {
	switch v {
	case spamd.Spam:
		return "spam"
	case spamd.Deliver:
		return "deliver"
	case spamd.Malicious:
		return "malicious"
	case spamd.Skip:
		return "skip"
	default:
		return "ham"
	}
}

// avOutcome is runAntivirus's pure result; see spamOutcome's doc comment
// for why stage 6 cannot mutate env directly while stage 5 runs
// alongside it.
type avOutcome struct {
	err     error
	discard bool // action_virus=discard on an infected/suspicious verdict
}

// runAntivirus implements stage 6.
func (o *Orchestrator) runAntivirus(ctx context.Context, env *envelope.Envelope) avOutcome {
	var res avclient.Result
	scan := func(ctx context.Context) error {
		var err error
		res, err = o.AV.Scan(ctx, uint32(env.OriginalSize), env.Body.Reader())
		return err
	}
	if err := o.runCheck(ctx, scan); err != nil {
		return avOutcome{err: reject(451, "4.7.1 Anti-virus scanner unavailable")}
	}

	if res.Infected() || res.Suspicious() {
		if strings.EqualFold(config.ActionVirus(), "discard") {
			return avOutcome{discard: true}
		}
		return avOutcome{err: reject(554, "5.7.1 Message infected by virus")}
	}
	if res.Abnormal() {
		return avOutcome{err: reject(451, "4.7.1 Anti-virus scan failed")}
	}
	return avOutcome{}
}

// markRateControl implements stage 7: a PUT/ADD for every surviving
// recipient; a rejected mark tempfails just that recipient rather than
// the whole message, since each recipient's rate budget is independent.
func (o *Orchestrator) markRateControl(ctx context.Context, env *envelope.Envelope) error {
	for _, r := range env.Recipients {
		if r.Status != envelope.StatusAccept {
			continue
		}
		_, err := o.RC.Start(ctx, &rc.Request{
			Cmd:       rc.Add,
			Namespace: "rl",
			Key:       r.Addr,
			TTL:       time.Hour,
			Params:    []int32{1},
		}, config.RCTimeout())
		if err != nil {
			r.Status = envelope.StatusTempfail
			r.Reply = "451 4.7.1 Rate limit unavailable"
		}
	}
	return nil
}

// composeAuthResults implements the Authentication-Results half of
// stage 9: a single synthesised header summarising the SPF result
// captured at MAIL FROM and every DKIM verification from stage 8.
func (o *Orchestrator) composeAuthResults(env *envelope.Envelope, info *SessionInfo, dkimResults []dkimcheck.Result) {
	var parts []string
	if info.SPFDone {
		parts = append(parts, fmt.Sprintf("spf=%s smtp.mailfrom=%s", spfResultToken(info.SPFResult), env.Sender))
	}
	for _, r := range dkimResults {
		status := "fail"
		if r.Pass {
			status = "pass"
		} else if r.PermFail {
			status = "permerror"
		}
		parts = append(parts, fmt.Sprintf("dkim=%s header.d=%s header.i=%s", status, r.Domain, r.Identifier))
	}
	if len(parts) == 0 {
		return
	}
	env.AddedHeaders.AppendString("Authentication-Results: " + info.LocalHost + "; " + strings.Join(parts, "; ") + "\r\n")
}

func spfResultToken(res spf.Result) string {
	switch res {
	case spf.Pass:
		return "pass"
	case spf.Fail:
		return "fail"
	case spf.SoftFail:
		return "softfail"
	case spf.Neutral:
		return "neutral"
	case spf.TempError:
		return "temperror"
	case spf.PermError:
		return "permerror"
	default:
		return "none"
	}
}

// deliver implements stage 10: local LMTP first (unless any recipient
// was added via alias expansion), then the fallback SMTP relay for
// whatever remains.
func (o *Orchestrator) deliver(ctx context.Context, env *envelope.Envelope) error {
	pending := env.Accepted()
	if len(pending) == 0 {
		return nil
	}

	body, size, err := relay.BufferBody(env.Altered.Reader())
	if err != nil {
		return reject(451, "4.3.0 Internal delivery failure")
	}

	remaining := pending
	if config.UseLocalRelay() && o.LocalRelay != nil && !env.NoLocalRelay {
		addrs := recipientAddrs(pending)
		var res *relay.Result
		deliver := func(ctx context.Context) error {
			var err error
			res, err = o.LocalRelay.Deliver(ctx, env.Sender, addrs, body, size)
			return err
		}
		if err := o.runDeliver(ctx, deliver); err == nil {
			remaining = remainingRecipients(applyDeliveryResult(pending, res))
		} else {
			logging.WarnLog("orchestrator: local relay delivery failed: %v", err)
		}
	}

	if len(remaining) == 0 {
		return nil
	}
	if o.FallbackRelay == nil {
		for _, r := range remaining {
			r.Status = envelope.StatusTempfail
			r.Reply = "451 4.3.0 No relay configured"
		}
		return nil
	}

	body.Seek(0, 0)
	addrs := recipientAddrs(remaining)
	var res *relay.Result
	deliver := func(ctx context.Context) error {
		var err error
		res, err = o.FallbackRelay.Deliver(ctx, env.Sender, addrs, body, size)
		return err
	}
	if err := o.runDeliver(ctx, deliver); err != nil {
		for _, r := range remaining {
			r.Status = envelope.StatusTempfail
			r.Reply = "451 4.3.0 Relay unavailable"
		}
		return nil
	}
	applyDeliveryResult(remaining, res)
	return nil
}

// runDeliver routes a relay attempt through o.Work's bounded relay pool
// when one is wired, else runs it inline on the calling goroutine.
func (o *Orchestrator) runDeliver(ctx context.Context, fn func(ctx context.Context) error) error {
	if o.Work != nil {
		return o.Work.RunRelay(ctx, fn)
	}
	return fn(ctx)
}

// runCheck routes a greylisting/spam-scorer/anti-virus round trip through
// o.Work's bounded checks pool when one is wired, bounding concurrent
// outbound requests to those daemons across every session sharing this
// Orchestrator rather than just within one message's fan-out.
func (o *Orchestrator) runCheck(ctx context.Context, fn func(ctx context.Context) error) error {
	if o.Work != nil {
		return o.Work.RunCheck(ctx, fn)
	}
	return fn(ctx)
}

func recipientAddrs(rcpts []*envelope.Recipient) []string {
	out := make([]string, len(rcpts))
	for i, r := range rcpts {
		out[i] = r.Addr
	}
	return out
}

// applyDeliveryResult folds a relay.Result back onto the recipients it
// covers (Accept on success, Tempfail with the remote's error otherwise)
// and returns rcpts; remainingRecipients then picks out the ones that
// were not delivered.
func applyDeliveryResult(rcpts []*envelope.Recipient, res *relay.Result) []*envelope.Recipient {
	byAddr := make(map[string]relay.RecipientResult, len(res.Recipients))
	for _, rr := range res.Recipients {
		byAddr[rr.Addr] = rr
	}
	for _, r := range rcpts {
		rr, ok := byAddr[r.Addr]
		if !ok {
			continue
		}
		if rr.Err == nil {
			r.Status = envelope.StatusAccept
			r.Reply = "250 2.0.0 Ok"
		} else {
			r.Status = envelope.StatusTempfail
			r.Reply = rr.Err.Error()
		}
	}
	return rcpts
}

func remainingRecipients(rcpts []*envelope.Recipient) []*envelope.Recipient {
	var out []*envelope.Recipient
	for _, r := range rcpts {
		if r.Status != envelope.StatusAccept {
			out = append(out, r)
		}
	}
	return out
}
