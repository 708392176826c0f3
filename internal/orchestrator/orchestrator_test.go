package orchestrator

import (
	"strings"
	"testing"

	"github.com/Goofygiraffe06/ingress/internal/dkimcheck"
	"github.com/Goofygiraffe06/ingress/internal/envelope"
	"github.com/Goofygiraffe06/ingress/internal/relay"

	"blitiri.com.ar/go/spf"
)

func newTestEnvelope(raw string) *envelope.Envelope {
	env := envelope.New("sender@example.com")
	env.Body.AppendLiteral([]byte(raw))
	return env
}

func TestSplitHeaders_SynthesizesMissingFields(t *testing.T) {
	o := &Orchestrator{}
	env := newTestEnvelope("Subject: hi\r\n\r\nbody text")
	env.AddRecipient(&envelope.Recipient{Addr: "rcpt@example.com", Status: envelope.StatusAccept})

	info := &SessionInfo{LocalHost: "mx.example.com"}
	fields := o.splitHeaders(env, info)

	if fields.hasDKIMSignature {
		t.Fatalf("expected no DKIM-Signature header")
	}

	added := string(env.AddedHeaders.Bytes())
	for _, want := range []string{"Message-Id:", "Date:", "From: sender@example.com", "To: rcpt@example.com"} {
		if !strings.Contains(added, want) {
			t.Errorf("AddedHeaders missing %q, got %q", want, added)
		}
	}

	if got := string(env.Body.Bytes()); got != "body text" {
		t.Errorf("Body after split = %q, want %q", got, "body text")
	}
}

func TestSplitHeaders_RemovesConfiguredHeaders(t *testing.T) {
	t.Setenv("REMOVE_HEADERS", "true")
	t.Setenv("REMOVE_HEADERS_LIST", "X-Internal")

	o := &Orchestrator{}
	env := newTestEnvelope("Subject: hi\r\nX-Internal: secret\r\nFrom: a@b\r\nTo: c@d\r\nDate: x\r\nMessage-Id: <1@x>\r\n\r\nbody")

	o.splitHeaders(env, &SessionInfo{LocalHost: "mx"})

	retained := string(env.RetainedHeaders.Bytes())
	if strings.Contains(retained, "X-Internal") {
		t.Errorf("RetainedHeaders still contains X-Internal: %q", retained)
	}
	if !strings.Contains(retained, "Subject: hi") {
		t.Errorf("RetainedHeaders missing Subject: %q", retained)
	}
}

func TestSplitHeaders_DetectsXYandexSpamAndDKIM(t *testing.T) {
	o := &Orchestrator{}
	env := newTestEnvelope("DKIM-Signature: v=1\r\nX-Yandex-Spam: 4\r\n\r\nbody")
	fields := o.splitHeaders(env, &SessionInfo{LocalHost: "mx"})

	if !fields.hasDKIMSignature || !fields.hasXYandexSpam {
		t.Fatalf("fields = %+v, want both set", fields)
	}
}

func TestSpfResultToken(t *testing.T) {
	cases := map[spf.Result]string{
		spf.Pass:      "pass",
		spf.Fail:      "fail",
		spf.SoftFail:  "softfail",
		spf.Neutral:   "neutral",
		spf.None:      "none",
		spf.TempError: "temperror",
		spf.PermError: "permerror",
	}
	for res, want := range cases {
		if got := spfResultToken(res); got != want {
			t.Errorf("spfResultToken(%v) = %q, want %q", res, got, want)
		}
	}
}

func TestComposeAuthResults_SPFAndDKIM(t *testing.T) {
	o := &Orchestrator{}
	env := envelope.New("sender@example.com")
	info := &SessionInfo{LocalHost: "mx.example.com", SPFDone: true, SPFResult: spf.Pass}

	o.composeAuthResults(env, info, []dkimcheck.Result{{Domain: "example.com", Pass: true}})

	got := string(env.AddedHeaders.Bytes())
	if !strings.Contains(got, "spf=pass") {
		t.Errorf("expected spf=pass in %q", got)
	}
	if !strings.Contains(got, "dkim=pass header.d=example.com") {
		t.Errorf("expected dkim=pass in %q", got)
	}
}

func TestApplyDeliveryResult_MarksTempfailOnError(t *testing.T) {
	r1 := &envelope.Recipient{Addr: "a@x", Status: envelope.StatusAccept}
	r2 := &envelope.Recipient{Addr: "b@x", Status: envelope.StatusAccept}

	res := &relay.Result{Recipients: []relay.RecipientResult{
		{Addr: "a@x", Err: nil},
		{Addr: "b@x", Err: errTest("boom")},
	}}

	applyDeliveryResult([]*envelope.Recipient{r1, r2}, res)

	if r1.Status != envelope.StatusAccept {
		t.Errorf("r1.Status = %v, want Accept", r1.Status)
	}
	if r2.Status != envelope.StatusTempfail {
		t.Errorf("r2.Status = %v, want Tempfail", r2.Status)
	}

	remaining := remainingRecipients([]*envelope.Recipient{r1, r2})
	if len(remaining) != 1 || remaining[0] != r2 {
		t.Errorf("remainingRecipients = %+v, want just r2", remaining)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
