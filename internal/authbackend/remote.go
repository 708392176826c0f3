package authbackend

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Goofygiraffe06/ingress/internal/config"
	"github.com/Goofygiraffe06/ingress/internal/hostswitch"
	"github.com/Goofygiraffe06/ingress/internal/logging"
)

// RemoteBackend is the bb_primary/bb_secondary collaborator from spec
// §6: an HTTP field-map service (grounded on the original
// black_box_client_auth's "accounts.ena.uid" / "subscription.suid.-"
// field requests) reached through internal/hostswitch for
// primary/secondary failover. net/http is used directly: the example
// corpus has no HTTP client library of its own (chi is a server-side
// router), so there is no ecosystem client to defer to here.
type RemoteBackend struct {
	sw      *hostswitch.Switch
	client  *http.Client
	timeout time.Duration
	try     int

	attempt int
}

// NewRemoteBackend builds a RemoteBackend that fails over between
// primary and secondary endpoints using the same hostswitch policy as
// the other downstream collaborators.
func NewRemoteBackend(primary, secondary string, timeout, fallback, ret time.Duration, try int) *RemoteBackend {
	return &RemoteBackend{
		sw:      hostswitch.New(primary, secondary, fallback, ret),
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		try:     try,
	}
}

func (b *RemoteBackend) endpoint() string {
	b.attempt++
	if b.attempt >= b.try {
		b.sw.Fault()
	}
	return b.sw.GetPrimary()
}

func (b *RemoteBackend) Authenticate(ctx context.Context, user, secret string) (*Identity, error) {
	fields, err := b.request(ctx, url.Values{
		"method":   {"auth"},
		"login":    {user},
		"password": {secret},
	})
	if err != nil {
		return nil, err
	}
	return fieldsToIdentity(user, fields)
}

func (b *RemoteBackend) VerifyMailFrom(ctx context.Context, identity *Identity, addr string) error {
	if identity == nil {
		return ErrDenied
	}
	fields, err := b.request(ctx, url.Values{
		"method": {"mailfrom"},
		"login":  {identity.User},
		"addr":   {addr},
	})
	if err != nil {
		return err
	}
	if fields["accounts.ena.uid"] == "" {
		return ErrDenied
	}
	return nil
}

// request performs one HTTP round-trip against the active endpoint,
// parsing the response body as "key\tvalue" lines (the field-map shape
// the original bb client requests). A transport or non-2xx failure
// records a Fault on the switch so GetPrimary fails over.
func (b *RemoteBackend) request(ctx context.Context, params url.Values) (map[string]string, error) {
	endpoint := b.endpoint()
	if endpoint == "" {
		return nil, errors.New("authbackend: no remote backend configured")
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		logging.WarnLog("authbackend: remote request to %s failed: %v", endpoint, err)
		b.sw.Fault()
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b.sw.Fault()
		return nil, errors.New("authbackend: remote backend returned " + resp.Status)
	}

	fields := make(map[string]string)
	scanner := bufio.NewScanner(io.LimitReader(resp.Body, config.MaxRequestBodyBytes()))
	for scanner.Scan() {
		line := scanner.Text()
		k, v, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		fields[k] = v
	}
	return fields, nil
}

func fieldsToIdentity(user string, fields map[string]string) (*Identity, error) {
	if fields["accounts.ena.uid"] == "" {
		return nil, ErrDenied
	}
	id := &Identity{User: user}
	if karma, err := strconv.Atoi(fields["subscription.karma.-"]); err == nil {
		id.Karma = karma
	}
	id.KarmaStatus = fields["subscription.karma_status.-"]
	if born, err := strconv.ParseInt(fields["subscription.born_date.-"], 10, 64); err == nil {
		id.BornDate = time.Unix(born, 0)
	}
	return id, nil
}
