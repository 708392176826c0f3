// Command ingressd runs the SMTP ingress node: it wires every
// collaborator, binds the configured listeners, and serves connections
// until a shutdown signal arrives.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Goofygiraffe06/ingress/internal/aliases"
	"github.com/Goofygiraffe06/ingress/internal/authbackend"
	"github.com/Goofygiraffe06/ingress/internal/avclient"
	"github.com/Goofygiraffe06/ingress/internal/config"
	"github.com/Goofygiraffe06/ingress/internal/connmgr"
	"github.com/Goofygiraffe06/ingress/internal/dkimcheck"
	"github.com/Goofygiraffe06/ingress/internal/dnsclient"
	"github.com/Goofygiraffe06/ingress/internal/greylist"
	"github.com/Goofygiraffe06/ingress/internal/ipconfig"
	"github.com/Goofygiraffe06/ingress/internal/logging"
	"github.com/Goofygiraffe06/ingress/internal/manager"
	"github.com/Goofygiraffe06/ingress/internal/orchestrator"
	"github.com/Goofygiraffe06/ingress/internal/rbl"
	"github.com/Goofygiraffe06/ingress/internal/rc"
	"github.com/Goofygiraffe06/ingress/internal/recipientbackend"
	"github.com/Goofygiraffe06/ingress/internal/relay"
	"github.com/Goofygiraffe06/ingress/internal/smtpserver"
	"github.com/Goofygiraffe06/ingress/internal/spamd"
	"github.com/Goofygiraffe06/ingress/internal/spfcheck"

	"github.com/emersion/go-smtp"
)

func main() {
	os.Exit(run())
}

// run builds the process and blocks until a graceful shutdown signal
// arrives, returning the process exit code (0 on clean shutdown).
func run() int {
	logFile, err := logging.InitLogger(config.LogFilePath())
	if err != nil {
		logging.FatalLog("ingressd: failed to open log file: %v", err)
		return 3
	}
	defer logFile.Close()

	authbackend.InitSigningKey()

	work := manager.NewWorkManager()
	defer work.Close()

	connMgr := connmgr.New(config.SMTPDConnectionCountLimit(), config.SMTPDClientConnectionCountLimit())
	dnsClient := buildDNSClient()

	backend := &smtpserver.Backend{
		Orchestrator: buildOrchestrator(work),
		Auth:         buildAuthBackend(),
		Recipients:   buildRecipientBackend(),
		Aliases:      loadAliases(),
		IPConfig:     loadIPConfig(),
		ConnMgr:      connMgr,
		RC:           buildRCClient(),
		SPF:          spfcheck.New(),
		RBL:          buildRBLChecker(dnsClient),
		DNS:          dnsClient,
		Work:         work,
		LocalHost:    config.SMTPBanner(),
	}

	srv := smtp.NewServer(backend)
	srv.Addr = config.ListenAddr()
	srv.Domain = config.SMTPBanner()
	srv.ReadTimeout = config.SMTPDCommandTimeout()
	srv.WriteTimeout = config.SMTPDCommandTimeout()
	srv.MaxMessageBytes = config.MessageSizeLimit()
	srv.MaxRecipients = config.SMTPDRecipientLimit()
	srv.AllowInsecureAuth = !config.UseAuthAfterTLS()

	if config.UseTLS() {
		tlsConfig, err := loadTLSConfig()
		if err != nil {
			logging.ErrorLog("ingressd: failed to load TLS config: %v", err)
			return 200
		}
		srv.TLSConfig = tlsConfig
	}

	reloadAliases(backend)

	serveErr := make(chan error, 1)
	go func() {
		logging.InfoLog("ingressd: listening on %s", srv.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		select {
		case err := <-serveErr:
			if err != nil {
				logging.ErrorLog("ingressd: server exited: %v", err)
				return 3
			}
			return 0
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				logging.InfoLog("ingressd: SIGHUP received, reloading aliases")
				reloadAliases(backend)
			default:
				logging.InfoLog("ingressd: %v received, shutting down", sig)
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				err := srv.Shutdown(ctx)
				cancel()
				if err != nil {
					logging.WarnLog("ingressd: shutdown: %v", err)
				}
				return 0
			}
		}
	}
}

func buildOrchestrator(work *manager.WorkManager) *orchestrator.Orchestrator {
	o := &orchestrator.Orchestrator{
		Recipients:     nil, // orchestrator only consults recipientbackend via the session; it never re-looks-up
		AliasesSrc:     nil,
		Work:           work,
		GreylistFields: greylist.Fields{ClientIP: true, EnvelopeFrom: true, EnvelopeTo: true},
	}

	if config.DKIMTimeout() > 0 {
		o.DKIM = dkimcheck.New()
	}

	rcClient := buildRCClient()
	if config.UseGreylisting() && rcClient != nil {
		o.Greylist = greylist.NewClient(rcClient, config.GreylistingWindowBegin(), config.GreylistingWindowEnd(), config.GreylistingTTL(), config.GreylistingProbeTimeout())
	}
	o.RC = rcClient

	if config.SOCheckEnabled() && config.SOPrimary() != "" {
		o.SO = spamd.New(config.SOPrimary(), config.SOSecondary(), config.SOFallback(), config.SOReturn(), config.SOConnectTimeout(), config.SODataTimeout(), config.SOTry())
	}
	if config.AVCheckEnabled() && config.AVPrimary() != "" {
		o.AV = avclient.New(config.AVPrimary(), config.AVSecondary(), config.AVFallback(), config.AVReturn(), config.AVConnectTimeout(), config.AVDataTimeout(), config.AVTry())
	}

	if config.UseLocalRelay() && config.LocalRelayHost() != "" {
		o.LocalRelay = relay.New(relay.ModeLMTP, config.LocalRelayHost(), "", config.SMTPBanner(), config.RelayFallback(), config.RelayReturn(), config.RelayConnectTimeout(), config.RelayCmdTimeout(), config.RelayDataTimeout())
	}
	if config.FallbackRelayHost() != "" {
		o.FallbackRelay = relay.New(relay.ModeSMTP, config.FallbackRelayHost(), "", config.SMTPBanner(), config.RelayFallback(), config.RelayReturn(), config.RelayConnectTimeout(), config.RelayCmdTimeout(), config.RelayDataTimeout())
	}

	return o
}

// buildAuthBackend returns the bb_primary-backed RemoteBackend when
// configured, else the in-process LocalBackend, else nil (AUTH
// disabled) matching config.UseAuth()'s "no backend, no AUTH" contract.
func buildAuthBackend() authbackend.Backend {
	if !config.UseAuth() {
		return nil
	}
	if config.BBPrimary() != "" {
		return authbackend.NewRemoteBackend(config.BBPrimary(), config.BBSecondary(), config.BBTimeout(), config.BBFallback(), config.BBReturn(), config.BBTry())
	}
	return authbackend.NewLocalBackend()
}

func buildRecipientBackend() recipientbackend.Backend {
	db, err := recipientbackend.NewSQLiteBackend(config.RecipientsDBPath())
	if err != nil {
		logging.ErrorLog("ingressd: failed to open recipients db: %v", err)
		return nil
	}
	return db
}

func buildRCClient() *rc.Client {
	hosts := config.RCHostList()
	if !config.RCCheckEnabled() || len(hosts) == 0 {
		return nil
	}
	primary := hosts[0] + ":" + config.RCPort()
	secondary := ""
	if len(hosts) > 1 {
		secondary = hosts[1] + ":" + config.RCPort()
	}
	client, err := rc.NewClient(primary, secondary, config.RCFallback(), config.RCReturn())
	if err != nil {
		logging.ErrorLog("ingressd: failed to build rate-control client: %v", err)
		return nil
	}
	return client
}

func buildDNSClient() *dnsclient.Client {
	dnsClient, err := dnsclient.New(config.DNSServerAddr(), config.DNSAttemptTimeout(), config.DNSRetries())
	if err != nil {
		logging.ErrorLog("ingressd: failed to build DNS client: %v", err)
		return nil
	}
	return dnsClient
}

func buildRBLChecker(dnsClient *dnsclient.Client) *rbl.Checker {
	if !config.RBLCheckEnabled() || len(config.RBLHosts()) == 0 || dnsClient == nil {
		return nil
	}
	lists := make([]rbl.List, 0, len(config.RBLHosts()))
	for _, zone := range config.RBLHosts() {
		lists = append(lists, rbl.List{Zone: zone})
	}
	return rbl.New(dnsClient, lists)
}

// aliasSource swaps atomically so a SIGHUP reload never races a RCPT
// TO lookup in flight.
type aliasSource struct {
	current atomic.Pointer[aliases.StaticSource]
}

func (a *aliasSource) Lookup(addr string) ([]string, bool) {
	src := a.current.Load()
	if src == nil {
		return nil, false
	}
	return src.Lookup(addr)
}

func loadAliases() aliases.Source {
	// Loading the aliases file itself is out of this core's scope (spec
	// §1); an empty StaticSource means "no aliases configured" until a
	// real loader populates one via reloadAliases.
	return &aliasSource{}
}

func reloadAliases(backend *smtpserver.Backend) {
	src, ok := backend.Aliases.(*aliasSource)
	if !ok {
		return
	}
	empty := aliases.StaticSource{}
	src.current.Store(&empty)
}

// loadTLSConfig builds a server tls.Config from config.TLS{Key,Cert,CA}File;
// the CA file, when set, is added as a client-cert root for mutual TLS.
func loadTLSConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(config.TLSCertFile(), config.TLSKeyFile())
	if err != nil {
		return nil, err
	}
	tlsConfig := &tls.Config{Certificates: []tls.Certificate{cert}}

	if caFile := config.TLSCAFile(); caFile != "" {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ingressd: no certificates found in %s", caFile)
		}
		tlsConfig.ClientCAs = pool
		tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
	}

	return tlsConfig, nil
}

func loadIPConfig() ipconfig.Source {
	// The IP-restriction file loader is out of this core's scope (spec
	// §1); an empty StaticSource means every IP uses the configured
	// default recipient limit.
	return ipconfig.StaticSource{}
}
