// Package dnsverify checks whether a customer domain currently delegates to
// the platform's routing endpoint.
//
// Verification is CNAME-first: only a CNAME pointing at the expected target
// proves delegation. A-record resolution is reported as a troubleshooting
// hint for apex domains but can never verify, because edge IPs are shared
// and dynamic. When no resolver is reachable the verifier degrades to a
// plain TCP probe whose answer is explicitly non-authoritative.
package dnsverify

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"relaypad/internal/platform/config"
)

// Result mirrors the wire shape handed back to verify callers.
type Result struct {
	Verified      bool   `json:"verified"`
	RecordType    string `json:"record_type,omitempty"`
	CurrentValue  string `json:"current_value,omitempty"`
	ExpectedValue string `json:"expected_value"`
	Error         string `json:"error,omitempty"`
}

// exchangeFunc performs one DNS query. Swapped out in tests.
type exchangeFunc func(ctx context.Context, msg *dns.Msg) (*dns.Msg, error)

// probeFunc checks plain reachability for the degraded path.
type probeFunc func(ctx context.Context, address string) error

// Verifier resolves live DNS against a configured upstream.
type Verifier struct {
	upstreams []string
	client    *dns.Client
	exchange  exchangeFunc
	probe     probeFunc
	logger    *slog.Logger
}

// New builds a Verifier from config. With no explicit upstream it reads the
// system resolver configuration; if that fails too, every Verify call runs
// in degraded mode.
func New(cfg config.DNSConfig, logger *slog.Logger) *Verifier {
	v := &Verifier{
		client: &dns.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
	if cfg.Upstream != "" {
		v.upstreams = []string{ensurePort(cfg.Upstream)}
	} else if cc, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil {
		for _, server := range cc.Servers {
			v.upstreams = append(v.upstreams, net.JoinHostPort(server, cc.Port))
		}
	} else {
		logger.Warn("no DNS upstream available, verification degraded to reachability probe", "error", err)
	}
	v.exchange = v.exchangeUpstreams
	v.probe = func(ctx context.Context, address string) error {
		d := net.Dialer{Timeout: 3 * time.Second}
		conn, err := d.DialContext(ctx, "tcp", address)
		if err != nil {
			return err
		}
		return conn.Close()
	}
	return v
}

// Verify reports whether domain currently CNAMEs to expectedTarget.
// Matching is case-insensitive with the trailing dot stripped.
func (v *Verifier) Verify(ctx context.Context, domain, expectedTarget string) Result {
	result := Result{ExpectedValue: expectedTarget}

	if len(v.upstreams) == 0 {
		return v.verifyFallback(ctx, domain, expectedTarget)
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), dns.TypeCNAME)
	reply, err := v.exchange(ctx, msg)
	if err != nil {
		v.logger.WarnContext(ctx, "dns resolution unavailable, falling back to reachability probe",
			"domain", domain, "error", err)
		return v.verifyFallback(ctx, domain, expectedTarget)
	}

	if targets := cnameTargets(reply); len(targets) > 0 {
		result.RecordType = "CNAME"
		want := strings.TrimSuffix(expectedTarget, ".")
		for _, target := range targets {
			if strings.EqualFold(target, want) {
				result.Verified = true
				result.CurrentValue = target
				return result
			}
		}
		result.CurrentValue = targets[0]
		result.Error = "CNAME points to " + targets[0] + " instead of " + expectedTarget
		return result
	}

	// No CNAME. For apex domains registrars often only allow A records, so
	// resolve those as a hint; shared edge IPs cannot be matched, so this
	// path never verifies.
	msg = new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), dns.TypeA)
	reply, err = v.exchange(ctx, msg)
	if err == nil {
		if addr, ok := firstA(reply); ok {
			result.RecordType = "A"
			result.CurrentValue = addr
			result.Error = "domain has an A record (" + addr + ") but should have a CNAME to " + expectedTarget +
				"; apex domains need a DNS provider with CNAME flattening or ALIAS support"
			return result
		}
	}

	result.Error = "no DNS records found; add a CNAME record pointing to " + expectedTarget
	return result
}

// verifyFallback is the degraded path: a TCP connect can only distinguish
// "resolves" from "does not resolve" and callers must treat its output as
// non-authoritative.
func (v *Verifier) verifyFallback(ctx context.Context, domain, expectedTarget string) Result {
	result := Result{ExpectedValue: expectedTarget}
	if err := v.probe(ctx, net.JoinHostPort(domain, "443")); err != nil {
		result.Error = "domain does not resolve; add a CNAME record pointing to " + expectedTarget
		return result
	}
	result.RecordType = "unknown"
	result.CurrentValue = "resolves"
	result.Error = "domain resolves but the CNAME target could not be confirmed; retry once DNS resolution is available"
	return result
}

func (v *Verifier) exchangeUpstreams(ctx context.Context, msg *dns.Msg) (*dns.Msg, error) {
	var lastErr error
	for _, upstream := range v.upstreams {
		reply, _, err := v.client.ExchangeContext(ctx, msg, upstream)
		if err == nil {
			return reply, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func cnameTargets(reply *dns.Msg) []string {
	if reply == nil {
		return nil
	}
	var targets []string
	for _, rr := range reply.Answer {
		if cname, ok := rr.(*dns.CNAME); ok {
			targets = append(targets, strings.TrimSuffix(cname.Target, "."))
		}
	}
	return targets
}

func firstA(reply *dns.Msg) (string, bool) {
	if reply == nil {
		return "", false
	}
	for _, rr := range reply.Answer {
		if a, ok := rr.(*dns.A); ok {
			return a.A.String(), true
		}
	}
	return "", false
}

func ensurePort(upstream string) string {
	if _, _, err := net.SplitHostPort(upstream); err == nil {
		return upstream
	}
	return net.JoinHostPort(upstream, "53")
}
