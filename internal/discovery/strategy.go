package discovery

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/corvidlabs/checkerbase/internal/registry"
)

// Strategy is one independent way of locating mail servers for a domain.
// Implementations must be side-effect-free and resilient: any internal
// failure returns an empty list, never an error.
type Strategy interface {
	Name() string
	Priority() int
	Discover(ctx context.Context, domain string) []registry.ServerConfig
}

var httpClient = &http.Client{}

func fetchAutoconfig(ctx context.Context, url string, timeout time.Duration, source string, priority int) []registry.ServerConfig {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil
	}
	return parseAutoconfigXML(body, source, priority)
}

// DirectoryLookupStrategy queries Thunderbird's public ISPDB.
type DirectoryLookupStrategy struct {
	Timeout time.Duration
}

func (s DirectoryLookupStrategy) Name() string { return "directory" }
func (s DirectoryLookupStrategy) Priority() int { return registry.SourceISPDB }

func (s DirectoryLookupStrategy) Discover(ctx context.Context, domain string) []registry.ServerConfig {
	url := fmt.Sprintf("https://live.thunderbird.net/autoconfig/v1.1/%s", domain)
	return fetchAutoconfig(ctx, url, s.timeout(), "ispdb", s.Priority())
}

func (s DirectoryLookupStrategy) timeout() time.Duration {
	if s.Timeout <= 0 {
		return 10 * time.Second
	}
	return s.Timeout
}

// WellKnownStrategy tries the domain's own autoconfig and well-known URLs.
type WellKnownStrategy struct {
	Timeout time.Duration
}

func (s WellKnownStrategy) Name() string { return "well-known" }
func (s WellKnownStrategy) Priority() int { return registry.SourceAutoconfig }

func (s WellKnownStrategy) Discover(ctx context.Context, domain string) []registry.ServerConfig {
	urls := []string{
		fmt.Sprintf("https://autoconfig.%s/mail/config-v1.1.xml", domain),
		fmt.Sprintf("https://%s/.well-known/autoconfig/mail/config-v1.1.xml", domain),
	}
	for _, url := range urls {
		if cfgs := fetchAutoconfig(ctx, url, s.timeout(), "autoconfig", s.Priority()); len(cfgs) > 0 {
			return cfgs
		}
	}
	return nil
}

func (s WellKnownStrategy) timeout() time.Duration {
	if s.Timeout <= 0 {
		return 10 * time.Second
	}
	return s.Timeout
}

// MXProviderStrategy performs an MX lookup, derives a two-label provider
// domain from the lowest-preference record, and if it differs from the
// original domain, retries the directory and well-known strategies
// against the provider.
type MXProviderStrategy struct {
	Timeout time.Duration
}

func (s MXProviderStrategy) Name() string { return "mx-provider" }
func (s MXProviderStrategy) Priority() int { return registry.SourceMX }

func (s MXProviderStrategy) Discover(ctx context.Context, domain string) []registry.ServerConfig {
	mxs, err := net.LookupMX(domain)
	if err != nil || len(mxs) == 0 {
		return nil
	}

	// net.LookupMX returns records sorted by ascending Pref; the first
	// entry is the lowest-preference (most preferred) record.
	best := mxs[0]
	for _, mx := range mxs[1:] {
		if mx.Pref < best.Pref {
			best = mx
		}
	}

	provider := twoLabelProvider(best.Host)
	if provider == "" || strings.EqualFold(provider, domain) {
		return nil
	}

	dir := DirectoryLookupStrategy{Timeout: s.Timeout}
	if cfgs := dir.Discover(ctx, provider); len(cfgs) > 0 {
		return withPriority(cfgs, s.Priority())
	}
	wk := WellKnownStrategy{Timeout: s.Timeout}
	if cfgs := wk.Discover(ctx, provider); len(cfgs) > 0 {
		return withPriority(cfgs, s.Priority())
	}
	return nil
}

func withPriority(cfgs []registry.ServerConfig, priority int) []registry.ServerConfig {
	out := make([]registry.ServerConfig, len(cfgs))
	for i, c := range cfgs {
		c.Priority = priority
		c.Source = "mx"
		out[i] = c
	}
	return out
}

// twoLabelProvider reduces an MX hostname to its registrable two-label
// form, e.g. "aspmx.l.google.com." -> "google.com".
func twoLabelProvider(mxHost string) string {
	host := strings.TrimSuffix(mxHost, ".")
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return ""
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

// ProbeStrategy attempts a live IMAP connect-and-disconnect against the
// usual hostname guesses.
type ProbeStrategy struct {
	Timeout time.Duration
}

func (s ProbeStrategy) Name() string { return "probe" }
func (s ProbeStrategy) Priority() int { return registry.SourceGuess }

func (s ProbeStrategy) timeout() time.Duration {
	if s.Timeout <= 0 {
		return 5 * time.Second
	}
	return s.Timeout
}

var probeAttempts = []struct {
	port     int
	security registry.Security
}{
	{993, registry.SecuritySSL},
	{143, registry.SecurityStartTLS},
}

func (s ProbeStrategy) Discover(ctx context.Context, domain string) []registry.ServerConfig {
	var out []registry.ServerConfig
	for _, prefix := range []string{"imap.", "mail.", ""} {
		host := prefix + domain
		for _, attempt := range probeAttempts {
			if s.probe(ctx, host, attempt.port, attempt.security) {
				out = append(out, registry.ServerConfig{
					Hostname:       host,
					Port:           attempt.port,
					Security:       attempt.security,
					UsernameFormat: registry.UsernameEmail,
					Source:         "guess",
					Priority:       s.Priority(),
				})
			}
		}
	}
	return out
}

func (s ProbeStrategy) probe(ctx context.Context, host string, port int, security registry.Security) bool {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	dialer := &net.Dialer{Timeout: s.timeout()}

	var conn net.Conn
	var err error
	if security == registry.SecuritySSL {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: host})
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
