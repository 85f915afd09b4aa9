// Package mailchecker is the reference Checker implementation referred to
// by "one example checker" throughout the engine's specification: it
// authenticates IMAP credentials, using DiscoveryService to locate the
// mail servers for the credential's domain and the proxy rotator to dial
// through rotating proxies.
package mailchecker

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/corvidlabs/checkerbase/internal/discovery"
	"github.com/corvidlabs/checkerbase/internal/engine"
	"github.com/corvidlabs/checkerbase/internal/registry"
	"github.com/corvidlabs/checkerbase/internal/rotator"
)

// Credential is the ParsedRecord this checker produces: an email login
// split into its address, domain and password.
type Credential struct {
	Email  string
	Domain string
	Pass   string
}

// DialTimeout is the default timeout for both the proxy tunnel and the
// target IMAP connection.
const DialTimeout = 10 * time.Second

// DefaultDialRate and DefaultDialBurst bound how fast this checker opens
// new connections, independent of Parallelism: a worker pool can be wide
// while still avoiding a connection burst a target mail server (or a
// shared proxy) would read as abuse.
const (
	DefaultDialRate  = 50 // dials per second
	DefaultDialBurst = 20
)

// Checker implements engine.Checker[Credential].
type Checker struct {
	discovery   *discovery.Service
	logger      *slog.Logger
	timeout     time.Duration
	dialLimiter *rate.Limiter
}

// New constructs a Checker backed by disc for server discovery. Dial
// attempts are throttled to DefaultDialRate/DefaultDialBurst; use
// WithDialRateLimit to override.
func New(disc *discovery.Service, logger *slog.Logger, opts ...Option) *Checker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	c := &Checker{
		discovery:   disc,
		logger:      logger,
		timeout:     DialTimeout,
		dialLimiter: rate.NewLimiter(rate.Limit(DefaultDialRate), DefaultDialBurst),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Option configures a Checker.
type Option func(*Checker)

// WithDialRateLimit overrides the default dial throttle. A non-positive
// ratePerSec disables throttling entirely.
func WithDialRateLimit(ratePerSec float64, burst int) Option {
	return func(c *Checker) {
		if ratePerSec <= 0 {
			c.dialLimiter = nil
			return
		}
		c.dialLimiter = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	}
}

// imapClient is a scoped per-attempt resource: the proxy to dial through.
// The actual network connection is opened lazily inside Process, once the
// target server is known, and closed by Close on every exit path.
type imapClient struct {
	proxy *rotator.ProxyEntry
	conn  net.Conn
}

func (c *imapClient) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// QuickValidate rejects lines that cannot possibly be "email:pass":
// missing the ':' separator, or missing an '@' in the email part.
func (c *Checker) QuickValidate(line string) bool {
	email, _, ok := strings.Cut(line, ":")
	if !ok {
		return false
	}
	return strings.Contains(email, "@")
}

// Parse splits "user@domain:pass" into a Credential. Absence of a valid
// '@' position or an empty password is an unparseable line.
func (c *Checker) Parse(line string) (Credential, bool) {
	email, pass, ok := strings.Cut(line, ":")
	if !ok || pass == "" {
		return Credential{}, false
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return Credential{}, false
	}
	return Credential{
		Email:  email,
		Domain: strings.ToLower(email[at+1:]),
		Pass:   pass,
	}, true
}

// CreateClient captures the proxy for this attempt; the actual dial is
// deferred to Process, once the target server has been discovered.
func (c *Checker) CreateClient(ctx context.Context, proxy *rotator.ProxyEntry) (engine.Client, error) {
	return &imapClient{proxy: proxy}, nil
}

// Process discovers candidate servers for the credential's domain, tries
// each in priority order until one accepts a connection, performs the
// IMAP LOGIN handshake, and classifies the result.
func (c *Checker) Process(ctx context.Context, cred Credential, client engine.Client) (engine.Outcome, error) {
	ic, ok := client.(*imapClient)
	if !ok {
		return engine.Outcome{}, fmt.Errorf("mailchecker: unexpected client type %T", client)
	}

	configs, err := c.discovery.GetCandidates(ctx, cred.Domain)
	if err != nil {
		return engine.Outcome{}, err
	}
	if len(configs) == 0 {
		return engine.IgnoredOutcome(), nil
	}

	var lastErr error
	for _, cfg := range configs {
		conn, err := c.dial(ctx, cfg, ic.proxy)
		if err != nil {
			lastErr = err
			continue
		}
		ic.conn = conn

		accepted, err := c.login(conn, cred, cfg)
		if err != nil {
			conn.Close()
			ic.conn = nil
			lastErr = err
			continue
		}
		if accepted {
			if markErr := c.discovery.MarkVerified(cred.Domain, cfg); markErr != nil {
				c.logger.Warn("mark_verified failed", "domain", cred.Domain, "error", markErr)
			}
			return engine.SuccessOutcome(), nil
		}
		return engine.FailedOutcome(), nil
	}

	if lastErr != nil {
		return engine.Outcome{}, lastErr
	}
	return engine.IgnoredOutcome(), nil
}

// IsTransient classifies dial/IO errors as retryable; a clean login
// rejection surfaces as a ProcessOutcome, never as an error, so it never
// reaches this method.
func (c *Checker) IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	return false
}

func (c *Checker) dial(ctx context.Context, cfg registry.ServerConfig, proxy *rotator.ProxyEntry) (net.Conn, error) {
	if c.dialLimiter != nil {
		if err := c.dialLimiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	addr := net.JoinHostPort(cfg.Hostname, strconv.Itoa(cfg.Port))

	var conn net.Conn
	var err error
	if proxy != nil {
		conn, err = dialViaProxy(ctx, proxy, addr, c.timeout)
	} else {
		dialer := &net.Dialer{Timeout: c.timeout}
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, err
	}

	switch cfg.Security {
	case registry.SecuritySSL:
		tlsConn := tls.Client(conn, &tls.Config{ServerName: cfg.Hostname})
		tlsConn.SetDeadline(time.Now().Add(c.timeout))
		if err := tlsConn.Handshake(); err != nil {
			conn.Close()
			return nil, err
		}
		return tlsConn, nil
	default:
		return conn, nil
	}
}

// login performs a minimal RFC 3501 LOGIN exchange: read the greeting,
// issue STARTTLS if required, send a tagged LOGIN, and interpret the
// tagged response. Returns (true, nil) on "OK", (false, nil) on "NO"/"BAD"
// (a clean, terminal rejection), and a non-nil error for anything that
// looks like a transport problem.
func (c *Checker) login(conn net.Conn, cred Credential, cfg registry.ServerConfig) (bool, error) {
	conn.SetDeadline(time.Now().Add(c.timeout))
	reader := bufio.NewReader(conn)

	if _, err := reader.ReadString('\n'); err != nil {
		return false, err
	}

	if cfg.Security == registry.SecurityStartTLS {
		if err := writeLine(conn, "a0 STARTTLS"); err != nil {
			return false, err
		}
		status, err := readTagged(reader, "a0")
		if err != nil {
			return false, err
		}
		if !strings.EqualFold(status, "OK") {
			return false, fmt.Errorf("STARTTLS refused by %s: %s", cfg.Hostname, status)
		}
		tlsConn := tls.Client(conn, &tls.Config{ServerName: cfg.Hostname})
		if err := tlsConn.Handshake(); err != nil {
			return false, err
		}
		conn = tlsConn
		reader = bufio.NewReader(conn)
	}

	username := cred.Email
	if cfg.UsernameFormat == registry.UsernameLocalPart {
		username = cred.Email[:strings.LastIndex(cred.Email, "@")]
	}

	if err := writeLine(conn, fmt.Sprintf("a1 LOGIN %s %s", quoteIMAP(username), quoteIMAP(cred.Pass))); err != nil {
		return false, err
	}

	status, err := readTagged(reader, "a1")
	if err != nil {
		return false, err
	}
	return strings.EqualFold(status, "OK"), nil
}

func writeLine(conn net.Conn, line string) error {
	_, err := conn.Write([]byte(line + "\r\n"))
	return err
}

// readTagged reads lines until one starts with tag, returning its status
// word ("OK", "NO", "BAD").
func readTagged(reader *bufio.Reader, tag string) (string, error) {
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if strings.HasPrefix(line, tag+" ") {
			fields := strings.SplitN(line, " ", 3)
			if len(fields) < 2 {
				return "", fmt.Errorf("mailchecker: malformed tagged response %q", line)
			}
			return fields[1], nil
		}
	}
}

func quoteIMAP(s string) string {
	return "\"" + strings.ReplaceAll(strings.ReplaceAll(s, "\\", "\\\\"), "\"", "\\\"") + "\""
}

// dialViaProxy dials addr through proxy. Only HTTP CONNECT tunneling is
// implemented; SOCKS proxies are out of scope for this reference checker
// and return an error (callers may still run without a proxy).
func dialViaProxy(ctx context.Context, proxy *rotator.ProxyEntry, addr string, timeout time.Duration) (net.Conn, error) {
	switch proxy.Scheme {
	case rotator.SchemeHTTP, rotator.SchemeHTTPS:
		return dialHTTPConnect(ctx, proxy, addr, timeout)
	default:
		return nil, fmt.Errorf("mailchecker: proxy scheme %q not supported by this reference checker", proxy.Scheme)
	}
}

func dialHTTPConnect(ctx context.Context, proxy *rotator.ProxyEntry, targetAddr string, timeout time.Duration) (net.Conn, error) {
	proxyAddr := net.JoinHostPort(proxy.Host, strconv.Itoa(proxy.Port))
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", proxyAddr)
	if err != nil {
		return nil, err
	}
	conn.SetDeadline(time.Now().Add(timeout))

	req := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\n", targetAddr, targetAddr)
	if proxy.Username != "" {
		req += fmt.Sprintf("Proxy-Authorization: Basic %s\r\n", basicAuth(proxy.Username, proxy.Password))
	}
	req += "\r\n"

	if _, err := conn.Write([]byte(req)); err != nil {
		conn.Close()
		return nil, err
	}

	reader := bufio.NewReader(conn)
	status, err := reader.ReadString('\n')
	if err != nil {
		conn.Close()
		return nil, err
	}
	if !strings.Contains(status, "200") {
		conn.Close()
		return nil, fmt.Errorf("mailchecker: proxy CONNECT failed: %s", strings.TrimSpace(status))
	}
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			conn.Close()
			return nil, err
		}
		if line == "\r\n" || line == "\n" {
			break
		}
	}

	conn.SetDeadline(time.Time{})
	return conn, nil
}

func basicAuth(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}
