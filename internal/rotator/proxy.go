package rotator

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ProxyScheme identifies the transport a proxy speaks.
type ProxyScheme string

const (
	SchemeHTTP   ProxyScheme = "http"
	SchemeHTTPS  ProxyScheme = "https"
	SchemeSocks4 ProxyScheme = "socks4"
	SchemeSocks5 ProxyScheme = "socks5"
)

// ProxyEntry is one parsed line from proxies.txt.
type ProxyEntry struct {
	Scheme   ProxyScheme
	Host     string
	Port     int
	Username string
	Password string
}

func (p ProxyEntry) String() string {
	if p.Username != "" {
		return fmt.Sprintf("%s://%s:%s@%s:%d", p.Scheme, p.Username, p.Password, p.Host, p.Port)
	}
	return fmt.Sprintf("%s://%s:%d", p.Scheme, p.Host, p.Port)
}

// FailedProxyLine records one proxies.txt line that could not be parsed.
type FailedProxyLine struct {
	LineNo int
	Text   string
	Reason string
}

// ParseProxyFile reads proxies.txt, one proxy per line, accepting the four
// forms described by the settings contract:
//
//	host:port
//	host:port:user:pass
//	user:pass@host:port
//	{scheme}://any-of-the-above
//
// Blank lines are skipped. A line prefixed by a recognized scheme is typed
// accordingly; an unprefixed line inherits defaultScheme. Lines that fail
// to parse are collected as diagnostics rather than aborting the whole
// file — a partially bad proxy file still produces a usable rotator.
func ParseProxyFile(r io.Reader, defaultScheme ProxyScheme) ([]ProxyEntry, []FailedProxyLine) {
	var entries []ProxyEntry
	var failed []FailedProxyLine

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		entry, err := parseProxyLine(line, defaultScheme)
		if err != nil {
			failed = append(failed, FailedProxyLine{LineNo: lineNo, Text: line, Reason: err.Error()})
			continue
		}
		entries = append(entries, entry)
	}

	return entries, failed
}

func parseProxyLine(line string, defaultScheme ProxyScheme) (ProxyEntry, error) {
	scheme := defaultScheme
	rest := line

	if idx := strings.Index(line, "://"); idx >= 0 {
		candidate := ProxyScheme(strings.ToLower(line[:idx]))
		switch candidate {
		case SchemeHTTP, SchemeHTTPS, SchemeSocks4, SchemeSocks5:
			scheme = candidate
			rest = line[idx+3:]
		default:
			return ProxyEntry{}, fmt.Errorf("unrecognized proxy scheme %q", line[:idx])
		}
	}

	// user:pass@host:port
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		userPass := rest[:at]
		hostPort := rest[at+1:]
		user, pass, ok := strings.Cut(userPass, ":")
		if !ok {
			return ProxyEntry{}, fmt.Errorf("malformed user:pass before '@'")
		}
		host, port, err := splitHostPort(hostPort)
		if err != nil {
			return ProxyEntry{}, err
		}
		return ProxyEntry{Scheme: scheme, Host: host, Port: port, Username: user, Password: pass}, nil
	}

	parts := strings.Split(rest, ":")
	switch len(parts) {
	case 2: // host:port
		host, port, err := splitHostPort(rest)
		if err != nil {
			return ProxyEntry{}, err
		}
		return ProxyEntry{Scheme: scheme, Host: host, Port: port}, nil
	case 4: // host:port:user:pass
		port, err := strconv.Atoi(parts[1])
		if err != nil {
			return ProxyEntry{}, fmt.Errorf("invalid port %q", parts[1])
		}
		return ProxyEntry{
			Scheme: scheme, Host: parts[0], Port: port,
			Username: parts[2], Password: parts[3],
		}, nil
	default:
		return ProxyEntry{}, fmt.Errorf("unrecognized proxy format")
	}
}

func splitHostPort(hostPort string) (string, int, error) {
	host, portStr, ok := strings.Cut(hostPort, ":")
	if !ok {
		return "", 0, fmt.Errorf("missing port in %q", hostPort)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, port, nil
}
