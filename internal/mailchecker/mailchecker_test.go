package mailchecker

import (
	"fmt"
	"io"
	"syscall"
	"testing"
)

func TestQuickValidate(t *testing.T) {
	c := &Checker{}
	cases := map[string]bool{
		"user@example.com:pass":   true,
		"noatsign:pass":           false,
		"missingcolonatexample.com": false,
		"":                        false,
		"@example.com:pass":       true,
	}
	for line, want := range cases {
		if got := c.QuickValidate(line); got != want {
			t.Errorf("QuickValidate(%q) = %v, want %v", line, got, want)
		}
	}
}

func TestParse_SplitsEmailDomainAndPassword(t *testing.T) {
	c := &Checker{}
	cred, ok := c.Parse("User@Example.com:hunter2")
	if !ok {
		t.Fatal("expected a valid parse")
	}
	if cred.Email != "User@Example.com" {
		t.Errorf("Email = %q", cred.Email)
	}
	if cred.Domain != "example.com" {
		t.Errorf("Domain = %q, want lowercase example.com", cred.Domain)
	}
	if cred.Pass != "hunter2" {
		t.Errorf("Pass = %q", cred.Pass)
	}
}

func TestParse_MultipleColonsKeepsFirstSplit(t *testing.T) {
	c := &Checker{}
	cred, ok := c.Parse("user@example.com:pass:with:colons")
	if !ok {
		t.Fatal("expected a valid parse")
	}
	if cred.Pass != "pass:with:colons" {
		t.Errorf("Pass = %q, want everything after the first colon", cred.Pass)
	}
}

func TestParse_RejectsMissingAt(t *testing.T) {
	c := &Checker{}
	if _, ok := c.Parse("justauser:pass"); ok {
		t.Error("expected a line with no '@' to be unparseable")
	}
}

func TestParse_RejectsEmptyPassword(t *testing.T) {
	c := &Checker{}
	if _, ok := c.Parse("user@example.com:"); ok {
		t.Error("expected an empty password to be unparseable")
	}
}

func TestParse_RejectsTrailingAt(t *testing.T) {
	c := &Checker{}
	if _, ok := c.Parse("user@:pass"); ok {
		t.Error("expected a trailing '@' with no domain to be unparseable")
	}
}

func TestIsTransient_ClassifiesNetworkErrors(t *testing.T) {
	c := &Checker{}
	if c.IsTransient(nil) {
		t.Error("expected nil error to not be transient")
	}
	if !c.IsTransient(io.EOF) {
		t.Error("expected io.EOF to be transient")
	}
	if !c.IsTransient(fmt.Errorf("read: %w", syscall.ECONNRESET)) {
		t.Error("expected a wrapped ECONNRESET to be transient")
	}
}

func TestQuoteIMAP_EscapesBackslashAndQuote(t *testing.T) {
	got := quoteIMAP(`pass"with\stuff`)
	want := `"pass\"with\\stuff"`
	if got != want {
		t.Errorf("quoteIMAP = %q, want %q", got, want)
	}
}
