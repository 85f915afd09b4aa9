package discovery

import (
	"encoding/xml"
	"strconv"

	"github.com/corvidlabs/checkerbase/internal/registry"
)

type autoconfigDoc struct {
	EmailProvider struct {
		IncomingServer []incomingServerXML `xml:"incomingServer"`
	} `xml:"emailProvider"`
}

type incomingServerXML struct {
	Type       string `xml:"type,attr"`
	Hostname   string `xml:"hostname"`
	Port       string `xml:"port"`
	SocketType string `xml:"socketType"`
	Username   string `xml:"username"`
}

// parseAutoconfigXML parses the Mozilla autoconfig XML format, returning
// one ServerConfig per <incomingServer type="imap"> element. Elements
// missing a hostname or with a non-integer port are skipped. Malformed
// XML yields an empty list, never an error: strategies are side-effect
// free and resilient by contract.
func parseAutoconfigXML(data []byte, source string, priority int) []registry.ServerConfig {
	var doc autoconfigDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil
	}

	var out []registry.ServerConfig
	for _, s := range doc.EmailProvider.IncomingServer {
		if s.Type != "imap" {
			continue
		}
		if s.Hostname == "" {
			continue
		}
		port, err := strconv.Atoi(s.Port)
		if err != nil {
			continue
		}
		out = append(out, registry.ServerConfig{
			Hostname:       s.Hostname,
			Port:           port,
			Security:       mapSocketType(s.SocketType),
			UsernameFormat: mapUsernameFormat(s.Username),
			Source:         source,
			Priority:       priority,
		})
	}
	return out
}

func mapSocketType(socketType string) registry.Security {
	switch socketType {
	case "SSL":
		return registry.SecuritySSL
	case "STARTTLS":
		return registry.SecurityStartTLS
	default:
		return registry.SecurityNone
	}
}

func mapUsernameFormat(username string) registry.UsernameFormat {
	if username == "%EMAILLOCALPART%" {
		return registry.UsernameLocalPart
	}
	return registry.UsernameEmail
}
