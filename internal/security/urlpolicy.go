package security

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	ErrPrivateIP     = errors.New("URL resolves to private IP address")
	ErrUntrustedHost = errors.New("URL host is not trusted")
	ErrInvalidScheme = errors.New("URL scheme is not allowed")
)

// URLPolicy decides which remote image references may be fetched.
type URLPolicy struct {
	AllowHTTP    bool
	AllowPrivate bool
	// AllowedHosts restricts fetches to these hosts and their subdomains
	// when non-empty.
	AllowedHosts []string
}

// DefaultURLPolicy allows public HTTPS hosts only.
func DefaultURLPolicy() *URLPolicy {
	return &URLPolicy{}
}

func (p *URLPolicy) Validate(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	switch parsed.Scheme {
	case "https":
	case "http":
		if !p.AllowHTTP {
			return fmt.Errorf("%w: %s", ErrInvalidScheme, parsed.Scheme)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidScheme, parsed.Scheme)
	}

	host := parsed.Hostname()
	if len(p.AllowedHosts) > 0 && !p.isAllowedHost(host) {
		return fmt.Errorf("%w: %s", ErrUntrustedHost, host)
	}

	if p.AllowPrivate {
		return nil
	}
	return validateHostIP(host)
}

func (p *URLPolicy) isAllowedHost(host string) bool {
	host = strings.ToLower(host)
	for _, allowed := range p.AllowedHosts {
		allowed = strings.ToLower(allowed)
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

func validateHostIP(host string) error {
	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return ErrPrivateIP
		}
		return nil
	}

	if strings.EqualFold(host, "localhost") {
		return ErrPrivateIP
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return nil
	}

	for _, ip := range ips {
		if isPrivateIP(ip) {
			return ErrPrivateIP
		}
	}

	return nil
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}

	if ip4 := ip.To4(); ip4 != nil {
		switch {
		case ip4[0] == 0:
			return true
		case ip4[0] == 100 && ip4[1] >= 64 && ip4[1] <= 127: // CGNAT
			return true
		case ip4[0] == 192 && ip4[1] == 0 && (ip4[2] == 0 || ip4[2] == 2):
			return true
		case ip4[0] == 198 && ip4[1] == 51 && ip4[2] == 100:
			return true
		case ip4[0] == 203 && ip4[1] == 0 && ip4[2] == 113:
			return true
		case ip4[0] >= 224:
			return true
		}
	}

	return false
}
