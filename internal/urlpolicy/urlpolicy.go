// Package urlpolicy implements the SSRF guard (§6) and the
// "same-root-word-domain" comparison used throughout link discovery
// and scoring (§3, §4.2, §4.3, GLOSSARY).
package urlpolicy

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"syscall"
	"time"
)

const MaxURLLength = 2048

var blockedHosts = map[string]struct{}{
	"localhost":                            {},
	"127.0.0.1":                            {},
	"0.0.0.0":                              {},
	"::1":                                  {},
	"metadata.google.internal":             {},
	"169.254.169.254":                      {},
	"kubernetes.default.svc.cluster.local": {},
}

var blockedSuffixes = []string{".local", ".internal", ".test"}

// Clean trims whitespace, defaults to https when no scheme is given,
// and strips any fragment, mirroring the reference's `_clean_url`.
func Clean(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}
	return raw
}

// Validate applies the full SSRF policy from §6. A non-nil error's
// message is the user-facing reason, matching the reference's
// (is_valid, error_message) contract.
func Validate(raw string) error {
	if raw == "" || len(raw) > MaxURLLength {
		return fmt.Errorf("URL is empty or too long (max %d characters)", MaxURLLength)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("URL validation error: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("only HTTP and HTTPS URLs are allowed")
	}

	if u.Host == "" {
		return fmt.Errorf("invalid URL: missing hostname")
	}

	hostname := u.Hostname()
	if hostname == "" {
		return fmt.Errorf("invalid hostname")
	}

	if ip := net.ParseIP(hostname); ip != nil {
		if IsPrivateOrLocalIP(ip) {
			return fmt.Errorf("private/internal IP addresses are not allowed")
		}
	}

	lower := strings.ToLower(hostname)
	if _, blocked := blockedHosts[lower]; blocked {
		return fmt.Errorf("blocked domain: %s", hostname)
	}

	for _, suffix := range blockedSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return fmt.Errorf("internal domain suffixes are not allowed")
		}
	}

	return nil
}

// IsPrivateOrLocalIP reports whether ip is private, loopback,
// link-local, or unspecified — the raw classification behind both
// Validate's literal-IP check and ResolvedIPsUnsafe's DNS check.
func IsPrivateOrLocalIP(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

// ResolvedIPsUnsafe resolves hostname to IPs and reports whether any
// of them are private/loopback/link-local — a second line of defense
// against DNS rebinding beyond the literal-IP and hostname checks in
// Validate.
func ResolvedIPsUnsafe(hostname string) (bool, error) {
	ips, err := net.LookupIP(hostname)
	if err != nil {
		return false, err
	}
	for _, ip := range ips {
		if IsPrivateOrLocalIP(ip) {
			return true, nil
		}
	}
	return false, nil
}

// GuardedTransport builds an *http.Transport whose dialer re-checks
// every connection's resolved IP against the SSRF policy immediately
// before the socket connects. A hostname that passes Validate but
// resolves to a private/loopback/link-local address at dial time
// (DNS rebinding) is refused here rather than reaching the network.
func GuardedTransport(timeout time.Duration) *http.Transport {
	dialer := &net.Dialer{Timeout: timeout, Control: safeDialControl}
	return &http.Transport{DialContext: dialer.DialContext}
}

func safeDialControl(network, address string, c syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("urlpolicy: could not parse resolved address %q", address)
	}
	if IsPrivateOrLocalIP(ip) {
		return fmt.Errorf("urlpolicy: refusing to connect to private/loopback/link-local address %s", host)
	}
	return nil
}

// rootWordGenericLabels are second-level labels that don't themselves
// name the brand (co.uk, com.au style registries), so the root word
// is one label further in.
var rootWordGenericLabels = map[string]struct{}{
	"co": {}, "com": {}, "org": {}, "net": {}, "gov": {}, "edu": {},
}

// RootWord extracts the central "word" of a domain, e.g. "omv" from
// "www.omv.co.uk" or from "omv.com".
func RootWord(rawURL string) string {
	u, err := url.Parse(rawURL)
	host := ""
	if err == nil {
		host = u.Hostname()
	}
	if host == "" {
		// Allow bare hostnames without a scheme.
		host = rawURL
	}
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	parts := strings.Split(host, ".")
	if len(parts) == 0 {
		return ""
	}
	if len(parts) > 2 {
		if _, generic := rootWordGenericLabels[parts[len(parts)-2]]; generic {
			return parts[len(parts)-3]
		}
	}
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return parts[0]
}

// SameRootWordDomain reports whether two URLs share the same root
// word, e.g. "omv.at" and "omv.com".
func SameRootWordDomain(url1, url2 string) bool {
	r1 := RootWord(url1)
	if r1 == "" {
		return false
	}
	return r1 == RootWord(url2)
}

var localeVariantRe = regexp.MustCompile(`/(en|fr|de|es|it|pt|ja|zh)(?:[-_][A-Za-z]{2})?(/|$)`)

// IsLocaleVariant matches the GLOSSARY's locale-variant path pattern.
func IsLocaleVariant(path string) bool {
	return localeVariantRe.MatchString(path)
}
