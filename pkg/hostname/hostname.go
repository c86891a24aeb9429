// Package hostname contains pure functions for classifying and validating
// customer-supplied hostnames. No I/O happens here; DNS truth lives in
// internal/dnsverify.
package hostname

import (
	"regexp"
	"strings"
)

// labelPattern matches one or more dot-separated labels (1-63 chars,
// alphanumeric or hyphen, no leading/trailing hyphen) followed by an
// alphabetic TLD of at least two characters.
var labelPattern = regexp.MustCompile(`^(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)

// Normalize lowercases and trims a hostname for storage and comparison.
// Domain records are keyed by the normalized form.
func Normalize(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}

// Valid reports whether domain matches the hostname grammar. The overall
// 253-character limit is enforced on top of the per-label grammar.
func Valid(domain string) bool {
	if domain == "" || len(domain) > 253 {
		return false
	}
	return labelPattern.MatchString(domain)
}

// IsApex reports whether domain is an apex/root domain, i.e. has exactly two
// labels (example.com, not www.example.com).
func IsApex(domain string) bool {
	return strings.Count(domain, ".") == 1
}

// FirstLabel returns the leading label of a hostname. For subdomains this is
// the DNS record name the customer configures at their registrar.
func FirstLabel(domain string) string {
	if i := strings.IndexByte(domain, '.'); i > 0 {
		return domain[:i]
	}
	return domain
}
