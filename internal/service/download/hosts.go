package download

import (
	"net/url"
	"strings"
)

// HostAllowed reports whether rawURL's host is exactly one of hosts.
func HostAllowed(rawURL string, hosts []string) bool {
	u, err := url.Parse(strings.ToLower(strings.TrimSpace(rawURL)))
	if err != nil {
		return false
	}
	host := u.Hostname()
	for _, h := range hosts {
		if host == strings.ToLower(h) {
			return true
		}
	}
	return false
}
